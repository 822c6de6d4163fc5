package outbox

import (
	"fmt"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

const emptyHeaders = "{}"

// EncodeHeaders serializes headers to the JSON text stored in the Headers column.
// Keys are written as-is, so casing survives the round trip.
// Keys and values must be valid UTF-8.
func EncodeHeaders(h Headers) (string, error) {
	if len(h) == 0 {
		return emptyHeaders, nil
	}
	for k, v := range h {
		if !utf8.ValidString(k) {
			return "", fmt.Errorf("%w: key %q is not valid UTF-8", ErrInvalidHeaders, k)
		}
		if !utf8.ValidString(v) {
			return "", fmt.Errorf("%w: value of %q is not valid UTF-8", ErrInvalidHeaders, k)
		}
	}

	data, err := json.Marshal(map[string]string(h))
	if err != nil {
		return "", fmt.Errorf("outbox: encode headers: %w", err)
	}

	return string(data), nil
}

// DecodeHeaders parses the stored Headers column. Empty text yields empty headers.
func DecodeHeaders(text string) (Headers, error) {
	out := Headers{}
	if text == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeaders, err)
	}
	if out == nil {
		out = Headers{}
	}

	return out, nil
}
