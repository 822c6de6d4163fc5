package outbox

// Well-known header keys.
const (
	// HeaderType names the message type (e.g., "OrderCreated").
	HeaderType = "type"
	// HeaderMessageID carries a unique message identifier for idempotent receivers.
	HeaderMessageID = "message-id"
	// HeaderCorrelationID links related messages for tracing.
	HeaderCorrelationID = "correlation-id"
	// HeaderContentType is the MIME type of the body.
	HeaderContentType = "content-type"
)

// Headers carries routing and broker metadata. Keys are case-sensitive.
type Headers map[string]string

// Clone returns a copy of the headers. A nil receiver yields an empty map.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}

	return out
}

// Message is the unit stored in and relayed from the outbox.
type Message struct {
	// Headers is routing metadata (message type, correlation id, etc.).
	Headers Headers
	// Body is the opaque serialized payload.
	Body []byte
}

// NewMessage builds a message with a copy of the given headers.
func NewMessage(body []byte, headers Headers) Message {
	return Message{Headers: headers.Clone(), Body: body}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	var body []byte
	if m.Body != nil {
		body = make([]byte, len(m.Body))
		copy(body, m.Body)
	}

	return Message{Headers: m.Headers.Clone(), Body: body}
}

// WithHeaders returns a copy of the message with extra merged over the existing headers.
func (m Message) WithHeaders(extra ...Headers) Message {
	out := m.Clone()
	for _, h := range extra {
		for k, v := range h {
			out.Headers[k] = v
		}
	}

	return out
}
