// Command outbox-admin inspects and maintains an outbox table.
//
// Usage:
//
//	outbox-admin [flags] count|ensure|clear|publish
//
// Connection settings come from -config and OUTBOX_* environment variables,
// the same way outbox-relay reads them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/backend"
	"github.com/velmie/sqloutbox/cmd/internal/config"
)

const (
	exitUsage      = 2
	commandTimeout = time.Minute
)

var (
	errUsage           = errors.New("outbox-admin: expected one command: count, ensure, clear or publish")
	errClearNotAllowed = errors.New("outbox-admin: clear deletes every row; pass -yes to confirm")
)

type options struct {
	configFile string
	envFile    string
	yes        bool
	msgType    string
	body       string
	command    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("outbox-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "Config file; OUTBOX_* env vars override it")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Optional .env file")
	fs.BoolVar(&opts.yes, "yes", false, "Confirm destructive commands")
	fs.StringVar(&opts.msgType, "type", "", "Message type header for publish")
	fs.StringVar(&opts.body, "body", "", "Message body for publish")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()

		return options{}, errUsage
	}
	opts.command = fs.Arg(0)

	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitUsage)
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(exitUsage)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, stdout io.Writer) (err error) {
	switch opts.command {
	case "count", "ensure", "publish":
	case "clear":
		if !opts.yes {
			return errClearNotAllowed
		}
	default:
		return fmt.Errorf("%w, got %q", errUsage, opts.command)
	}

	ob, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ob.Close())
	}()

	switch opts.command {
	case "count":
		count, err := ob.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, count)
	case "ensure":
		if err := ob.EnsureTable(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "table %s ready\n", ob.Table())
	case "clear":
		if err := ob.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "table %s cleared\n", ob.Table())
	case "publish":
		headers := outbox.Headers{}
		if opts.msgType != "" {
			headers[outbox.HeaderType] = opts.msgType
		}
		if err := ob.Publish(ctx, outbox.NewMessage([]byte(opts.body), headers)); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "published 1 message")
	}

	return nil
}
