// bridgectl queries a running voice bridge over its admin port.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/GriffinCanCode/voicebridge/internal/admin"
)

const (
	defaultAddr    = "localhost:50061"
	defaultTimeout = 5 * time.Second
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var (
	exitFn    = os.Exit
	newClient = admin.NewClient
)

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "health":
		return handleHealth(args[2:], stdout, stderr)
	case "sessions":
		return handleSessions(args[2:], stdout, stderr)
	case "session":
		return handleSession(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

type common struct {
	addr    *string
	timeout *time.Duration
}

func newFlags(name string, stderr io.Writer) (*flag.FlagSet, common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs, common{
		addr:    fs.String("addr", envOrDefault("ADMIN_ADDR", defaultAddr), "bridge admin address"),
		timeout: fs.Duration("timeout", defaultTimeout, "request timeout"),
	}
}

func (c common) connect(stderr io.Writer) (*admin.Client, context.Context, context.CancelFunc, bool) {
	client, err := newClient(*c.addr)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return nil, nil, nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), *c.timeout)
	return client, ctx, cancel, true
}

// handleHealth exits 0 only when the bridge reports SERVING, so it doubles
// as a container health probe.
func handleHealth(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlags("health", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	client, ctx, cancel, ok := c.connect(stderr)
	if !ok {
		return 1
	}
	defer cancel()
	defer client.Close()

	healthy, err := client.Healthy(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if !healthy {
		fmt.Fprintln(stdout, "NOT_SERVING")
		return 1
	}
	fmt.Fprintln(stdout, "SERVING")
	return 0
}

func handleSessions(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlags("sessions", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	client, ctx, cancel, ok := c.connect(stderr)
	if !ok {
		return 1
	}
	defer cancel()
	defer client.Close()

	out, err := client.ListSessions(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return printJSON(stdout, stderr, out)
}

func handleSession(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, c := newFlags("session", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "session requires <call_id>")
		fs.Usage()
		return 2
	}
	client, ctx, cancel, ok := c.connect(stderr)
	if !ok {
		return 1
	}
	defer cancel()
	defer client.Close()

	out, err := client.GetSession(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return printJSON(stdout, stderr, out)
}

func printJSON(stdout io.Writer, stderr io.Writer, m proto.Message) int {
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(m)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	_, _ = stdout.Write(append(b, '\n'))
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: bridgectl <command> [flags]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  health              check the admin health service")
	fmt.Fprintln(w, "  sessions            list live sessions")
	fmt.Fprintln(w, "  session <call_id>   show one session")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
