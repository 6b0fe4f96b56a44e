package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/matheus3301/wpprelay/internal/instance"
	"github.com/matheus3301/wpprelay/internal/tui/client"
)

var errUsage = errors.New("usage")

type cli struct {
	instance string
	jsonOut  bool
}

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{instance: name, jsonOut: *jsonFlag}
	var err error
	switch args[0] {
	case "status":
		err = c.withClient(ctx, true, c.cmdStatus)
	case "instances":
		err = c.cmdInstances()
	case "conversations":
		err = c.withClient(ctx, true, func(ctx context.Context, cl *client.Client) error {
			return c.cmdConversations(ctx, cl, args[1:])
		})
	case "messages":
		err = c.withClient(ctx, true, func(ctx context.Context, cl *client.Client) error {
			return c.cmdMessages(ctx, cl, args[1:])
		})
	case "send":
		err = c.withClient(ctx, true, func(ctx context.Context, cl *client.Client) error {
			return c.cmdSend(ctx, cl, args[1:])
		})
	case "watch":
		err = c.withClient(ctx, false, func(ctx context.Context, cl *client.Client) error {
			return c.cmdWatch(ctx, cl, args[1:])
		})
	case "replay":
		err = c.withClient(ctx, false, func(ctx context.Context, cl *client.Client) error {
			return c.cmdReplay(ctx, cl, args[1:])
		})
	case "link":
		err = c.cmdLink(args[1:])
	case "config":
		err = c.cmdConfig(args[1:])
	default:
		color.Red("unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(os.Stderr, "usage: wpprelayctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr)
	yellow.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  instances                       List known instances")
	fmt.Fprintln(os.Stderr, "  conversations [limit]           List conversations by recent activity")
	fmt.Fprintln(os.Stderr, "  messages <conversation> [limit] Show the latest messages of a conversation")
	fmt.Fprintln(os.Stderr, "  send <conversation> <text>      Store an outbound message")
	fmt.Fprintln(os.Stderr, "  watch <conversation>            Stream live updates for a conversation")
	fmt.Fprintln(os.Stderr, "  replay [--watch] <file|dir>...  Submit saved webhook payloads")
	fmt.Fprintln(os.Stderr, "  link <conversation>             Print the live URL as a QR code")
	fmt.Fprintln(os.Stderr, "  config init                     Write the default config file")
	fmt.Fprintln(os.Stderr)
	yellow.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  WPPRELAY_HOME                   Base directory (default ~/.wpprelay)")
	fmt.Fprintln(os.Stderr, "  WPPRELAY_DEFAULT_INSTANCE       Instance used without --instance")
}

// withClient connects to the instance daemon. Short commands get a deadline;
// streaming ones run until interrupted.
func (c *cli) withClient(ctx context.Context, short bool, fn func(context.Context, *client.Client) error) error {
	cl, err := client.New(instance.SocketPath(c.instance))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for instance %q: %w", c.instance, err)
	}
	defer func() { _ = cl.Close() }()

	if short {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	return fn(ctx, cl)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
