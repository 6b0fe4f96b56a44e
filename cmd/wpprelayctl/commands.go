package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/matheus3301/wpprelay/internal/config"
	"github.com/matheus3301/wpprelay/internal/instance"
	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/replay"
	"github.com/matheus3301/wpprelay/internal/tui/client"
	"github.com/matheus3301/wpprelay/internal/tui/views"
)

func (c *cli) cmdStatus(ctx context.Context, cl *client.Client) error {
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(st)
		return nil
	}

	cyan := color.New(color.FgCyan)
	store := color.GreenString("ok")
	if !st.StoreOK {
		store = color.RedString("unavailable")
	}
	cyan.Print("Instance: ")
	fmt.Println(st.Instance)
	cyan.Print("PID:      ")
	fmt.Println(st.PID)
	cyan.Print("Uptime:   ")
	fmt.Println((time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	cyan.Print("Store:    ")
	fmt.Printf("%s (%s)\n", st.StoreDriver, store)
	cyan.Print("Live:     ")
	fmt.Printf("%d conversation(s)\n", st.Topics)

	if len(st.Events) > 0 {
		cyan.Println("Events:")
		kinds := make([]string, 0, len(st.Events))
		for k := range st.Events {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("  %-24s %d\n", k, st.Events[k])
		}
	}
	return nil
}

func (c *cli) cmdInstances() error {
	list, err := instance.List()
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(list)
		return nil
	}
	if len(list) == 0 {
		fmt.Println("No instances found.")
		return nil
	}
	for _, in := range list {
		state := color.YellowString("stopped")
		if in.Running {
			state = color.GreenString("running")
		}
		fmt.Printf("%-20s %s (%s)\n", in.Name, in.Path, state)
	}
	return nil
}

func (c *cli) cmdConversations(ctx context.Context, cl *client.Client, args []string) error {
	limit, err := optionalInt(args, 0, 50)
	if err != nil {
		return err
	}
	convs, err := cl.ListConversations(ctx, limit, 0)
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(convs)
		return nil
	}
	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}
	cyan := color.New(color.FgCyan)
	for _, cv := range convs {
		cyan.Printf("%-20s ", cv.ConversationID)
		fmt.Printf("%s  %s\n", cv.LastActivityAt.Local().Format(time.DateTime), oneLine(cv.LastMessageBody, 60))
	}
	return nil
}

func (c *cli) cmdMessages(ctx context.Context, cl *client.Client, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	limit, err := optionalInt(args, 1, 50)
	if err != nil {
		return err
	}
	msgs, err := cl.ListMessages(ctx, args[0], limit)
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(msgs)
		return nil
	}
	for _, m := range msgs {
		printMessage(os.Stdout, m)
	}
	return nil
}

func (c *cli) cmdSend(ctx context.Context, cl *client.Client, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	msg, err := cl.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(msg)
		return nil
	}
	color.Green("Stored %s in %s\n", msg.ID, msg.ConversationID)
	return nil
}

func (c *cli) cmdWatch(ctx context.Context, cl *client.Client, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	w, err := cl.Watch(ctx, args[0])
	if err != nil {
		return err
	}
	for {
		f, err := w.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if c.jsonOut {
			outputJSON(f)
			continue
		}
		switch {
		case f.Status != "":
			color.Green("Watching %s (Ctrl-C to stop)\n", f.ConversationID)
		case f.Message != nil:
			printMessage(os.Stdout, *f.Message)
		}
	}
}

func (c *cli) cmdReplay(ctx context.Context, cl *client.Client, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep submitting files that appear in the directory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	paths := fs.Args()
	if len(paths) == 0 {
		return errUsage
	}

	files, err := replay.Collect(paths)
	if err != nil {
		return err
	}
	sum := replay.Files(ctx, cl, files, c.reportOutcome)
	if c.jsonOut {
		outputJSON(sum)
	} else {
		fmt.Printf("%d file(s): %d message(s), %d status update(s), %d unmatched, %d stale, %d failed\n",
			sum.Files, sum.Messages, sum.Statuses, sum.Unmatched, sum.Stale, sum.Failed)
	}

	if !*watch {
		if sum.Failed > 0 {
			return fmt.Errorf("%d file(s) failed", sum.Failed)
		}
		return nil
	}

	if len(paths) != 1 {
		return fmt.Errorf("--watch takes exactly one directory")
	}
	w, err := replay.NewWatcher(paths[0])
	if err != nil {
		return err
	}
	color.Cyan("Watching %s for new payloads (Ctrl-C to stop)\n", paths[0])
	return w.Run(ctx, cl, c.reportOutcome)
}

type outcomeJSON struct {
	replay.Outcome
	Error string `json:"error,omitempty"`
}

func (c *cli) reportOutcome(o replay.Outcome) {
	if c.jsonOut {
		out := outcomeJSON{Outcome: o}
		if o.Err != nil {
			out.Error = o.Err.Error()
		}
		outputJSON(out)
		return
	}
	if o.Err != nil {
		color.Red("FAIL %s: %v\n", o.Path, o.Err)
		return
	}
	color.New(color.FgGreen).Print("OK   ")
	fmt.Printf("%s: %d message(s), %d status update(s)", o.Path, o.Result.Messages, o.Result.Statuses)
	if o.Result.Unmatched > 0 {
		color.New(color.FgYellow).Printf(", %d unmatched", o.Result.Unmatched)
	}
	if o.Result.Stale > 0 {
		fmt.Printf(", %d stale", o.Result.Stale)
	}
	fmt.Println()
}

func (c *cli) cmdLink(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	addr, err := instance.HTTPAddr(c.instance)
	if err != nil {
		return fmt.Errorf("instance %q: %w", c.instance, err)
	}
	url := "ws://" + addr + "/api/ws/" + args[0]
	if c.jsonOut {
		outputJSON(map[string]string{"url": url})
		return nil
	}
	fmt.Print(views.RenderQR(url))
	fmt.Println(url)
	return nil
}

func (c *cli) cmdConfig(args []string) error {
	if len(args) != 1 || args[0] != "init" {
		return errUsage
	}
	path := instance.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	color.Green("Wrote %s\n", path)
	return nil
}

func printMessage(w io.Writer, m model.Message) {
	who := color.CyanString(m.ConversationID)
	if m.FromMe {
		who = color.GreenString("you")
	}
	fmt.Fprintf(w, "%s %s [%s] %s\n", m.CreatedAt.Local().Format(time.DateTime), who, m.Status, m.Body)
}

func optionalInt(args []string, i, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", args[i])
	}
	return n, nil
}

func oneLine(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
