// dhectl is the control CLI for dhe-worker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"dhe/internal/config"
	"dhe/internal/ipc"
	"dhe/internal/keyboard"
)

var (
	socketPath = flag.String("socket", "", "control socket path (default: $DHE_SOCKET or $XDG_RUNTIME_DIR/dhe/dhe.sock)")
	jsonOutput = flag.Bool("json", false, "print replies as JSON")
	timeout    = flag.Duration("timeout", 10*time.Second, "request timeout")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	args := flag.Args()[1:]
	var err error
	switch cmd := flag.Arg(0); cmd {
	case "ping":
		err = cmdPing()
	case "status":
		err = cmdStatus()
	case "reload":
		err = cmdReload()
	case "paste":
		err = withClient(func(ctx context.Context, c *ipc.Client) error { return c.Paste(ctx) })
	case "tap":
		err = cmdTap(args)
	case "history":
		err = cmdHistory(args)
	case "metrics":
		err = cmdMetrics()
	case "check":
		err = cmdCheck(args)
	case "keys":
		cmdKeys()
	case "devices":
		err = cmdDevices()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dhectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `dhectl - Control utility for dhe-worker

Usage: dhectl [options] <command> [args]

Commands:
  ping              Check that the worker answers
  status            Show devices, bound actions and counters
  reload            Re-read the command file
  paste             Send Ctrl+V through the virtual keyboard
  tap <key>...      Press and release keys together (e.g. tap LCtrl C)
  history [n]       Show the last n dispatched actions (default 20)
  metrics           Print worker metrics in Prometheus text format
  check [file]      Validate a command file without a running worker
  keys              List key names accepted in the command file
  devices           List keyboards visible to the current user
  help              Show this help message

Options:`)
	flag.PrintDefaults()
}

func resolveSocket() string {
	if *socketPath != "" {
		return *socketPath
	}
	if v := os.Getenv("DHE_SOCKET"); v != "" {
		return v
	}
	return config.DefaultSocketPath()
}

func withClient(fn func(ctx context.Context, c *ipc.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := ipc.Dial(ctx, ipc.DefaultClientConfig(resolveSocket()))
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdPing() error {
	start := time.Now()
	return withClient(func(ctx context.Context, c *ipc.Client) error {
		if err := c.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("pong from %s in %s\n", resolveSocket(), time.Since(start).Round(time.Microsecond))
		return nil
	})
}

func cmdStatus() error {
	return withClient(func(ctx context.Context, c *ipc.Client) error {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(st)
		}

		fmt.Printf("Version:      %s\n", st.Version)
		fmt.Printf("Started:      %s (up %s)\n", st.StartedAt.Format(time.RFC3339), st.Uptime.Round(time.Second))
		fmt.Printf("Command file: %s\n", st.ConfigPath)
		if st.Health != nil {
			fmt.Printf("Health:       %s\n", st.Health.Status)
			names := make([]string, 0, len(st.Health.Components))
			for name := range st.Health.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				r := st.Health.Components[name]
				fmt.Printf("  %-18s %-10s %s%s\n", name, r.Status, r.Message, suffix(r.Error))
			}
		}

		fmt.Println("\nDevices:")
		if len(st.Devices) == 0 {
			fmt.Println("  none")
		}
		for _, d := range st.Devices {
			fmt.Printf("  %-20s %s (%04x:%04x)\n", d.Path, d.Name, d.Vendor, d.Product)
		}

		fmt.Println("\nActions:")
		printBindings(st.Actions)

		fmt.Println("\nCounters:")
		names := make([]string, 0, len(st.Metrics))
		for name := range st.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, name := range names {
			fmt.Fprintf(tw, "  %s\t%g\n", name, st.Metrics[name])
		}
		return tw.Flush()
	})
}

func suffix(errText string) string {
	if errText == "" {
		return ""
	}
	return " (" + errText + ")"
}

func printBindings(bindings []ipc.Binding) {
	if len(bindings) == 0 {
		fmt.Println("  none")
	}
	for _, b := range bindings {
		fmt.Printf("  %-20s %s\n", b.Name, strings.Join(b.Keys, "+"))
	}
}

func cmdReload() error {
	return withClient(func(ctx context.Context, c *ipc.Client) error {
		resp, err := c.Reload(ctx)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(resp)
		}
		fmt.Println("Reloaded. Actions:")
		printBindings(resp.Actions)
		return nil
	})
}

func cmdTap(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: dhectl tap <key>...")
	}
	if _, err := keyboard.ParseKeys(args); err != nil {
		return err
	}
	return withClient(func(ctx context.Context, c *ipc.Client) error { return c.Tap(ctx, args) })
}

func cmdHistory(args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid history length: %q", args[0])
		}
		limit = n
	}
	return withClient(func(ctx context.Context, c *ipc.Client) error {
		entries, err := c.History(ctx, limit)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(entries)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tACTION\tKEYS\tOUTCOME\tDURATION\tERROR")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"), e.Action, e.Keys, e.Outcome,
				e.Duration.Round(time.Millisecond), e.Error)
		}
		return tw.Flush()
	})
}

func cmdMetrics() error {
	return withClient(func(ctx context.Context, c *ipc.Client) error {
		text, err := c.Metrics(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Print(text)
		return err
	})
}

func cmdCheck(args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		path = config.FindCommandsFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("%s: ok (%d starters, %d actions)\n", path,
		len(cfg.StarterCommands()), len(cfg.ByHandler(config.HandlerActionListener)))
	return nil
}

func cmdKeys() {
	for _, k := range keyboard.AllKeys() {
		fmt.Println(k)
	}
}

func cmdDevices() error {
	devices, err := keyboard.ListDevices()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tID\tKEYS")
	for _, d := range devices {
		name := d.Name
		if d.IsVirtualKeyboard() {
			name += " (dhe)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%04x:%04x\t%d\n", d.Path, name, d.ID.Vendor, d.ID.Product, len(d.Keys))
	}
	return tw.Flush()
}
