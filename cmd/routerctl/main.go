// Command routerctl is an interactive console for a running router. It
// speaks the same IPC protocol as workflow executions, so listeners and
// commands can be tried by hand.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/sipeed/discord-router/pkg/ipc"
	"github.com/sipeed/discord-router/pkg/router"
)

const usage = `commands:
  acquire <token> <clientId>          connect a bot and make it current
  use <token>                         switch the current token
  release                             close the current token's connection
  listen <id> <kind> [filter json]    register a listener, events are printed
  unlisten <id>                       deregister a listener
  guilds | channels <guildId>... | roles <guildId>...
  send <channelId> <text>             send a plain message
  action <params json>                run a moderation action
  confirm <channelId> <text>          post a yes/no prompt and wait
  ping                                measure the round trip
  help | quit`

type console struct {
	client    *ipc.Client
	rl        *readline.Instance
	token     string
	listening map[string]bool
}

func main() {
	url := flag.String("url", "ws://127.0.0.1:18790/ipc", "Router IPC endpoint")
	key := flag.String("key", os.Getenv("ROUTER_IPC_API_KEY"), "API key")
	format := flag.String("format", ipc.CodecNameJSON, "Frame format: json or msgpack")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := ipc.Dial(ctx, *url, ipc.WithAPIKey(*key), ipc.WithFormat(*format))
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "routerctl:", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "router> ",
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("acquire"), readline.PcItem("use"), readline.PcItem("release"),
			readline.PcItem("listen"),
			readline.PcItem("unlisten"), readline.PcItem("guilds"), readline.PcItem("channels"),
			readline.PcItem("roles"), readline.PcItem("send"), readline.PcItem("action"),
			readline.PcItem("confirm"), readline.PcItem("ping"), readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "routerctl:", err)
		os.Exit(1)
	}
	defer rl.Close()

	c := &console{client: client, rl: rl, listening: make(map[string]bool)}
	fmt.Fprintln(rl.Stdout(), "connected to", *url, "- type help")

	go func() {
		<-client.Done()
		fmt.Fprintln(rl.Stdout(), "connection to router closed")
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "routerctl:", err)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := c.exec(line); err != nil {
			fmt.Fprintln(rl.Stdout(), "error:", err)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Close(ctx, false)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.routerctl_history"
}

func (c *console) exec(line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	// confirm waits on a human, acquire on a gateway login
	timeout := 30 * time.Second
	if cmd == "confirm" || cmd == "acquire" {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if cmd != "help" && cmd != "acquire" && cmd != "use" && cmd != "ping" && c.token == "" {
		return errors.New("no current token, run acquire first")
	}

	switch cmd {
	case "help":
		fmt.Fprintln(c.rl.Stdout(), usage)

	case "acquire":
		if len(args) != 2 {
			return errors.New("usage: acquire <token> <clientId>")
		}
		status, err := c.client.Acquire(ctx, router.Credential{Token: args[0], ClientID: args[1]})
		if err != nil {
			return err
		}
		c.token = args[0]
		c.print(status)

	case "use":
		if len(args) != 1 {
			return errors.New("usage: use <token>")
		}
		c.token = args[0]

	case "release":
		released, err := c.client.Release(ctx, c.token)
		if err != nil {
			return err
		}
		c.print(ipc.ReleaseResponse{Released: released})

	case "listen":
		return c.listen(ctx, args, rest)

	case "unlisten":
		if len(args) != 1 {
			return errors.New("usage: unlisten <id>")
		}
		removed, err := c.client.Deregister(ctx, args[0])
		delete(c.listening, args[0])
		if err != nil {
			return err
		}
		c.print(ipc.DeregisterResponse{Removed: removed})

	case "guilds":
		return c.printList(c.client.ListGuilds(ctx, c.token))
	case "channels":
		return c.printList(c.client.ListChannels(ctx, c.token, args))
	case "roles":
		return c.printList(c.client.ListRoles(ctx, c.token, args))

	case "send":
		channelID, text, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: send <channelId> <text>")
		}
		res, err := c.client.SendMessage(ctx, c.token, router.MessageParams{ChannelID: channelID, Content: text})
		if err != nil {
			return err
		}
		c.print(res)

	case "action":
		var p router.ActionParams
		if err := json.Unmarshal([]byte(rest), &p); err != nil {
			return fmt.Errorf("action params: %w", err)
		}
		res, err := c.client.SendAction(ctx, c.token, p)
		if err != nil {
			return err
		}
		c.print(res)

	case "confirm":
		channelID, text, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: confirm <channelId> <text>")
		}
		res, err := c.client.SendConfirmation(ctx, c.token, router.ConfirmParams{
			MessageParams: router.MessageParams{ChannelID: channelID, Content: text},
		})
		if err != nil {
			return err
		}
		c.print(res)

	case "ping":
		rtt, err := c.client.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.rl.Stdout(), "pong", rtt.Round(time.Microsecond))

	default:
		return fmt.Errorf("unknown command %q, type help", cmd)
	}
	return nil
}

func (c *console) listen(ctx context.Context, args []string, rest string) error {
	if len(args) < 2 {
		return errors.New("usage: listen <id> <kind> [filter json]")
	}
	req := ipc.RegisterRequest{
		Token:      c.token,
		ListenerID: args[0],
		Kind:       router.EventKind(args[1]),
		Active:     true,
	}
	if i := strings.Index(rest, "{"); i >= 0 {
		if err := json.Unmarshal([]byte(rest[i:]), &req.Filter); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}

	events, err := c.client.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.rl.Stdout(), "listening as", req.ListenerID)
	if c.listening[req.ListenerID] {
		return nil
	}
	c.listening[req.ListenerID] = true

	go func() {
		for ev := range events {
			fmt.Fprintf(c.rl.Stdout(), "[%s] %s %s\n", ev.ListenerID, ev.Name, ev.Data)
		}
	}()
	return nil
}

func (c *console) print(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), v)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), string(data))
}

func (c *console) printList(items []router.NamedID, err error) error {
	if err != nil {
		return err
	}
	for _, it := range items {
		fmt.Fprintf(c.rl.Stdout(), "%-20s %s\n", it.ID, it.Name)
	}
	if len(items) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "(none)")
	}
	return nil
}
