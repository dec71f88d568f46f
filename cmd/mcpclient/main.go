// Command mcpclient is a small driver for the streamable HTTP transport,
// demonstrating the Transport Controller's lifecycle: connect, then send one
// JSON-RPC call, hold open the standalone listening stream, or terminate the
// session. On exit the transport is closed; no DELETE is sent then.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	kong "github.com/alecthomas/kong"
	"golang.org/x/oauth2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mcpstream/client/auth"
	"github.com/mcpstream/client/internal/metrics"
	"github.com/mcpstream/client/transport"
)

type CLI struct {
	Globals

	Send      SendCommand      `cmd:"" help:"Send a single JSON-RPC call and print the response"`
	Listen    ListenCommand    `cmd:"" help:"Open the standalone listening stream and print events"`
	Terminate TerminateCommand `cmd:"" help:"Terminate the current session"`
}

type Globals struct {
	URL      string `name:"url" help:"MCP server endpoint" required:""`
	Bearer   string `name:"bearer" help:"Static bearer token for Authorization" optional:""`
	LogFile  string `name:"log-file" help:"Path to a rotating log file; stderr if unset" optional:""`
	LogLevel string `name:"log-level" help:"debug, info, warn, or error" default:"info"`

	ctx context.Context
	tr  *transport.Transport
}

type SendCommand struct {
	Method string   `arg:"" help:"JSON-RPC method"`
	ID     string   `name:"id" help:"Request id (omit for a notification)" optional:""`
	Args   []string `arg:"" help:"Params as key=value pairs" optional:""`
}

type ListenCommand struct {
	ResumeFrom string `name:"resume-from" help:"Last-Event-ID to resume from" optional:""`
}

type TerminateCommand struct{}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("mcpclient"),
		kong.Description("MCP streamable HTTP transport client"),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	cli.ctx = ctx

	logger := cli.newLogger()
	slog.SetDefault(logger)

	tr, err := cli.connect(logger)
	kctx.FatalIfErrorf(err)
	cli.tr = tr
	defer tr.Close()

	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

func (g *Globals) newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(g.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if g.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   g.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func (g *Globals) connect(logger *slog.Logger) (*transport.Transport, error) {
	opts := &transport.Options{
		Logger:  logger,
		Metrics: metrics.NewRecorder(nil),
	}
	if g.Bearer != "" {
		opts.AuthProvider = &auth.StaticProvider{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.Bearer, TokenType: "Bearer"}),
		}
	}

	tr, err := transport.New(g.URL, opts)
	if err != nil {
		return nil, err
	}
	tr.OnMessage = func(m transport.Message) {
		printMessage(m)
	}
	tr.OnError = func(err error) {
		logger.Error("transport error", "error", err)
	}
	if err := tr.Start(g.ctx); err != nil {
		return nil, err
	}
	return tr, nil
}

func (cmd *SendCommand) Run(g *Globals) error {
	params, err := argsToJSON(cmd.Args)
	if err != nil {
		return err
	}

	var msg transport.Message
	if cmd.ID != "" {
		msg = &transport.Request{Method: cmd.Method, Params: params, ID: transport.StringID(cmd.ID)}
	} else {
		msg = &transport.Notification{Method: cmd.Method, Params: params}
	}

	ctx, cancel := context.WithTimeout(g.ctx, 30*time.Second)
	defer cancel()
	return g.tr.Send(ctx, msg)
}

func (cmd *ListenCommand) Run(g *Globals) error {
	fmt.Fprintln(os.Stderr, "listening; press ctrl-C to stop")
	return g.tr.Listen(g.ctx, cmd.ResumeFrom)
}

func (cmd *TerminateCommand) Run(g *Globals) error {
	if err := g.tr.TerminateSession(g.ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "session terminated")
	return nil
}

func printMessage(m transport.Message) {
	data, err := transport.EncodeMessage(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "<undecodable message: %v>\n", err)
		return
	}
	fmt.Println(string(data))
}

// argsToJSON converts key=value pairs into a JSON object, matching the
// convention used for tool and prompt arguments throughout the ecosystem:
// each value is parsed as JSON first (so numbers, booleans, and objects
// survive intact) and only falls back to a raw string if that fails.
func argsToJSON(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	m := make(map[string]any, len(args))
	for _, kv := range args {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("argument must be key=value, got %q", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(parts[1]), &v); err != nil {
			v = parts[1]
		}
		m[parts[0]] = v
	}
	return json.Marshal(m)
}
