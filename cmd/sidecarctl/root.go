package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bazelment/agent-sidecar/logging"
	"github.com/bazelment/agent-sidecar/protocol"
	"github.com/bazelment/agent-sidecar/render"
	"github.com/bazelment/agent-sidecar/sidecar"
	"github.com/bazelment/agent-sidecar/transport/ws"
)

// version is stamped by the build.
var version = "dev"

// app holds flag values and the resolved configuration of one invocation.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	lookup func(string) (string, bool)

	configPath  string
	addr        string
	token       string
	permissions string
	logFormat   string
	jq          string
	verbose     bool
	noColor     bool
	jsonOut     bool

	cfg     Config
	logger  *slog.Logger
	cleanup func()
}

func newRootCmd(in io.Reader, out, errOut io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut, lookup: lookup, cleanup: func() {}}

	root := &cobra.Command{
		Use:   "sidecarctl",
		Short: "Drive agent sessions hosted by a sidecar",
		Long: `sidecarctl talks to an agent sidecar over gRPC (or a WebSocket for
ws:// addresses). It runs prompts, streams turns as they happen, watches
session activity and manages sessions on the control plane.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.cleanup()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: $"+envConfig+" or ./sidecarctl.yaml)")
	pf.StringVar(&a.addr, "addr", "", "Sidecar address, host:port or ws://host/path (default: "+defaultAddr+")")
	pf.StringVar(&a.token, "token", "", "Bearer token (default: $"+envToken+")")
	pf.StringVar(&a.permissions, "permissions", "", "Permission callback: read-only, bypass, prompt or deny")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&a.jsonOut, "json", false, "Output as JSON")
	pf.StringVar(&a.jq, "jq", "", "Filter JSON output through a jq expression (implies --json)")

	root.AddCommand(
		newRunCmd(a),
		newStreamCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newSessionsCmd(a),
		newHealthCmd(a),
	)
	return root
}

// setup resolves configuration: defaults, then the config file, then the
// environment, then explicitly set flags.
func (a *app) setup(cmd *cobra.Command) error {
	path, required := a.configPath, a.configPath != ""
	if path == "" {
		if v, ok := a.lookup(envConfig); ok && v != "" {
			path, required = v, true
		} else {
			path = "sidecarctl.yaml"
		}
	}
	cfg, err := LoadConfig(path, required)
	if err != nil {
		return err
	}
	cfg.applyEnv(a.lookup)

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = a.addr
	}
	if flags.Changed("token") {
		cfg.Token = a.token
	}
	if flags.Changed("permissions") {
		cfg.Permissions = a.permissions
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	a.cfg = cfg
	if a.jq != "" {
		a.jsonOut = true
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	opts := logging.Options{Level: level, Format: format, Verbose: a.verbose}
	if cfg.LogDir != "" {
		logger, logFile, cleanup := logging.NewWithFile(a.errOut, cfg.LogDir, opts)
		a.logger, a.cleanup = logger, cleanup
		a.logger.Debug("logging to file", "path", logFile)
	} else {
		a.logger = logging.New(a.errOut, opts)
	}
	return nil
}

func (a *app) clientOptions() []sidecar.Option {
	opts := []sidecar.Option{
		sidecar.WithLogger(a.logger),
		sidecar.WithToken(a.cfg.Token),
		sidecar.WithClientInfo(sidecar.ClientInfo{
			Name:     "sidecarctl",
			Version:  version,
			Protocol: protocol.ProtocolVersion,
		}),
	}
	if a.cfg.CallbackTimeout > 0 {
		opts = append(opts, sidecar.WithCallbackTimeout(a.cfg.CallbackTimeout))
	}
	return opts
}

func (a *app) dial() (*sidecar.Client, error) {
	if isWebSocket(a.cfg.Addr) {
		return nil, fmt.Errorf("control-plane calls need a gRPC address, got %s", a.cfg.Addr)
	}
	return sidecar.Dial(a.cfg.Addr, a.clientOptions()...)
}

func isWebSocket(addr string) bool {
	return strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://")
}

// attached is an open session plus what must be released with it.
type attached struct {
	*sidecar.Session
	client *sidecar.Client
}

func (s *attached) Close() error {
	err := s.Session.Close()
	if s.client != nil {
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// attach opens sessionID, creating a session first when it is empty.
func (a *app) attach(ctx context.Context, sessionID string, opts ...sidecar.Option) (*attached, error) {
	handlers, err := a.handlers()
	if err != nil {
		return nil, err
	}

	if isWebSocket(a.cfg.Addr) {
		if sessionID == "" {
			return nil, fmt.Errorf("--session is required for WebSocket addresses")
		}
		t, err := ws.Dial(ctx, a.cfg.Addr, ws.WithToken(a.cfg.Token))
		if err != nil {
			return nil, err
		}
		s, err := sidecar.NewSession(ctx, t, sessionID, handlers, append(a.clientOptions(), opts...)...)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		return &attached{Session: s}, nil
	}

	client, err := a.dial()
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		created, err := client.CreateSession(ctx, protocol.SessionConfig{
			Model:          a.cfg.Model,
			PermissionMode: a.cfg.PermissionMode,
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("create session: %w", err)
		}
		sessionID = created.SessionID
		a.logger.Info("created session", "session_id", sessionID)
	}
	s, err := client.AttachSession(ctx, sessionID, handlers, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &attached{Session: s, client: client}, nil
}

func (a *app) handlers() (sidecar.Handlers, error) {
	var perm sidecar.PermissionHandler
	switch a.cfg.Permissions {
	case permBypass:
		perm = sidecar.BypassPermissions()
	case permDeny:
		perm = func(context.Context, *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
			return sidecar.PermissionDeny("denied by sidecarctl"), nil
		}
	case permPrompt:
		if f, ok := a.in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
			return sidecar.Handlers{}, fmt.Errorf("--permissions=%s needs an interactive terminal", permPrompt)
		}
		readOnly := sidecar.ReadOnlyPermissions()
		decide := func(ctx context.Context, req *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
			d, err := readOnly(ctx, req)
			if err != nil || d.Behavior == protocol.PermissionBehaviorAllow {
				return d, err
			}
			return sidecar.PermissionAsk("confirmation required"), nil
		}
		perm = sidecar.AskConfirmHandler(decide, sidecar.ConsoleConfirm(a.in, a.errOut))
	default:
		perm = sidecar.ReadOnlyPermissions()
	}
	return sidecar.Handlers{Permission: perm}, nil
}

func (a *app) jsonWriter() (*jsonWriter, error) {
	return newJSONWriter(a.out, a.jq)
}

func (a *app) renderer() *render.Renderer {
	return render.NewRenderer(a.out, a.verbose, a.noColor)
}
