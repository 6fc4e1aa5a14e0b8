package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/stowh/ChatRoom/cmd/internal/auth/session"
	"github.com/stowh/ChatRoom/cmd/internal/realtime"
)

// BuildVersion is set at link time.
var BuildVersion = "dev"

// errReauth is returned once the hint has been printed.
var errReauth = errors.New("session ended, log in again")

// NewRootCommand builds the chatroom CLI. Flag defaults come from the
// CHATROOM_* environment, so flags override env.
func NewRootCommand() *cobra.Command {
	cfg := LoadConfig()

	root := &cobra.Command{
		Use:           "chatroom",
		Short:         "ChatRoom client",
		Long:          "Command-line client for the ChatRoom service: accounts, rooms and live channels.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "REST base URL")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "pretty|json")
	pf.StringVar(&cfg.TokenStore, "store", cfg.TokenStore, "token store: pebble|memory|postgres")
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for the pebble token store")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")

	run := func(fn func(ctx context.Context, cmd *cobra.Command, a *App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			c := cfg
			c.StateDir = expandHome(c.StateDir)
			a, err := New(ctx, c, NewLogger(c.LogLevel, c.LogFormat, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
			return reauthHint(cmd, fn(ctx, cmd, a, args))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the client version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Printf("%s\n", BuildVersion)
			},
		},
		registerCommand(run),
		loginCommand(run),
		&cobra.Command{
			Use:   "logout",
			Short: "End the current session",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, _ []string) error {
				a.Client().Logout(ctx)
				cmd.Println("logged out")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Validate the current session",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, _ []string) error {
				p, err := a.Client().ValidateSession(ctx)
				if err != nil {
					return err
				}
				if p.Login == "" && p.Email == "" {
					cmd.Printf("session valid: %s\n", strings.TrimSpace(string(p.Raw)))
					return nil
				}
				cmd.Printf("%s <%s> id=%s\n", p.Login, p.Email, p.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Check the service status",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, _ []string) error {
				st, err := a.Client().CheckServiceStatus(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("status=%s message=%q\n", st.Status, st.Message)
				if !st.OK() {
					return fmt.Errorf("service reported %q", st.Status)
				}
				return nil
			}),
		},
		roomsCommand(run),
		joinCommand(run),
	)
	return root
}

type runner = func(fn func(ctx context.Context, cmd *cobra.Command, a *App, args []string) error) func(*cobra.Command, []string) error

func registerCommand(run runner) *cobra.Command {
	var login, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, _ []string) error {
			if err := a.Client().Register(ctx, login, email, password); err != nil {
				return err
			}
			cmd.Printf("registered %s\n", login)
			return nil
		}),
	}
	cmd.Flags().StringVar(&login, "login", "", "account login")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("login")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCommand(run runner) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, _ []string) error {
			if err := a.Client().Login(ctx, email, password); err != nil {
				return err
			}
			cmd.Println("logged in")
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func roomsCommand(run runner) *cobra.Command {
	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "Manage rooms",
	}

	var name string
	var maxUsers int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, _ []string) error {
			room, err := a.Client().CreateRoom(ctx, name, maxUsers)
			if err != nil {
				return err
			}
			cmd.Printf("room %s created (%s, max %d)\n", room.ID, room.Name, room.MaxUsers)
			return nil
		}),
	}
	create.Flags().StringVar(&name, "name", "", "room name")
	create.Flags().IntVar(&maxUsers, "max-users", 10, "maximum number of members")
	_ = create.MarkFlagRequired("name")

	remove := &cobra.Command{
		Use:   "remove <room-id>",
		Short: "Remove a room",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, args []string) error {
			if err := a.Client().RemoveRoom(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("room %s removed\n", args[0])
			return nil
		}),
	}

	rooms.AddCommand(create, remove)
	return rooms
}

func joinCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a room channel: print messages and send stdin lines",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *App, args []string) error {
			return joinRoom(ctx, a, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		}),
	}
}

// joinRoom runs one channel session until ctx ends, stdin closes or the
// channel closes.
func joinRoom(ctx context.Context, a *App, roomID string, in io.Reader, out io.Writer) error {
	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		_, _ = fmt.Fprintf(out, format, args...)
	}

	var view *channelView
	h, err := openChannel(ctx, a, func(tok string) (*realtime.Handler, error) {
		view = newChannelView(roomID, printf)
		return a.Hub().Open(ctx, roomID, tok, view.events())
	})
	if err != nil {
		return err
	}
	defer a.Hub().Close(roomID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-view.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-view.closed:
			printf("* channel closed\n")
			err := view.err()
			if errors.Is(err, realtime.ErrInvalidToken) {
				a.Session().Invalidate(ctx)
				return fmt.Errorf("%w: %w", session.ErrSessionExpired, err)
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !h.Send(ctx, line) {
				printf("not connected\n")
			}
		}
	}
}

// openChannel validates the stored session, renewing an expired access token,
// then dials with the current token. A rejected handshake gets one renewal and
// one redial; a second rejection ends the session.
func openChannel(ctx context.Context, a *App, dial func(token string) (*realtime.Handler, error)) (*realtime.Handler, error) {
	tok, err := a.Client().AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, session.ErrNoRefreshToken
	}
	if _, err := a.Client().ValidateSession(ctx); err != nil {
		return nil, err
	}
	if tok, err = a.Client().AccessToken(ctx); err != nil {
		return nil, err
	}

	h, err := dial(tok)
	if !errors.Is(err, realtime.ErrInvalidToken) {
		return h, err
	}

	pair, err := a.Session().Renew(ctx)
	if err != nil {
		return nil, err
	}
	h, err = dial(pair.AccessToken)
	if errors.Is(err, realtime.ErrInvalidToken) {
		a.Session().Invalidate(ctx)
		return nil, fmt.Errorf("%w: %w", session.ErrSessionExpired, err)
	}
	return h, err
}

// channelView prints the events of one connection attempt and records how it
// ended.
type channelView struct {
	room   string
	printf func(format string, args ...any)

	mu        sync.Mutex
	lastErr   error
	closed    chan struct{}
	closeOnce sync.Once
}

func newChannelView(room string, printf func(string, ...any)) *channelView {
	return &channelView{room: room, printf: printf, closed: make(chan struct{})}
}

func (v *channelView) events() realtime.Events {
	return realtime.Events{
		OnOpen: func() { v.printf("* joined %s\n", v.room) },
		OnMessage: func(m realtime.InboundMessage) {
			who := m.SenderName
			if who == "" {
				who = m.SenderID
			}
			v.printf("[%s] %s: %s\n", m.ReceivedAt.Format("15:04:05"), who, m.Text)
		},
		OnError: func(err error) {
			v.mu.Lock()
			v.lastErr = err
			v.mu.Unlock()
			// Token rejections end in a renewal or the re-login hint.
			if !errors.Is(err, realtime.ErrInvalidToken) {
				v.printf("* channel error: %v\n", err)
			}
		},
		OnClose: func() { v.closeOnce.Do(func() { close(v.closed) }) },
	}
}

func (v *channelView) err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// reauthHint prints a re-authentication hint for session-ending errors.
func reauthHint(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if session.IsSessionEnded(err) {
		cmd.PrintErrf("error: %v\nrun `chatroom login` to start a new session\n", err)
		return errReauth
	}
	return err
}
