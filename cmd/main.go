package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eventdash/internal/actions"
	"eventdash/internal/agent"
	"eventdash/internal/caldav"
	"eventdash/internal/config"
	"eventdash/internal/google"
	"eventdash/internal/models"
	"eventdash/internal/readable"
	"eventdash/internal/session"
	"eventdash/internal/server"
	"eventdash/internal/store"
	"eventdash/internal/syncer"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "eventdash",
		Usage: "Schedule events and expose them to a conversational assistant.",
		Commands: []*cli.Command{
			serveCommand(),
			eventsCommand(),
			addCommand(),
			actionsCommand(),
			chatCommand(),
			exportCommand(),
			syncCommand(),
			authCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// instance is what every command needs: configuration, logger and a session
// over the configured store.
type instance struct {
	cfg     *config.Config
	logger  *slog.Logger
	loc     *time.Location
	session *session.Session
	closers []func()
}

func (rt *instance) Close() {
	rt.session.Close()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func bootstrap(ctx context.Context, withSinks bool) (*instance, error) {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	rt := &instance{cfg: cfg, logger: logger, loc: loc}

	st, closeStore, err := openStore(ctx, cfg.Backend, cfg, logger, loc)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeStore)

	var sinks []readable.Sink
	if withSinks && cfg.RedisURL != "" {
		sink, client, err := readable.NewRedisSink(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			closeStore()
			return nil, err
		}
		logger.Info("Publishing readable state to Redis", "channel", sink.Channel())
		sinks = append(sinks, sink)
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}

	sess, err := session.New(st, session.Options{Logger: logger, Location: loc, Sinks: sinks})
	if err != nil {
		for _, c := range rt.closers {
			c()
		}
		return nil, err
	}
	rt.session = sess
	return rt, nil
}

func openStore(ctx context.Context, backend string, cfg *config.Config, logger *slog.Logger, loc *time.Location) (store.Store, func(), error) {
	noop := func() {}
	switch backend {
	case config.BackendMemory:
		logger.Warn("Using the in-memory store; events are lost on exit")
		return store.NewMemory(), noop, nil
	case config.BackendSQLite:
		db, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("Opened SQLite store", "path", db.Path())
		return db, func() { _ = db.Close() }, nil
	case config.BackendCalDAV:
		st, err := caldav.NewStore(ctx, logger, cfg.CalDAVEndpoint, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendarName, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create caldav store: %w", err)
		}
		return st, noop, nil
	case config.BackendGoogle:
		st, err := google.NewStore(ctx, logger, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleAccount, cfg.GoogleCalendarID, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create google store: %w", err)
		}
		return st, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}

func newAssistant(ctx context.Context, rt *instance) (*agent.Assistant, error) {
	gen, err := agent.NewGeminiGenerator(ctx, rt.cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	return agent.New(gen, rt.cfg.GeminiModel, rt.session.Registry, rt.session.Exporter, rt.logger.With("component", "agent")), nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Address to listen on. Overrides EVENTDASH_LISTEN."},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := server.Options{Logger: rt.logger.With("component", "server"), Location: rt.loc}
			if rt.cfg.GeminiAPIKey != "" {
				assistant, err := newAssistant(ctx, rt)
				if err != nil {
					return fmt.Errorf("failed to create assistant: %w", err)
				}
				opts.Assistant = assistant
			} else {
				rt.logger.Info("GEMINI_API_KEY not set, chat endpoint disabled")
			}

			addr := rt.cfg.Listen
			if c.IsSet("listen") {
				addr = c.String("listen")
			}
			srv := server.New(addr, rt.session, opts)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			}
		},
	}
}

func dateFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "date", Usage: "Date as YYYY-MM-DD. Defaults to today."}
}

func dateOrToday(c *cli.Context, loc *time.Location) string {
	if d := c.String("date"); d != "" {
		return d
	}
	return time.Now().In(loc).Format(models.DateLayout)
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List the events of one date.",
		Flags: []cli.Flag{dateFlag()},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			inv, err := rt.session.Invoke(c.Context, actions.FetchEventsAction, actions.Args{"date": dateOrToday(c, rt.loc)})
			fmt.Println(inv.Render())
			return err
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add an event with the default venue, guests and services.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: "Date as YYYY-MM-DD."},
			&cli.StringFlag{Name: "time", Required: true, Usage: "Time as HH:mm."},
			&cli.StringFlag{Name: "type", Required: true, Usage: "Event type, e.g. Birthday."},
		},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			inv, err := rt.session.Invoke(c.Context, actions.AddEventAction, actions.Args{
				"date":      c.String("date"),
				"time":      c.String("time"),
				"eventType": c.String("type"),
			})
			fmt.Println(inv.Render())
			if err != nil {
				return err
			}
			if ev, ok := inv.Result.(models.Event); ok && ev.ID == "" {
				return errors.New("event was not saved, see the log for the store error")
			}
			return nil
		},
	}
}

func actionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "actions",
		Usage: "Describe the actions offered to the assistant.",
		Action: func(c *cli.Context) error {
			reg := actions.NewRegistry(setupLogger("error"))
			if err := actions.RegisterEventActions(reg, actions.EventOptions{}); err != nil {
				return err
			}
			for _, a := range reg.Descriptors() {
				fmt.Printf("%s: %s\n", a.Name, a.Description)
				for _, p := range a.Parameters {
					req := ""
					if p.Required {
						req = ", required"
					}
					fmt.Printf("  %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
				}
			}
			return nil
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the assistant on the terminal.",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			assistant, err := newAssistant(c.Context, rt)
			if err != nil {
				return fmt.Errorf("failed to create assistant: %w", err)
			}
			ctx := rt.session.Context(c.Context)

			reader := bufio.NewReader(os.Stdin)
			for {
				fmt.Print("> ")
				line, err := reader.ReadString('\n')
				line = strings.TrimSpace(line)
				if line != "" {
					reply, sendErr := assistant.Send(ctx, line)
					for _, inv := range reply.Invocations {
						fmt.Println(inv.Render())
					}
					if sendErr != nil {
						rt.logger.Error("Assistant turn failed", "error", sendErr)
					} else {
						fmt.Println(reply.Text)
					}
				}
				if err != nil {
					return nil
				}
			}
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the events of one date as iCalendar to stdout.",
		Flags: []cli.Flag{dateFlag()},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			events := rt.session.Cache.FetchEvents(c.Context, dateOrToday(c, rt.loc))
			return readable.EncodeICS(os.Stdout, events, rt.loc, time.Now())
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror upcoming events into the EVENTDASH_MIRROR calendar.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Number of days to mirror, starting today."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds."},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.Load()
			logger := setupLogger(cfg.LogLevel)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.MirrorBackend == "" {
				return fmt.Errorf("EVENTDASH_MIRROR environment variable not set")
			}
			if cfg.MirrorBackend == cfg.Backend {
				return fmt.Errorf("EVENTDASH_MIRROR must differ from EVENTDASH_BACKEND")
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			source, closeSource, err := openStore(ctx, cfg.Backend, cfg, logger, loc)
			if err != nil {
				return err
			}
			defer closeSource()
			target, closeTarget, err := openStore(ctx, cfg.MirrorBackend, cfg, logger, loc)
			if err != nil {
				return err
			}
			defer closeTarget()

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}
			s, err := syncer.NewSyncer(logger, source, target, syncer.Options{
				StateFile: cfg.SyncStateFile,
				DryRun:    c.Bool("dry-run"),
				Location:  loc,
			})
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			if !c.IsSet("watch") {
				logger.Info("Running a single sync cycle.")
				if _, err := s.Sync(ctx, c.Int("days")); err != nil {
					return fmt.Errorf("single sync cycle failed: %w", err)
				}
				return nil
			}

			interval := time.Duration(c.Int("watch")) * time.Second
			logger.Info("Starting watcher.", "interval", interval)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if _, err := s.Sync(ctx, c.Int("days")); err != nil {
					logger.Error("Sync cycle failed", "error", err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			if accounts, err := google.GetTokenAccounts("."); err == nil && len(accounts) > 0 {
				logger.Info("Already authenticated accounts", "accounts", accounts)
			}

			config, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, config, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token. Set GOOGLE_ACCOUNT to use it.", "file", tokenFile, "account", accountName)
			return nil
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
