package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"calagent/internal/agent"
	"calagent/internal/caldav"
	"calagent/internal/config"
	"calagent/internal/dispatch"
	"calagent/internal/google"
	"calagent/internal/llm"
	"calagent/internal/microsoft"
	"calagent/internal/models"
	"calagent/internal/provider"
	"calagent/internal/speech"
	"calagent/internal/store"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calagent",
		Usage: "Manage your calendars with natural language.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "calagent.toml", Usage: "Path to the TOML config file."},
		},
		Commands: []*cli.Command{
			authCommand(),
			calendarsCommand(),
			askCommand(),
			transcribeCommand(),
			activityCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env is everything a command needs: config, store, adapters, registry,
// dispatcher. Built per invocation and closed when the command returns.
type env struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	google     *google.Adapter
	microsoft  *microsoft.Adapter
	registry   *provider.Registry
	dispatcher *dispatch.Dispatcher
}

// newAgent builds the interpretation agent on demand; commands that never
// interpret (auth, activity) work without an API key.
func (e *env) newAgent() (*agent.Agent, error) {
	completer, err := llm.NewOpenAIClient(e.cfg.LLM.APIKey, e.cfg.LLM.Model, e.cfg.LLM.BaseURL, e.cfg.LLMTimeout())
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	return agent.New(e.logger, completer)
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	gAdapter := google.New(logger, cfg.Google.ClientID, cfg.Google.ClientSecret, st)
	msAdapter := microsoft.New(logger, cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.TenantID, st)

	adapters := []provider.Adapter{gAdapter, msAdapter}
	if cfg.CalDAV.ServerURL != "" {
		cdAdapter, err := caldav.New(logger, cfg.CalDAV.ServerURL, cfg.CalDAV.Username, cfg.CalDAV.Password)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating caldav adapter: %w", err)
		}
		adapters = append(adapters, cdAdapter)
	}
	registry := provider.NewRegistry(logger, adapters...)

	return &env{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		google:     gAdapter,
		microsoft:  msAdapter,
		registry:   registry,
		dispatcher: dispatch.New(logger, registry, st),
	}, nil
}

func (e *env) close() {
	e.dispatcher.Wait()
	if err := e.store.Close(); err != nil {
		e.logger.Error("Failed to close store", "error", err)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a calendar provider.",
		Subcommands: []*cli.Command{
			{
				Name:  "google",
				Usage: "Authenticate with Google Calendar.",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					fmt.Printf("Go to the following link in your browser then type the "+
						"authorization code: \n%v\n", e.google.AuthURL())
					code, err := readLine("Enter Authorization Code: ")
					if err != nil {
						return err
					}
					if err := e.google.ExchangeCode(c.Context, code); err != nil {
						return err
					}
					e.logger.Info("Google authentication complete.")
					return nil
				},
			},
			{
				Name:  "microsoft",
				Usage: "Authenticate with Microsoft 365.",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					fmt.Printf("Go to the following link in your browser then type the "+
						"authorization code: \n%v\n", e.microsoft.AuthURL())
					code, err := readLine("Enter Authorization Code: ")
					if err != nil {
						return err
					}
					if err := e.microsoft.ExchangeCode(c.Context, code); err != nil {
						return err
					}
					e.logger.Info("Microsoft authentication complete.")
					return nil
				},
			},
			{
				Name:  "caldav",
				Usage: "Verify CalDAV credentials.",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					adapter, ok := e.registry.Get(models.ProviderCalDAV)
					if !ok {
						return fmt.Errorf("caldav is not configured, set CALDAV_SERVER_URL first")
					}
					if err := adapter.Authenticate(c.Context); err != nil {
						return err
					}
					e.logger.Info("CalDAV credentials verified.")
					return nil
				},
			},
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List calendars across all connected providers.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "cached", Usage: "List the locally cached calendars without contacting providers."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			calendars, err := listCalendars(c.Context, e, c.Bool("cached"))
			if err != nil {
				return err
			}
			for _, cal := range calendars {
				fmt.Printf("%s\t%s\t(%s)\n", cal.ID, cal.Name, cal.Provider)
			}
			return nil
		},
	}
}

// listCalendars fetches live calendars and refreshes the local cache.
// When every provider is unreachable it falls back to the cache so the
// agent still has calendar context to work with.
func listCalendars(ctx context.Context, e *env, cachedOnly bool) ([]models.Calendar, error) {
	if cachedOnly {
		return e.store.Calendars()
	}
	calendars, err := e.registry.Calendars(ctx)
	if err != nil {
		cached, cacheErr := e.store.Calendars()
		if cacheErr == nil && len(cached) > 0 {
			e.logger.Warn("All providers unreachable, using cached calendars", "error", err)
			return cached, nil
		}
		return nil, err
	}
	if err := e.store.SaveCalendars(calendars); err != nil {
		e.logger.Warn("Failed to cache calendars", "error", err)
	}
	return calendars, nil
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Interpret a natural language instruction and execute it.",
		ArgsUsage: "\"<instruction>\"",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "async", Usage: "Queue actions in the background; outcomes land in the activity log."},
		},
		Action: func(c *cli.Context) error {
			instruction := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if instruction == "" {
				return fmt.Errorf("usage: calagent ask \"<instruction>\"")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			return runInstruction(c.Context, e, instruction, c.Bool("async"))
		},
	}
}

// runInstruction is the shared path behind ask and transcribe: gather
// calendar context, interpret, report, dispatch. With async the message
// is reported before any action executes and outcomes are retained only
// in the outcome and activity logs.
func runInstruction(ctx context.Context, e *env, instruction string, async bool) error {
	ag, err := e.newAgent()
	if err != nil {
		return err
	}
	calendars, err := listCalendars(ctx, e, false)
	if err != nil {
		e.logger.Warn("No calendars available", "error", err)
	}

	interp := ag.Interpret(ctx, instruction, calendars, time.Now())
	fmt.Println(interp.Message)

	if len(interp.Actions) == 0 {
		return nil
	}
	if async {
		e.dispatcher.Enqueue(interp.Actions)
		fmt.Printf("Queued %d action(s); run 'calagent activity' for outcomes.\n", len(interp.Actions))
		return nil
	}
	for _, outcome := range e.dispatcher.Run(ctx, interp.Actions) {
		if outcome.Succeeded {
			fmt.Printf("  ok\t%s\t%s\n", outcome.Action.Type, outcome.Result)
		} else {
			fmt.Printf("  failed\t%s\t%s\n", outcome.Action.Type, outcome.Error)
		}
	}
	return nil
}

func transcribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Transcribe an audio file and execute the spoken instruction.",
		ArgsUsage: "<audio-file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "print-only", Usage: "Print the transcript without interpreting it."},
		},
		Action: func(c *cli.Context) error {
			audioPath := c.Args().First()
			if audioPath == "" {
				return fmt.Errorf("usage: calagent transcribe <audio-file>")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			var transcriber speech.Transcriber = speech.NewWhisperClient(
				e.cfg.LLM.APIKey, e.cfg.Speech.Model, e.cfg.LLM.BaseURL, e.cfg.LLMTimeout())
			transcript, err := transcriber.Transcribe(c.Context, audioPath)
			if err != nil {
				return fmt.Errorf("transcribing %s: %w", audioPath, err)
			}
			fmt.Printf("Transcript: %s\n", transcript)

			if c.Bool("print-only") {
				return nil
			}
			return runInstruction(c.Context, e, transcript, false)
		},
	}
}

func activityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Show recently executed actions.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of entries to show."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			entries, err := e.store.RecentActivity(c.Int("limit"))
			if err != nil {
				return err
			}
			for _, entry := range entries {
				status := "ok"
				detail := entry.Result
				if !entry.Succeeded {
					status = "failed"
					detail = entry.Error
				}
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
					entry.CreatedAt.Format(time.RFC3339), status, entry.ActionType, entry.CalendarID, detail)
			}
			return nil
		},
	}
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
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
