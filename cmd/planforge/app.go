package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planforge/planforge/config"
	"github.com/planforge/planforge/events"
	"github.com/planforge/planforge/handson"
	"github.com/planforge/planforge/jobs"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/metrics"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/quality"
	"github.com/planforge/planforge/store"
	"github.com/planforge/planforge/structuring"
	"github.com/planforge/planforge/taskgen"
	"github.com/planforge/planforge/techsel"
	"github.com/planforge/planforge/tools/docfetch"
	"github.com/planforge/planforge/tools/websearch"
)

// app holds the wired service graph for one command invocation.
type app struct {
	cfg       *config.Config
	store     *store.Store
	registry  *model.Registry
	llm       *llm.Client
	search    *websearch.Client
	publisher *events.Publisher
	recorder  *metrics.Recorder
	logger    *slog.Logger
}

// newApp loads configuration and wires the store, model registry, tools,
// event publisher, and generation client.
func newApp(configPath string) (*app, error) {
	logger := slog.Default()

	cfg, err := config.NewLoader(logger).Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := model.NewDefaultRegistry()
	if cfg.Models.RegistryPath != "" {
		registry, err = model.LoadFromFile(cfg.Models.RegistryPath)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("load model registry: %w", err)
		}
	}
	model.InitGlobal(registry)

	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		publisher, err = events.Connect(cfg.NATS.URL, events.WithLogger(logger))
		if err != nil {
			// Events are advisory; a missing broker must not block planning.
			logger.Warn("NATS unavailable, events disabled", "url", cfg.NATS.URL, "error", err)
			publisher = nil
		}
	}

	recorder := metrics.NewRecorder()

	searcher := websearch.New(websearch.Options{
		BaseURL:    cfg.Search.BaseURL,
		APIKey:     os.Getenv(cfg.Search.APIKeyEnv),
		MaxResults: cfg.Search.MaxResults,
		Timeout:    cfg.Search.Timeout,
		Logger:     logger,
	})

	client := llm.NewClient(registry,
		llm.WithLogger(logger),
		llm.WithRecorder(recorder),
		llm.WithSearcher(searcher),
	)

	return &app{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		llm:       client,
		search:    searcher,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
	}, nil
}

func (a *app) close() {
	a.publisher.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Store close failed", "error", err)
	}
}

func (a *app) fetcher() *docfetch.Tool {
	return docfetch.New(docfetch.Options{
		AllowHosts:       a.cfg.Fetch.AllowHosts,
		DenyHosts:        a.cfg.Fetch.DenyHosts,
		MaxBodyBytes:     a.cfg.Fetch.MaxBodyBytes,
		MaxMarkdownChars: a.cfg.Fetch.MaxMarkdownChars,
		Timeout:          a.cfg.Fetch.Timeout,
		UserAgent:        a.cfg.Fetch.UserAgent,
		Logger:           a.logger,
	})
}

func (a *app) orchestrator() *jobs.Orchestrator {
	agent := handson.New(a.store, a.llm,
		handson.WithSearcher(a.search),
		handson.WithFetcher(a.fetcher()),
		handson.WithRecorder(a.recorder),
		handson.WithLogger(a.logger),
	)
	svc := taskgen.New(a.store, a.llm, a.cfg.TaskGen,
		taskgen.WithPublisher(a.publisher),
		taskgen.WithRecorder(a.recorder),
		taskgen.WithLogger(a.logger),
	)
	return jobs.New(a.store, agent, svc, a.cfg.Jobs,
		jobs.WithPublisher(a.publisher),
		jobs.WithRecorder(a.recorder),
		jobs.WithLogger(a.logger),
	)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parseProjectID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid project id %q: %w", arg, err)
	}
	return id, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func structureCmd(configPath *string) *cobra.Command {
	var requirementFile string

	cmd := &cobra.Command{
		Use:   "structure <project-id>",
		Short: "Structure requirement text into functions and dependencies",
		Long: `Runs the function structuring workflow for a project. Requirement text is
read from --file, or from stdin when no file is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseProjectID(args[0])
			if err != nil {
				return err
			}

			var text []byte
			if requirementFile != "" {
				text, err = os.ReadFile(requirementFile)
			} else {
				text, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read requirement text: %w", err)
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			w := structuring.New(a.store, a.llm, a.cfg.Structuring,
				structuring.WithPublisher(a.publisher),
				structuring.WithRecorder(a.recorder),
				structuring.WithLogger(a.logger),
			)
			res, err := w.Run(ctx, projectID, string(text))
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"functions":      len(res.Functions),
				"dependencies":   len(res.Dependencies),
				"coverage":       res.Coverage,
				"iterations":     res.Iterations,
				"low_confidence": res.LowConfidence,
				"run_errors":     res.RunErrors,
			})
		},
	}

	cmd.Flags().StringVarP(&requirementFile, "file", "f", "", "Requirement text file (default stdin)")
	return cmd
}

func tasksCmd(configPath *string) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "tasks <project-id>",
		Short: "Generate the task graph from structured functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.orchestrator().RunTaskGenBatch(ctx, projectID, taskgen.GenerateOptions{
				Overwrite: overwrite,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the project's existing tasks")
	return cmd
}

func qualityCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quality <project-id>",
		Short: "Evaluate and improve the task graph until acceptable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			e := quality.New(a.store, a.llm, a.cfg.Quality,
				quality.WithPublisher(a.publisher),
				quality.WithRecorder(a.recorder),
				quality.WithLogger(a.logger),
			)
			res, err := e.Improve(ctx, projectID)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func handsOnCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "handson <project-id>",
		Short: "Generate hands-on guides for every task as a batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.orchestrator().RunHandsOnBatch(ctx, projectID)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func recommendCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <project-id>",
		Short: "Recommend a technology stack per decision domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			svc := techsel.New(a.store, a.llm, techsel.WithLogger(a.logger))
			res, err := svc.Recommend(ctx, projectID)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the metrics endpoint and registry watcher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			metrics.NewServer(a.cfg.Metrics.Listen, a.recorder,
				metrics.WithLogger(a.logger)).Start(ctx)

			if a.cfg.Models.Watch && a.cfg.Models.RegistryPath != "" {
				watcher, err := model.NewWatcher(a.registry, a.cfg.Models.RegistryPath,
					model.WithWatcherLogger(a.logger))
				if err != nil {
					return fmt.Errorf("create registry watcher: %w", err)
				}
				if err := watcher.Start(ctx); err != nil {
					return fmt.Errorf("start registry watcher: %w", err)
				}
				defer func() { _ = watcher.Stop() }()
			}

			a.logger.Info("PlanForge serving",
				"version", Version,
				"metrics", a.cfg.Metrics.Listen,
				"events", a.cfg.NATS.Enabled)

			<-ctx.Done()
			a.logger.Info("Shutdown signal received")
			return nil
		},
	}
}
