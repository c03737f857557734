package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	backendgemini "github.com/nanobanana/imagemcp/internal/backend/gemini"
	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/internal/lifecycle"
	"github.com/nanobanana/imagemcp/internal/logging"
	"github.com/nanobanana/imagemcp/internal/maintenance"
	"github.com/nanobanana/imagemcp/internal/orchestrator"
	remotegemini "github.com/nanobanana/imagemcp/internal/remote/gemini"
	"github.com/nanobanana/imagemcp/internal/resolution"
	"github.com/nanobanana/imagemcp/internal/selector"
	"github.com/nanobanana/imagemcp/internal/server"
	"github.com/nanobanana/imagemcp/internal/storage"
	"github.com/nanobanana/imagemcp/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagLogLevel string
	flagDryRun   bool
)

type App struct {
	Out        io.Writer
	Err        io.Writer
	LoadConfig func() (*config.Config, error)
}

func DefaultApp() *App {
	return &App{
		Out:        os.Stdout,
		Err:        os.Stderr,
		LoadConfig: config.Load,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagemcp",
		Short: "MCP server for AI image generation and editing",
		Long: `imagemcp exposes AI image generation and editing over the Model Context
Protocol. It speaks JSON-RPC on stdin/stdout, routes requests between a fast
and a quality model tier, stores generated images locally, and tracks their
remote file references through expiry.

The GEMINI_API_KEY (or GOOGLE_API_KEY) environment variable must be set.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(app)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio (the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(app)
		},
	}

	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run one maintenance cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintenance(app)
		},
	}
	maintenanceCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would change without changing it")

	cmd.AddCommand(serveCmd, maintenanceCmd)
	return cmd
}

type deps struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	storage  *storage.Storage
	tracker  *lifecycle.Tracker
	maint    *maintenance.Service
	orch     *orchestrator.Orchestrator
	resolver *resolution.Resolver
}

func buildDeps(app *App) (*deps, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(flagLogLevel)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	sto, err := storage.New(cfg.OutputDir, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	remoteStore, err := remotegemini.New(cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	tracker := lifecycle.New(st, remoteStore, cfg, log)

	be, err := backendgemini.New(cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	resolver := resolution.NewResolver(cfg, log)
	sel := selector.New(cfg, log)
	orch := orchestrator.New(be, resolver, sel, sto, tracker, log)
	maint := maintenance.New(st, sto, cfg, log)

	return &deps{
		cfg:      cfg,
		log:      log,
		store:    st,
		storage:  sto,
		tracker:  tracker,
		maint:    maint,
		orch:     orch,
		resolver: resolver,
	}, nil
}

func runServe(app *App) error {
	d, err := buildDeps(app)
	if err != nil {
		return err
	}
	defer d.store.Close()

	sched, err := maintenance.NewScheduler(d.maint, d.cfg.Maintenance.CronSchedule, d.log)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(d.cfg, d.orch, d.tracker, d.maint, d.store, d.storage, d.resolver, d.log)

	d.log.Info().Str("version", version).Str("output_dir", d.cfg.OutputDir).
		Msg("starting MCP server on stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		d.log.Info().Msg("shutting down")
		return nil
	}
}

func runMaintenance(app *App) error {
	d, err := buildDeps(app)
	if err != nil {
		return err
	}
	defer d.store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := d.maint.RunCycle(ctx, flagDryRun)
	if err != nil {
		return err
	}

	for _, sweep := range report.Sweeps {
		fmt.Fprintf(app.Out, "%s: examined %d, affected %d\n",
			sweep.Name, sweep.Examined, sweep.Affected)
		for _, detail := range sweep.Details {
			fmt.Fprintf(app.Out, "  %s\n", detail)
		}
		for _, msg := range sweep.Errors {
			fmt.Fprintf(app.Out, "  error: %s\n", msg)
		}
	}
	return nil
}
