// Pharmacist - terminal client for the AI pharmacy assistant
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/pharma-chat/internal/config"
	"github.com/ashureev/pharma-chat/internal/endpoint"
	"github.com/ashureev/pharma-chat/internal/identity"
	"github.com/ashureev/pharma-chat/internal/orders"
	"github.com/ashureev/pharma-chat/internal/pharmacy"
	"github.com/ashureev/pharma-chat/internal/session"
	"github.com/ashureev/pharma-chat/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// options are the root flags shared by every command.
type options struct {
	backend   string
	dbPath    string
	noColor   bool
	ephemeral bool

	cfg    *config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{in: in, out: out}

	root := &cobra.Command{
		Use:   "pharmacist",
		Short: "Chat with the AI pharmacy assistant",
		Long: `pharmacist is a terminal client for the AI pharmacy assistant backend.

Conversations are kept as multiple local chat sessions. Orders the assistant
confirms are recorded in a local order history and mirrored to the backend.

Run without arguments to start the interactive chat.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts)
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "Backend base URL (overrides PHARMA_BACKEND_URL)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Local database path (overrides PHARMA_DB_PATH)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&opts.ephemeral, "ephemeral", false, "Keep all state in memory for this run only")

	root.AddCommand(
		newChatCmd(opts),
		newSessionsCmd(opts),
		newOrdersCmd(opts),
		newProfileCmd(opts),
		newBackendCmd(opts),
		newDevServerCmd(opts),
	)
	return root
}

// setup loads .env and configuration and installs the default logger.
func (o *options) setup() error {
	// A missing .env is the common case.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.backend != "" {
		cfg.BackendURL = o.backend
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	o.cfg = cfg

	o.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(o.logger)
	return nil
}

// app is the wired client: storage, identity, sessions, backend access and
// order tracking.
type app struct {
	kv       store.KV
	profiles *identity.Store
	sessions *session.Store
	resolver *endpoint.Resolver
	client   *pharmacy.Client
	orderLog *orders.Log
	tracker  *orders.Tracker
}

// openKV opens the profile database, or an in-memory store for
// --ephemeral runs.
func openKV(ctx context.Context, o *options) (store.KV, error) {
	if o.ephemeral {
		return store.NewMemory(), nil
	}
	kv, err := store.NewSQLite(o.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := kv.Ping(ctx); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	return kv, nil
}

func openApp(ctx context.Context, o *options) (*app, error) {
	kv, err := openKV(ctx, o)
	if err != nil {
		return nil, err
	}

	candidates := endpoint.Candidates(endpoint.Options{
		Override:          o.cfg.BackendURL,
		PersistedOverride: endpoint.LoadOverride(ctx, kv, o.logger),
		PageOrigin:        o.cfg.PageOrigin,
	})
	o.logger.Debug("backend candidates", "candidates", candidates)

	resolver := endpoint.NewResolver(candidates, nil, o.cfg.HTTPTimeout, o.logger)
	client := pharmacy.NewClient(resolver)
	profiles := identity.NewStore(kv, o.logger)
	profiles.ApplyDefaults(ctx, o.cfg.Username, o.cfg.Phone)
	sessions := session.New(kv, session.WithLogger(o.logger))
	orderLog := orders.NewLog(kv, o.logger)

	return &app{
		kv:       kv,
		profiles: profiles,
		sessions: sessions,
		resolver: resolver,
		client:   client,
		orderLog: orderLog,
		tracker: &orders.Tracker{
			Log:      orderLog,
			Prices:   client,
			Mirror:   client,
			History:  sessions,
			Profiles: profiles,
			Logger:   o.logger,
		},
	}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}
