package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/config"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/connection"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/rest"
)

var version = "0.1.0"

var (
	cfgFile   string
	verbose   bool
	tokenFlag string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rc2sync",
		Short: "Synchronize an rc2 workspace with the local cache",
		Long: `rc2sync connects to an rc2 server, mirrors a workspace's files into the
local cache and runs an interactive session against it.

Configuration is read from ~/.config/rc2sync/config.yaml and RC2_*
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer token (overrides auth.token)")

	root.AddCommand(
		newOpenCmd(),
		newCacheCmd(),
		newImportCmd(),
		newInfoCmd(),
		newTokenCmd(),
		newWorkspaceCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by commands that talk to a server.
type app struct {
	cfg   *config.Config
	info  *connection.Info
	rest  *rest.Client
	model *connection.Model
}

// loadApp reads configuration, initializes logging and fetches the bulk info
// snapshot into a fresh connection model.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.LoggingConfig()
	if verbose {
		logCfg.Level = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	token := cfg.Auth.Token
	if tokenFlag != "" {
		token = tokenFlag
	}
	if token == "" {
		return nil, errors.New("no token: set auth.token, RC2_AUTH_TOKEN or --token")
	}
	info, err := connection.NewInfo(cfg.Host(), token)
	if err != nil {
		return nil, err
	}
	info.Platform = cfg.Server.ClientPlatform
	info.Build = cfg.Server.Build
	if info.TokenExpired(0) {
		return nil, fmt.Errorf("token for %s expired at %s", info.TokenInfo.Login, info.TokenInfo.ExpiresAt.Format(time.RFC3339))
	}

	restCfg := info.RESTConfig(cfg.Session.RequestTimeout)
	restCfg.RetryConfig = cfg.RetryConfig()
	client := rest.New(restCfg)

	bulk, err := client.FetchBulkInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch workspace info: %w", err)
	}
	info.User = bulk.User

	model := connection.NewModel(16)
	model.Update(bulk)

	logging.Debug("connected",
		logging.String("host", cfg.Host().String()),
		logging.String("login", bulk.User.Login),
		logging.Int("projects", len(bulk.Projects)))

	return &app{cfg: cfg, info: info, rest: client, model: model}, nil
}

func (a *app) close() {
	logging.Sync()
}

// startMetrics serves /metrics when enabled. The returned func stops the server.
func (a *app) startMetrics() func() {
	if !a.cfg.Metrics.Enabled {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
	go func() {
		logging.Info("metrics server listening", logging.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", logging.Err(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
