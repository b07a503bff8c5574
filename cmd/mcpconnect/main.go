// ABOUTME: Entry point for the mcpconnect debugging console server
// ABOUTME: Wires config, storage, streaming session, and the HTTP API

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/mcpconnect/internal/auth"
	"github.com/2389/mcpconnect/internal/config"
	"github.com/2389/mcpconnect/internal/conversation"
	"github.com/2389/mcpconnect/internal/dedupe"
	"github.com/2389/mcpconnect/internal/server"
	"github.com/2389/mcpconnect/internal/store"
	"github.com/2389/mcpconnect/internal/streaming"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                      _
 _ __ ___   ___ _ __   ___ ___  _ __  _ __   ___  ___| |_
| '_ ' _ \ / __| '_ \ / __/ _ \| '_ \| '_ \ / _ \/ __| __|
| | | | | | (__| |_) | (_| (_) | | | | | | |  __/ (__| |_
|_| |_| |_|\___| .__/ \___\___/|_| |_|_| |_|\___|\___|\__|
               |_|
`

var configPath string

// defaultConfigPath returns the path to the console config file.
// Priority: MCPCONNECT_CONFIG env var > XDG_CONFIG_HOME/mcpconnect/config.yaml
// > ~/.config/mcpconnect/config.yaml
func defaultConfigPath() string {
	if envPath := os.Getenv("MCPCONNECT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mcpconnect", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:           "mcpconnect",
		Short:         "MCP debugging console server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(serveCmd(), exportCmd(), tokenCmd(), healthCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the console server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Bridge.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Bridge:   %s\n", cfg.Bridge.URL)
	}
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	broadcaster := conversation.NewBroadcaster(logger)
	defer broadcaster.Close()
	conv := conversation.New(st, broadcaster, logger)
	session := streaming.NewSession(conv, logger)

	cache := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries)
	defer cache.Close()

	var verifier auth.TokenVerifier
	if cfg.Auth.Enabled {
		jwtVerifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		verifier = jwtVerifier

		// Mint a console token so the browser can authenticate immediately.
		token, err := jwtVerifier.Generate("console", cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("minting console token: %w", err)
		}
		gray.Printf("    console token: %s\n\n", token)
	}

	var metrics *server.Metrics
	if cfg.Metrics.Enabled {
		metrics = server.NewMetrics()
	}

	srv := server.New(server.Options{
		Store:        st,
		Conversation: conv,
		Session:      session,
		Source:       newBridgeSource(cfg.Bridge.URL, logger),
		Dedupe:       cache,
		Clients:      server.DefaultClientFactory(cfg.Upstream.RequestTimeout, logger),
		Verifier:     verifier,
		Metrics:      metrics,
		MetricsPath:  cfg.Metrics.Path,
		Logger:       logger,
	})

	logger.Info("starting mcpconnect",
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
		"auth", cfg.Auth.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Server.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a console API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate("console", ttl)
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
