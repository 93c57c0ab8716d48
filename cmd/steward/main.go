package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/config"
	"github.com/wpsteward/steward/internal/server"
	"github.com/wpsteward/steward/internal/service"
	"github.com/wpsteward/steward/internal/service/reminder"
	"github.com/wpsteward/steward/internal/service/wordpress"
	"github.com/wpsteward/steward/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var (
	syncPage    int
	syncAPIURL  string
	syncPerPage int
	syncNoEmbed bool
	importFile  string
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward - WordPress content stewardship service",
	Long:  `Steward mirrors WordPress posts into a local database, tracks who owns each post and reminds owners to review stale content.`,
	RunE:  runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServer,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync posts from the WordPress API",
	Long:  `Syncs a single page when --page is given, otherwise walks every page in order.`,
	RunE:  runSync,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import posts from a JSON file shaped like the WordPress API",
	RunE:  runImport,
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send reminder digests to responsible owners",
	RunE:  runRemind,
}

var totpCmd = &cobra.Command{
	Use:   "totp-secret",
	Short: "Generate a TOTP secret for dashboard login",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, url, err := service.GenerateSecret("admin")
		if err != nil {
			return err
		}
		fmt.Printf("Secret: %s\n", secret)
		fmt.Printf("URL:    %s\n", url)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Steward %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")

	syncCmd.Flags().IntVar(&syncPage, "page", 0, "sync only this page")
	syncCmd.Flags().StringVar(&syncAPIURL, "api-url", "", "WordPress posts endpoint (defaults to config)")
	syncCmd.Flags().IntVar(&syncPerPage, "per-page", 0, "posts per page (defaults to config)")
	syncCmd.Flags().BoolVar(&syncNoEmbed, "no-embed", false, "do not request embedded taxonomy terms")

	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "JSON file containing an array of posts")
	_ = importCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd, syncCmd, importCmd, remindCmd, totpCmd, versionCmd)
}

// bootstrap loads config, logger and database for one-shot commands.
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cfg, appLogger, db, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, appLogger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	history := service.NewHistoryService(db, appLogger)
	svc := wordpress.NewService(&cfg.WordPress, db, history, appLogger)

	opts := wordpress.Options{APIURL: syncAPIURL, Page: syncPage, PerPage: syncPerPage}
	if syncNoEmbed {
		embed := false
		opts.IncludeEmbedded = &embed
	}

	if cmd.Flags().Changed("page") {
		result, err := svc.SyncPage(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Println(result.Summary())
		return printJSON(result)
	}

	result, err := svc.SyncAll(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Println(result.Summary())
	return printJSON(result)
}

func runImport(*cobra.Command, []string) error {
	cfg, appLogger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	var posts []json.RawMessage
	if err := json.Unmarshal(data, &posts); err != nil {
		return fmt.Errorf("invalid JSON data, expected an array of posts: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	history := service.NewHistoryService(db, appLogger)
	svc := wordpress.NewService(&cfg.WordPress, db, history, appLogger)

	result := svc.Import(ctx, posts)
	fmt.Println(result.Summary())
	return nil
}

func runRemind(*cobra.Command, []string) error {
	cfg, appLogger, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	history := service.NewHistoryService(db, appLogger)
	batcher := reminder.NewBatcher(cfg.Mail, cfg.Reminder, db, history, appLogger)

	results, err := batcher.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println(reminder.Summary(results))
	return printJSON(results)
}

func runServer(*cobra.Command, []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Steward server", zap.String("version", version))

	// Create server
	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	// Graceful shutdown
	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
