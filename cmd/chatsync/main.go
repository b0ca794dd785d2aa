package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/database"
	"chatsync/internal/models"
	"chatsync/internal/retry"
	"chatsync/internal/service"
	"chatsync/internal/tracing"
	"chatsync/pkg/logsource"
	"chatsync/pkg/upload"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose        = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath     = flag.String("config", "config.json", "Path to configuration file")
	conversationID = flag.String("conversation", "", "Conversation to open")
	userID         = flag.String("user", "", "User to act as")
	version        = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatsync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatsync")

	if *conversationID == "" || *userID == "" {
		return fmt.Errorf("both -conversation and -user are required")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			if level > logrus.InfoLevel {
				level = logrus.InfoLevel
			}
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open outbox database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close outbox database: %v", err)
		}
	}()

	source := logsource.NewClient(logsource.ClientOptions{
		BaseURL:        cfg.LogSource.BaseURL,
		APIKey:         cfg.LogSource.APIKey,
		Timeout:        time.Duration(cfg.LogSource.TimeoutSec) * time.Second,
		ReconnectFeeds: cfg.LogSource.ReconnectFeeds,
		Backoff: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			Jitter:       true,
		},
		Logger: logger,
	})

	var uploader service.Uploader
	if cfg.Upload.BaseURL != "" {
		uploader = upload.NewClient(upload.ClientOptions{
			BaseURL: cfg.Upload.BaseURL,
			APIKey:  cfg.LogSource.APIKey,
			Timeout: time.Duration(cfg.Upload.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	}

	resolver := service.NewMentionResolver(source, logger)
	applier := service.NewMutationApplier(source, uploader, db, resolver, *userID, logger)

	var manager *service.SubscriptionManager
	onUpdate := func() {
		printTimeline(manager.Window().Snapshot())
	}
	manager = service.NewSubscriptionManager(source, *userID, service.SubscriptionOptions{
		TailSize:      cfg.Window.InitialTailSize,
		WindowCap:     cfg.Window.Cap,
		PageSize:      cfg.Window.PageSize,
		FlushInterval: time.Duration(cfg.Window.FlushIntervalMs) * time.Millisecond,
		OnUpdate:      onUpdate,
		Resolver:      resolver,
	}, logger)

	if err := manager.Open(ctx, *conversationID); err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}
	defer manager.Close()

	if err := applier.MarkRead(ctx, *conversationID); err != nil {
		logger.WithError(err).Warn("Failed to mark conversation read")
	}

	parked, err := db.ListRecords(ctx, *conversationID)
	if err != nil {
		logger.WithError(err).Warn("Failed to list parked sends")
	} else if len(parked) > 0 {
		logger.WithField("count", len(parked)).Info("Conversation has parked sends awaiting retry")
	}

	logger.Info("Watching conversation, press Ctrl+C to exit")
	<-ctx.Done()
	return nil
}

func printTimeline(messages []models.Message) {
	items := service.BuildTimeline(messages, time.Local)
	for _, item := range items {
		switch item.Kind {
		case service.ItemDateSeparator:
			fmt.Printf("---- %s ----\n", item.Date.Format("Mon, 02 Jan 2006"))
		case service.ItemMediaGroup:
			fmt.Printf("[%s] %d media attachments\n", item.Group[0].SenderID, totalMedia(item.Group))
		case service.ItemMessage:
			printMessage(item.Message)
		}
	}
	fmt.Println()
}

func printMessage(msg *models.Message) {
	prefix := msg.SenderID
	if msg.System {
		prefix = "*"
	}
	text := msg.Text
	if text == "" && msg.HasMedia() {
		text = "[media]"
	}
	if msg.Edited {
		text += " (edited)"
	}
	fmt.Printf("[%s] %s\n", prefix, text)
}

func totalMedia(group []models.Message) int {
	n := 0
	for _, msg := range group {
		n += len(msg.MediaURLs)
		if msg.StickerRef != "" {
			n++
		}
	}
	return n
}
