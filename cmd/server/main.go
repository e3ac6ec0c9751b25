package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skyjofree/skyjo-server-go/internal/config"
	"github.com/skyjofree/skyjo-server-go/internal/game"
	"github.com/skyjofree/skyjo-server-go/internal/invite"
	"github.com/skyjofree/skyjo-server-go/internal/presence"
	"github.com/skyjofree/skyjo-server-go/internal/room"
	"github.com/skyjofree/skyjo-server-go/internal/server"
	"github.com/skyjofree/skyjo-server-go/internal/session"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting skyjo server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sessionMgr := session.NewManager(cfg.Server.LeasePeriod, cfg.Server.MaxSessions, logger)
	logger.Info("session manager initialized",
		zap.Duration("lease_period", cfg.Server.LeasePeriod),
		zap.Int("max_sessions", cfg.Server.MaxSessions),
	)
	go sessionMgr.CleanupExpiredSessions(ctx)

	roomMgr := room.NewManager(room.Config{
		MinPlayers: cfg.Game.MinPlayers,
		MaxPlayers: cfg.Game.MaxPlayers,
		ScoreLimit: cfg.Game.ScoreLimit,
	}, logger)
	logger.Info("room manager initialized",
		zap.Int("score_limit", cfg.Game.ScoreLimit),
		zap.Int("min_players", cfg.Game.MinPlayers),
		zap.Int("max_players", cfg.Game.MaxPlayers),
	)

	tracker := presence.NewTracker(cfg.Presence.GracePeriod, logger)
	logger.Info("presence tracker initialized",
		zap.Duration("grace_period", cfg.Presence.GracePeriod),
	)

	var gateway *server.Gateway
	inviteSvc := invite.NewService(invite.Config{
		MaxAttempts:  cfg.Invite.MaxAttempts,
		BaseDelay:    cfg.Invite.BaseDelay,
		DelayStep:    cfg.Invite.DelayStep,
		DedupeWindow: cfg.Invite.DedupeWindow,
	}, tracker, func(connID string, inv invite.Invitation) {
		gateway.DeliverInvite(connID, inv)
	}, logger)
	logger.Info("invite service initialized",
		zap.Int("max_attempts", cfg.Invite.MaxAttempts),
	)

	gateway = server.NewGateway(
		cfg.Server,
		game.ParseMode(cfg.Game.DefaultMode),
		sessionMgr,
		roomMgr,
		tracker,
		inviteSvc,
		logger,
	)

	go func() {
		if wsErr := gateway.Start(ctx); wsErr != nil {
			logger.Error("websocket server error", zap.Error(wsErr))
		}
	}()

	logger.Info("skyjo server initialized",
		zap.String("version", version),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	inviteSvc.CancelAll()
	sessionMgr.CloseAll()

	logger.Info("skyjo server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
