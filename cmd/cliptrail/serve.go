package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cliptrail/cliptrail-agent/internal/api"
	"github.com/cliptrail/cliptrail-agent/internal/cloud"
	"github.com/cliptrail/cliptrail-agent/internal/config"
	"github.com/cliptrail/cliptrail-agent/internal/db"
	"github.com/cliptrail/cliptrail-agent/internal/history"
	"github.com/cliptrail/cliptrail-agent/internal/logging"
	"github.com/cliptrail/cliptrail-agent/internal/media"
	"github.com/cliptrail/cliptrail-agent/internal/playback"
	"github.com/cliptrail/cliptrail-agent/internal/presets"
	"github.com/cliptrail/cliptrail-agent/internal/trailer"
	"github.com/cliptrail/cliptrail-agent/internal/ui"
)

const doctorTimeout = 10 * time.Second

var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent: HTTP API on 127.0.0.1 plus the tray menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveHeadless)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray (also CLIPTRAIL_HEADLESS)")
	rootCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray (also CLIPTRAIL_HEADLESS)")
}

func runServe(parent context.Context, headless bool) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting cliptrail agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := history.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println(renderBanner(config.Version, cfg.Port(), authToken))

	store, err := presets.Open(cfg.PresetsPath(), logging.WithComponent(logger, "presets"))
	if err != nil {
		return fmt.Errorf("failed to open presets: %w", err)
	}

	doctor := media.NewCachedDoctor(media.ToolChecker{
		FFmpegBin:  cfg.FFmpegPath(),
		FFprobeBin: cfg.FFprobePath(),
		Logger:     logging.WithComponent(logger, "doctor"),
	}, logger)

	initCtx, initCancel := context.WithTimeout(parent, doctorTimeout)
	if caps, err := doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial tool check failed", "error", err)
	} else if !caps.Ready() {
		logger.Warn("ffmpeg or ffprobe unavailable, trailers cannot be created",
			"ffmpeg", caps.FFmpeg.Error, "ffprobe", caps.FFprobe.Error)
	}
	initCancel()

	up := cfg.Upload()
	uploadCfg := cloud.Config{
		APIURL:       up.APIURL,
		FileDropURL:  up.FileDropURL,
		ShareURL:     up.ShareURL,
		ClientID:     up.ClientID,
		ClientSecret: up.ClientSecret,
		Username:     up.Username,
		Password:     up.Password,
	}
	if !uploadCfg.Configured() {
		logger.Info("upload host not configured, uploads will fail until CLIPTRAIL_UPLOAD_* is set")
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	svc := trailer.NewService(trailer.ServiceConfig{
		Prober:   media.NewFFprobe(cfg.FFprobePath(), logging.WithComponent(logger, "ffprobe")),
		Presets:  store,
		Encoder:  media.NewFFmpegEncoder(cfg.FFmpegPath(), logging.WithComponent(logger, "ffmpeg")),
		Uploader: cloud.NewHTTPUploader(uploadCfg, logging.WithComponent(logger, "upload")),
		Renders:  repo,
		Logger:   logging.WithComponent(logger, "trailer"),
		Context:  ctx,
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		Service:        svc,
		PlaybackServer: playback.NewServer(logging.WithComponent(logger, "playback")),
		Repository:     repo,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if headless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Service: svc,
			Logger:  logging.WithComponent(logger, "tray"),
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo history.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
