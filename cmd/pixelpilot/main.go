package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"pixelpilot/internal/auth"
	"pixelpilot/internal/chat"
	"pixelpilot/internal/config"
	"pixelpilot/internal/countries"
	"pixelpilot/internal/exchange"
	"pixelpilot/internal/persist"
	"pixelpilot/internal/server"
	"pixelpilot/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	store, err := newPersistStore(cfg)
	if err != nil {
		util.Fatal("failed to init persist store", "err", err)
	}

	challenges, err := newChallengeStore(cfg)
	if err != nil {
		util.Fatal("failed to init otp challenge store", "err", err)
	}

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		util.Fatal("failed to parse session ttl", "err", err)
	}
	sendDelay, err := config.ParseDelay("otpSendDelay", cfg.OTPSendDelay)
	if err != nil {
		util.Fatal("failed to parse otp send delay", "err", err)
	}
	resendDelay, err := config.ParseDelay("otpResendDelay", cfg.OTPResendDelay)
	if err != nil {
		util.Fatal("failed to parse otp resend delay", "err", err)
	}

	directory := countries.NewDirectory(countries.NewHTTPSource(cfg.CountriesBaseURL))

	engine := auth.NewEngine(auth.Options{
		Persist:     store,
		Challenges:  challenges,
		Directory:   directory,
		TokenSecret: []byte(cfg.SessionSecret),
		SessionTTL:  sessionTTL,
		SendDelay:   sendDelay,
		ResendDelay: resendDelay,
	})
	if err := engine.Rehydrate(); err != nil {
		util.Fatal("failed to restore auth state", "err", err)
	}
	defer engine.Close()

	chats := chat.NewStore(store)
	if err := chats.Rehydrate(); err != nil {
		util.Fatal("failed to restore chat state", "err", err)
	}

	attachments, err := newAttachments(cfg)
	if err != nil {
		util.Fatal("failed to init attachment store", "err", err)
	}
	sim := exchange.NewSimulator(chats, exchange.Options{Attachments: attachments})
	defer sim.Close()

	httpServer := server.New(server.Config{
		Auth:      engine,
		Chats:     chats,
		Exchange:  sim,
		Countries: directory,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("pixelpilot listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
	}
}

func newPersistStore(cfg config.FileConfig) (persist.Store, error) {
	switch cfg.PersistStrategy {
	case "", "file":
		return persist.NewFileStore(cfg.DataDir)
	case "postgres":
		return persist.NewGormStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown persist strategy %q", cfg.PersistStrategy)
	}
}

func newChallengeStore(cfg config.FileConfig) (auth.ChallengeStore, error) {
	switch cfg.OTPStrategy {
	case "", "memory":
		return auth.NewMemoryChallengeStore(nil, auth.MemoryChallengeOptions{}), nil
	case "redis":
		return auth.NewRedisChallengeStore(cfg.RedisAddr, cfg.RedisPassword)
	default:
		return nil, fmt.Errorf("unknown otp strategy %q", cfg.OTPStrategy)
	}
}

func newAttachments(cfg config.FileConfig) (exchange.Attachments, error) {
	switch cfg.AttachmentStrategy {
	case "", "inline":
		return exchange.InlineAttachments{}, nil
	case "minio":
		return exchange.NewMinioAttachments(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioUseSSL,
		)
	default:
		return nil, fmt.Errorf("unknown attachment strategy %q", cfg.AttachmentStrategy)
	}
}
