package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/backend"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/bridge"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/config"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/httpserver"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/postcall"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/recording"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/storage"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/tools"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	settings := config.NewSettingsStore(config.DefaultAgentSettings())

	toolReg := tools.NewRegistry()
	search := tools.NewWebSearch()
	toolReg.Register(search.Definition(), search.Handle)
	dispatcher := tools.NewDispatcher(toolReg)

	summarizer := postcall.NewSummarizer(cfg.OpenAIAPIKey, cfg.SummaryModel)
	notifier := postcall.NewNotifier(cfg.WebhookURL, summarizer)

	registry := bridge.NewRegistry()
	handler := &bridge.Handler{
		Registry:   registry,
		Processor:  notifier,
		Dispatcher: dispatcher,
		Backends: func(callID string) bridge.BackendLink {
			return backend.NewClient(cfg.RealtimeURL, cfg.OpenAIAPIKey, func() wire.SessionConfig {
				return settings.Current().SessionConfig(toolReg.Definitions())
			})
		},
	}

	var recorder *recording.Recorder
	if cfg.TwilioAccountSID != "" && cfg.SupabaseURL != "" {
		store, err := storage.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		if err != nil {
			log.Fatalf("storage init: %v", err)
		}
		callbackURL := "https://" + cfg.PublicHost + "/twilio/recording-status"
		recorder = recording.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, callbackURL, store)
		handler.OnCallStart = recorder.Start
	} else {
		log.Printf("warning: recording disabled, missing telephony or storage credentials")
	}

	srv := httpserver.New(httpserver.Deps{
		Config:   cfg,
		Settings: settings,
		Handler:  handler,
		Recorder: recorder,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
