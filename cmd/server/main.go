package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley/internal/api"
	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/httpapi"
	"parley/internal/llm"
	"parley/internal/orchestrator"
	"parley/internal/store"
	"parley/internal/stt"
	"parley/internal/suggest"
	"parley/internal/tts"
	"parley/internal/words"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	apiClient := api.NewClient(logger, cfg.APIBaseURL, cfg.APIToken, nil)

	methods, err := apiClient.Methods(ctx)
	if err != nil {
		// An unreachable allow-list endpoint must not strand the client;
		// the selection is validated server-side as well.
		logger.Warn("could not fetch enabled methods, proceeding unrestricted", slog.String("error", err.Error()))
		methods = chat.MethodSet{}
	}

	sttClient := stt.NewClient(logger, apiClient, methods)
	llmClient := llm.NewClient(logger, apiClient, methods)
	ttsClient := tts.NewClient(logger, apiClient, methods)
	storeClient := store.NewClient(logger, apiClient)
	wordsClient := words.NewClient(logger, apiClient, cfg.DictionarySource, 0)

	engine := suggest.NewEngine(logger, llmClient, wordsClient, ttsClient, storeClient, cfg.TargetLang)

	orch := orchestrator.New(orchestrator.Deps{
		Logger:      logger,
		Transcriber: sttClient,
		Generator:   llmClient,
		Synthesizer: ttsClient,
		Store:       storeClient,
		Suggestions: engine,
		Methods:     methods,
		Selection: orchestrator.Selection{
			STT:        cfg.STTMethod,
			Generation: cfg.GenerationMethod,
			TTS:        cfg.TTSMethod,
		},
	})

	handler := httpapi.NewServer(logger, orch, engine, wordsClient, storeClient, cfg.TTSMethod, cfg.TargetLang)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", slog.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown server: %w", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
