package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/domain"
	"chat-relay/internal/integrations/deepseek"
	"chat-relay/internal/integrations/gemini"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/logging"
	"chat-relay/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if _, err := config.LoadEnvFiles(config.DefaultEnvFiles...); err != nil {
		slog.Error("failed to load env files", "err", err)
		os.Exit(1)
	}
	if err := run(context.Background(), os.LookupEnv, os.Stdout); err != nil {
		slog.Error("chat relay exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, lookup func(string) (string, bool), out io.Writer) error {
	// ---- Logging (before config so load diagnostics are kept) ----
	debug, logFile := config.LogSettings(lookup)
	logger, closer := logging.New(logging.Options{Debug: debug, File: logFile, Output: out})
	defer closer.Close()
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	var secrets config.SecretGetter
	if prefix, _ := lookup("PARAM_PREFIX"); prefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
		secrets = ssmClient
	}

	cfg, err := config.Load(ctx, lookup, secrets)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// ---- Clients ----
	clients := map[domain.Provider]usecase.LLMClient{}
	if cfg.GoogleAPIKey != "" {
		gc, err := gemini.NewClient(ctx, cfg.GoogleAPIKey,
			gemini.WithModel(cfg.GoogleModel),
			gemini.WithTimeout(cfg.ProviderTimeout),
		)
		if err != nil {
			return err
		}
		clients[domain.ProviderGoogle] = gc
	}
	if cfg.DeepSeekAPIKey != "" {
		dc, err := deepseek.NewClient(cfg.DeepSeekAPIKey,
			deepseek.WithBaseURL(cfg.DeepSeekBaseURL),
			deepseek.WithModel(cfg.DeepSeekModel),
			deepseek.WithHTTPClient(&http.Client{Timeout: cfg.ProviderTimeout}),
		)
		if err != nil {
			return err
		}
		clients[domain.ProviderDeepSeek] = dc
	}

	// ---- Handler ----
	svc, err := usecase.NewChatService(clients, logger)
	if err != nil {
		return err
	}
	slog.Info("providers configured", "providers", svc.Available())

	if fn, _ := lookup("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		h, err := handler.NewHandler(svc,
			handler.WithProduction(cfg.Production()),
			handler.WithAllowedOrigin(cfg.ClientOrigin),
		)
		if err != nil {
			return err
		}
		lambda.Start(h.Handle)
		return nil
	}

	h, err := handler.NewHandler(svc, handler.WithProduction(cfg.Production()))
	if err != nil {
		return err
	}
	return serve(cfg, newServerHandler(h, cfg.ClientOrigin))
}

func serve(cfg config.Config, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "origin", cfg.ClientOrigin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
