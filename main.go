package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/backbone/adapters/hasher"
	httpadapter "github.com/satriahrh/backbone/adapters/http"
	"github.com/satriahrh/backbone/adapters/llm"
	"github.com/satriahrh/backbone/adapters/message_broker"
	"github.com/satriahrh/backbone/adapters/speech"
	"github.com/satriahrh/backbone/adapters/tts"
	"github.com/satriahrh/backbone/adapters/websocket"
	"github.com/satriahrh/backbone/config"
	"github.com/satriahrh/backbone/domain"
	"github.com/satriahrh/backbone/usecase"
	"github.com/satriahrh/backbone/utils/log"
)

func main() {
	defer log.Sync()

	if err := run(); err != nil {
		log.With().Error("❌ Server stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	session := usecase.NewConversationSession(cfg.Session.SystemPrompt, completer, usecase.WithMessageBroker(broker))

	server := websocket.NewServer(session, broker)
	if err := server.Run(ctx); err != nil {
		return err
	}

	var (
		transcriber domain.Transcriber
		synthesizer domain.Synthesizer
	)
	if cfg.Voice.Enabled {
		googleSpeech, err := speech.NewGoogleSpeech(ctx, cfg.Voice.LanguageCode)
		if err != nil {
			return err
		}
		defer googleSpeech.Close()

		googleTTS, err := tts.NewGoogleTTS(ctx, cfg.Voice.LanguageCode)
		if err != nil {
			return err
		}
		defer googleTTS.Close()

		transcriber, synthesizer = googleSpeech, googleTTS
	}

	chatHandler := httpadapter.NewChatHandler(session, hasher.New(), transcriber, synthesizer)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			"If-None-Match",
		},
		ExposeHeaders: []string{"ETag", echo.HeaderXRequestID},
		MaxAge:        86400,
	}))

	e.Use(middleware.BodyLimit("10M"))

	e.GET("/ws", server.Handler)
	chatHandler.Register(e.Group("/api/v1"))

	logger := log.With(zap.String("session_id", session.ID()), zap.String("provider", cfg.Provider))
	logger.Info("🚀 Starting server", zap.String("addr", cfg.Server.Addr), zap.Bool("voice", cfg.Voice.Enabled))
	logger.Info("Available endpoints",
		zap.Strings("routes", []string{
			"GET  /api/v1/health",
			"GET  /api/v1/session",
			"PUT  /api/v1/session/draft",
			"POST /api/v1/session/messages",
			"POST /api/v1/session/audio",
			"GET  /api/v1/session/turns/:index/speech",
			"GET  /ws",
		}))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("🔒 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newCompleter(ctx context.Context, cfg config.Config) (domain.Completer, error) {
	var completer domain.Completer
	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := llm.NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		completer = gemini
	default:
		completer = llm.NewAzureClient(cfg.Azure)
	}

	if cfg.Session.StrictRoles {
		completer = llm.StrictCompleter{Completer: completer}
	}
	return completer, nil
}
