package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retrochat-backend/internal/config"
	"retrochat-backend/internal/handlers"
	"retrochat-backend/internal/metrics"
	"retrochat-backend/internal/router"
	"retrochat-backend/internal/services"
	"retrochat-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting RetroChat Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("✗ Configuration invalid: %v", err)
	}
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Select Completion Provider ────
	provider, params := newProvider(cfg)
	credential := config.EnvCredential(cfg.CredentialEnv())
	if _, ok := credential(); !ok {
		// Not fatal: the chat endpoints answer with a configuration error
		// until the key is present.
		log.Printf("✗ %s is not set", cfg.CredentialEnv())
	}
	log.Printf("✓ %s provider ready (model %s)", cfg.Provider, params.Model)

	// ──── Step 3: Build Relays ────
	defaultPersona, err := services.LookupPersona(cfg.DefaultPersona)
	if err != nil {
		log.Fatalf("✗ %v", err)
	}
	classicRelay := services.NewRelay(defaultPersona, provider, credential, params)
	xpRelay := services.NewRelay(services.WinXPPersona, provider, credential, params)
	log.Printf("✓ Relays built (personas: %s, %s)", defaultPersona.Name, services.WinXPPersona.Name)

	// ──── Initialize Handlers ────
	relayMetrics := metrics.New()
	chatHandler := handlers.NewChatHandler(classicRelay, relayMetrics, cfg.MaxBodyBytes)
	xpChatHandler := handlers.NewChatHandler(xpRelay, relayMetrics, cfg.MaxBodyBytes)
	chatSocket := websocket.NewChatSocket(classicRelay, relayMetrics, cfg.FrontendURL)
	xpChatSocket := websocket.NewChatSocket(xpRelay, relayMetrics, cfg.FrontendURL)

	// ──── Step 4: Start HTTP Server ────
	r := router.New(
		chatHandler,
		xpChatHandler,
		chatSocket,
		xpChatSocket,
		relayMetrics,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StreamWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ RetroChat Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  Chat:    POST http://localhost:%s/api/chat", cfg.Port)
	log.Printf("  XP Chat: POST http://localhost:%s/api/xp/chat", cfg.Port)
	log.Printf("  WS:      ws://localhost:%s/api/chat/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func newProvider(cfg *config.Config) (services.CompletionProvider, services.SamplingParams) {
	params := services.SamplingParams{
		Temperature: services.DefaultTemperature,
		MaxTokens:   services.DefaultMaxTokens,
	}

	if cfg.Provider == config.ProviderGemini {
		params.Model = cfg.GeminiModel
		return services.NewGeminiProvider(), params
	}

	params.Model = cfg.OpenAIModel
	return services.NewOpenAIProvider(cfg.OpenAIBaseURL), params
}
