package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scriptcast/internal/audio"
	"scriptcast/internal/generate"
	"scriptcast/internal/platform/config"
	"scriptcast/internal/platform/logger"
	"scriptcast/internal/platform/metrics"
	"scriptcast/internal/studio"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	apiKey := config.GetEnv("GEMINI_API_KEY", "")
	redisAddr := config.GetEnv("REDIS_ADDR", "")

	log := logger.New(os.Stdout, logLevel, logFormat)

	if apiKey == "" {
		log.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}

	ctx := context.Background()

	out, err := audio.NewOutput()
	if err != nil {
		log.Error("audio device init failed", "error", err)
		os.Exit(1)
	}

	gemini, err := generate.NewGemini(ctx, generate.GeminiConfig{
		APIKey:      apiKey,
		ScriptModel: config.GetEnv("GEMINI_SCRIPT_MODEL", ""),
		TTSModel:    config.GetEnv("GEMINI_TTS_MODEL", ""),
		ImageModel:  config.GetEnv("GEMINI_IMAGE_MODEL", ""),
	})
	if err != nil {
		log.Error("gemini client init failed", "error", err)
		os.Exit(1)
	}
	defer gemini.Close()

	var store studio.Store
	if redisAddr != "" {
		rs, err := studio.NewRedisStore(ctx, redisAddr,
			config.GetEnv("REDIS_PASSWORD", ""),
			config.GetEnvInt("REDIS_DB", 0))
		if err != nil {
			log.Error("redis connect failed", "addr", redisAddr, "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
		log.Info("using redis script store", "addr", redisAddr)
	} else {
		store = studio.NewInMemoryStore()
	}

	repo := studio.NewRepository(store)
	met := metrics.New()
	svc := studio.NewService(repo, studio.Generators{
		Script: gemini,
		Speech: gemini,
		Image:  gemini,
		Voice:  gemini,
	}, out, met, studio.Settings{
		AmbienceEnabled: config.GetEnvBool("AMBIENCE_ENABLED", true),
		AmbienceVolume:  config.GetEnvFloat("AMBIENCE_VOLUME", 0),
		Tick:            time.Duration(config.GetEnvInt("PROGRESS_TICK_MS", 0)) * time.Millisecond,
	})
	defer svc.Close()
	h := studio.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActivePlayback(svc.Coordinator().Occupied()) }).ServeHTTP(w, req)
	})
	r.Mount("/", h.Routes())

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
