package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noisewatch/internal/config"
	"noisewatch/internal/evaluator"
	"noisewatch/internal/intake"
	"noisewatch/internal/logger"
	"noisewatch/internal/middleware"
	"noisewatch/internal/notify"
	"noisewatch/internal/state"
)

// Processor is the high-level coordinator for consuming change events,
// evaluating alert state, and serving the ops endpoints.
type Processor struct {
	cfg        *config.Config
	store      state.Store
	evaluator  *evaluator.Evaluator
	consumer   *intake.Consumer
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.initStore()
	defer p.store.Close()

	dispatcher := notify.NewTelegramDispatcher(p.cfg.Telegram)
	if p.cfg.Telegram.BotToken == "" || p.cfg.Telegram.ChatID == "" {
		log.Warn().Msg("telegram credentials not configured, alerts will not be delivered")
	}

	p.evaluator = evaluator.New(p.store, dispatcher, p.cfg.Alerting)
	log.Info().
		Float64("high_threshold_db", p.cfg.Alerting.HighNoiseThresholdDB).
		Int("high_persistence", p.cfg.Alerting.HighPersistenceThreshold).
		Int("low_persistence", p.cfg.Alerting.LowPersistenceThreshold).
		Msg("evaluator initialized")

	// Kafka consumer
	if len(p.cfg.Kafka.Brokers) > 0 {
		p.consumer = intake.NewConsumer(p.cfg.Kafka, p.evaluator)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.consumer.Run(ctx); err != nil {
				// A consumer failure is fatal so the uncommitted event
				// gets redelivered to a fresh instance
				log.Error().Err(err).Msg("consumer exited with error")
				cancel()
			}
		}()
		log.Info().
			Strs("brokers", p.cfg.Kafka.Brokers).
			Str("topic", p.cfg.Kafka.Topic).
			Msg("kafka consumer initialized")
	}

	p.initHTTPServer()

	// Start HTTP server in background
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Graceful shutdown
	return p.shutdown()
}

// initStore selects the alert-state backend.
func (p *Processor) initStore() {
	log := logger.WithComponent("processor")
	if p.cfg.RedisAddr != "" {
		p.store = state.NewRedisStore(p.cfg.RedisAddr)
		log.Info().Str("addr", p.cfg.RedisAddr).Msg("redis alert-state store initialized")
		return
	}
	p.store = state.NewMemoryStore()
	log.Warn().Msg("no redis address configured, using in-memory alert-state store")
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Processor) initHTTPServer() {
	mux := http.NewServeMux()

	// Webhook handler (with middleware)
	eventHandler := intake.NewEventHandler(intake.EventHandlerConfig{
		Evaluator: p.evaluator,
	})
	mux.Handle("/events", middleware.Chain(
		eventHandler,
		middleware.Recovery,
		middleware.Logging,
		middleware.Auth(p.cfg.APIKey),
	))

	// Health check
	mux.HandleFunc("/health", p.healthHandler)

	// Stats endpoint
	mux.HandleFunc("/stats", p.statsHandler)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close the consumer so the group rebalances promptly
	if p.consumer != nil {
		log.Info().Msg("closing kafka consumer")
		if err := p.consumer.Close(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}

	// 3. Wait for goroutines (with timeout)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("processor stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timeout - forcing exit")
	}

	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.consumer == nil {
				continue
			}
			stats := p.consumer.Stats()
			log.Info().
				Uint64("events_handled", stats.Handled).
				Uint64("events_failed", stats.Failed).
				Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Check state store connectivity
	if err := p.store.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	var stats intake.Stats
	if p.consumer != nil {
		stats = p.consumer.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"consumer": {
			"handled": %d,
			"failed": %d
		}
	}`,
		stats.Handled,
		stats.Failed,
	)
}
