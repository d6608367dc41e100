package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal"
	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/config"
	"github.com/tinyland-inc/clawgate/pkg/dedup"
	"github.com/tinyland-inc/clawgate/pkg/gate"
	"github.com/tinyland-inc/clawgate/pkg/logger"
	anthropicprovider "github.com/tinyland-inc/clawgate/pkg/providers/anthropic"
	openaiprovider "github.com/tinyland-inc/clawgate/pkg/providers/openai"
	"github.com/tinyland-inc/clawgate/pkg/registry"
	"github.com/tinyland-inc/clawgate/pkg/semantic"
	"github.com/tinyland-inc/clawgate/pkg/signature"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := dedup.NewTracker(cfg.DedupTTL(), cfg.DedupSweepInterval())
	tracker.Start()
	defer tracker.Stop()

	var regClient *registry.Client
	var policySource gate.PolicySource
	if cfg.Registry.BaseURL != "" {
		regClient = registry.NewClient(registry.Config{
			BaseURL:       cfg.Registry.BaseURL,
			Token:         cfg.Registry.Token,
			Timeout:       time.Duration(cfg.Registry.TimeoutSeconds) * time.Second,
			RetryAttempts: cfg.Registry.RetryAttempts,
		})
		cache := registry.NewPolicyCache(regClient, time.Duration(cfg.Registry.PolicyCacheTTLSeconds)*time.Second)
		policySource = cache

		if cfg.Registry.RefreshSchedule != "" {
			if err := cache.StartRefresh(ctx, cfg.Registry.RefreshSchedule); err != nil {
				return fmt.Errorf("error starting policy refresh: %w", err)
			}
			fmt.Printf("✓ Policy refresh scheduled: %s\n", cfg.Registry.RefreshSchedule)
		}
	} else {
		fmt.Println("⚠ Warning: No registry configured, gating with local rules only")
	}

	evaluator := semantic.NewEvaluator(buildCompleter(cfg), semantic.Config{
		Timeout:     cfg.SemanticTimeout(),
		Temperature: cfg.Semantic.Temperature,
		MaxTokens:   cfg.Semantic.MaxTokens,
	})

	var verifier *signature.Verifier
	if cfg.Gateway.WebhookSecret != "" {
		verifier = signature.NewVerifier(cfg.Gateway.WebhookSecret)
	} else {
		fmt.Println("⚠ Warning: No webhook secret configured, signature checks disabled")
	}

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()
	metrics := gate.NewMetrics()
	resolver := gate.NewResolver(cfg.Policy.Rules, cfg.Policy.Mode, policySource)

	inbound := gate.NewInboundGate(gate.InboundGateConfig{
		AgentID:   cfg.Agent.ID,
		AllowFrom: cfg.Agent.AllowFrom,
		Verifier:  verifier,
		Tracker:   tracker,
		Resolver:  resolver,
		Evaluator: evaluator,
		Bus:       msgBus,
		Metrics:   metrics,
	})

	var dispatcher gate.Dispatcher
	if cfg.Dispatch.TriggerURL != "" {
		dispatcher = gate.NewHTTPDispatcher(cfg.Dispatch.TriggerURL, time.Duration(cfg.Dispatch.TimeoutSeconds)*time.Second)
	} else {
		fmt.Println("⚠ Warning: No dispatch trigger URL configured, accepted messages are only logged")
		dispatcher = logDispatcher{}
	}
	go gate.RunDispatcher(ctx, msgBus, dispatcher)

	mux := http.NewServeMux()
	mux.Handle(cfg.Gateway.WebhookPath, inbound.WebhookHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","agent":%q}`, cfg.Agent.ID)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("gateway", "HTTP server error", map[string]any{"error": err.Error()})
		}
	}()
	fmt.Printf("✓ Gateway started on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("✓ Webhook endpoint: %s\n", cfg.Gateway.WebhookPath)

	var stream *registry.Stream
	if cfg.Registry.Stream.Enabled {
		stream = registry.NewStream(streamURL(cfg), cfg.Registry.Token, inbound.ProcessStream)
		stream.Start(ctx)
		fmt.Println("✓ Delivery stream enabled")
	}

	if cfg.Heartbeat.Enabled && regClient != nil && cfg.Agent.ID != "" {
		go heartbeatLoop(ctx, regClient, cfg.Agent.ID, cfg.Heartbeat.IntervalMinutes)
		fmt.Println("✓ Heartbeat service started")
	}

	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	if stream != nil {
		stream.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	cancel()
	fmt.Println("✓ Gateway stopped")

	return nil
}

func buildCompleter(cfg *config.Config) semantic.Completer {
	switch cfg.Semantic.Provider {
	case "openai":
		return openaiprovider.NewCompleter(cfg.Semantic.APIKey, cfg.Semantic.Model, cfg.Semantic.APIBase)
	default:
		return anthropicprovider.NewCompleter(cfg.Semantic.APIKey, cfg.Semantic.Model, cfg.Semantic.APIBase)
	}
}

// streamURL derives the websocket endpoint from the registry base URL when no
// explicit stream URL is configured.
func streamURL(cfg *config.Config) string {
	if cfg.Registry.Stream.URL != "" {
		return cfg.Registry.Stream.URL
	}
	url := cfg.Registry.BaseURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return strings.TrimRight(url, "/") + "/stream"
}

func heartbeatLoop(ctx context.Context, client *registry.Client, agentID string, intervalMinutes int) {
	if intervalMinutes < 1 {
		intervalMinutes = 5
	}
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.Heartbeat(ctx, agentID); err != nil {
				logger.WarnCF("heartbeat", "Heartbeat failed", map[string]any{
					"agent_id": agentID,
					"error":    err.Error(),
				})
			}
		case <-ctx.Done():
			return
		}
	}
}

// logDispatcher stands in when no trigger URL is configured.
type logDispatcher struct{}

func (logDispatcher) Dispatch(_ context.Context, msg bus.Message) error {
	logger.InfoCF("dispatch", "Accepted message (no trigger configured)", map[string]any{
		"message_id": msg.ID,
		"sender":     msg.Sender,
	})
	return nil
}
