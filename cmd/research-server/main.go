// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command research-server runs the deep-research orchestrator's HTTP
// entry points.
//
// Usage:
//
//	research-server serve --config pipeline.yaml
//	research-server serve --port 9000 --observe
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/deepresearch/internal/compression"
	"github.com/kadirpekel/deepresearch/internal/config"
	"github.com/kadirpekel/deepresearch/internal/coordinator"
	"github.com/kadirpekel/deepresearch/internal/federator"
	"github.com/kadirpekel/deepresearch/internal/httpapi"
	"github.com/kadirpekel/deepresearch/internal/llmclient"
	"github.com/kadirpekel/deepresearch/internal/observability"
	"github.com/kadirpekel/deepresearch/internal/papercache"
	"github.com/kadirpekel/deepresearch/internal/querycache"
	"github.com/kadirpekel/deepresearch/internal/sessionmgr"
	"github.com/kadirpekel/deepresearch/internal/source"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve ServeCmd `cmd:"" help:"Start the research HTTP server."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Config  string `short:"c" help:"Path to pipeline config YAML." type:"path"`
	Port    int    `help:"Port to listen on." default:"8080"`
	Observe bool   `help:"Enable OTLP tracing and Prometheus metrics."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Name("research-server"))

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err == nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	if err := ctx.Run(&cli); err != nil {
		slog.Error("research-server exited with error", "error", err)
		os.Exit(1)
	}
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	config.LoadDotEnv()

	env, err := config.LoadEnv()
	if err != nil {
		slog.Warn("OPENROUTER_API_KEY is not set; chat-stream requests will return 500 until it is", "error", err)
	}

	pipelineCfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("loading pipeline config: %w", err)
	}

	var obsCfg observability.Config
	obsCfg.SetDefaults()
	obsCfg.Tracing.Enabled = c.Observe
	obsCfg.Metrics.Enabled = c.Observe
	if err := obsCfg.Validate(); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}

	tracer, err := observability.NewTracer(ctx, &obsCfg.Tracing)
	if err != nil {
		return fmt.Errorf("creating tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics(&obsCfg.Metrics)

	papers := papercache.New(papercache.Config{})
	queries := querycache.New(querycache.Config{}, papers)
	fed := federator.New(federator.Config{
		Sources: buildSources(env),
		Cache:   queries,
		Papers:  papers,
	})

	llm := llmclient.New(llmclient.Config{APIKey: env.OpenRouterAPIKey})

	var compressor *compression.Service
	if pipelineCfg.EnableContextCompression {
		compressor = compression.New(compression.Config{}, llm)
	}

	sessions := sessionmgr.New(sessionmgr.Config{})
	coord := coordinator.New(pipelineCfg.ToCoordinatorConfig(), llm, fed, compressor, sessions)

	handler := httpapi.New(sessions, coord, papers, env, tracer, metrics)

	go sweepSessions(ctx, sessions, handler)

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	if metrics != nil {
		mux.Handle(observability.DefaultMetricsPath, metrics.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", c.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the chat-stream endpoint holds the connection open for the life of a session
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("research-server starting", "address", srv.Addr, "observe", c.Observe)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildSources constructs the enabled SourceClients. arXiv and OpenAlex
// have a usable unauthenticated tier so they're always included; PubMed
// degrades to a lower rate without a key so it's also always included;
// CORE requires an API key to authenticate at all, so it's only wired in
// when one is configured.
func buildSources(env config.Env) []source.Client {
	clients := []source.Client{
		source.NewArxivClient(source.ArxivConfig{}),
		source.NewOpenAlexClient(source.OpenAlexConfig{Email: env.OpenAlexEmail}),
		source.NewPubMedClient(source.PubMedConfig{APIKey: env.PubMedAPIKey}),
		source.NewSemanticScholarClient(source.SemanticScholarConfig{APIKey: env.SemanticScholarAPIKey}),
	}
	if env.CoreAPIKey != "" {
		clients = append(clients, source.NewCOREClient(source.COREConfig{APIKey: env.CoreAPIKey}))
	}
	return clients
}

// sweepSessions periodically evicts terminal sessions past their grace
// period, per spec.md §4.9, and drops their buffered replay frames along
// with them. Runs until ctx is cancelled.
func sweepSessions(ctx context.Context, sessions *sessionmgr.Manager, handler *httpapi.Handler) {
	ticker := time.NewTicker(sessionmgr.DefaultRemoveAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := sessions.Sweep()
			for _, id := range removed {
				handler.DropReplayBuffer(id)
			}
			if len(removed) > 0 {
				slog.Debug("swept terminal sessions", "count", len(removed))
			}
		}
	}
}
