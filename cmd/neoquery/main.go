// Package main is the entry point for the NeoQuery server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neoquery/internal/agent"
	"neoquery/internal/cache/response"
	"neoquery/internal/config"
	"neoquery/internal/docindex"
	"neoquery/internal/embedding"
	"neoquery/internal/httpapi"
	"neoquery/internal/provider"
	"neoquery/internal/rag"
	"neoquery/internal/router"
	"neoquery/internal/semantic"
	"neoquery/internal/sqlclient"
	"neoquery/internal/telemetry"
)

const defaultIndexPath = "neo_cache.db"

func main() {
	configPath := flag.String("config", "config.toml", "Path to configuration file")
	port := flag.Int("port", 0, "Override the HTTP port")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)
	if *port != 0 {
		cfg.Server.HTTPPort = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	tel, shutdown, err := telemetry.Init(telemetry.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		LogFormat:      cfg.Telemetry.LogFormat,
		LogLevel:       cfg.Telemetry.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer shutdown()
	logger := tel.Logger

	logger.Info("Starting NeoQuery",
		"http_port", cfg.Server.HTTPPort,
		"provider", cfg.Agent.Provider,
		"model", cfg.Agent.Model,
	)

	// One pooled client is shared by every upstream call. Per-request
	// deadlines come from contexts, not a client-wide timeout, because
	// agent queries may legitimately run for minutes.
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	db := sqlclient.New(&cfg.Sources, httpClient, tel.Metrics, logger.With("component", "sqlclient"))
	sem := semantic.New(db, logger.With("component", "semantic"))
	rt := router.New(db, tel.Metrics, logger.With("component", "router"))

	// The embedder backs both the response cache and the document index.
	// Lazy construction keeps startup fast when a remote embedder is slow
	// or unreachable.
	embedder := embedding.NewLazy(cfg.Embedder)

	var cacheSvc *response.Service
	if cfg.Cache.Enabled {
		repo, err := response.NewRepository(cfg.Cache)
		if err != nil {
			logger.Warn("Response cache disabled", "driver", cfg.Cache.Driver, "error", err)
		} else {
			cacheSvc = response.NewService(cfg.Cache, repo, embedder, tel.Metrics, logger.With("component", "cache"))
			logger.Info("Response cache initialized",
				"driver", cfg.Cache.Driver,
				"threshold", cfg.Cache.Threshold,
				"ttl", cfg.Cache.CacheTTL(),
			)
		}
	}

	llm, err := provider.New(cfg.Agent, tel.Metrics, logger.With("component", "provider"))
	if err != nil {
		logger.Error("Failed to initialize LLM provider", "provider", cfg.Agent.Provider, "error", err)
		os.Exit(1)
	}
	logger.Info("LLM provider initialized", "provider", llm.Name())

	var models *provider.ModelCatalog
	if lister, ok := llm.(provider.ModelLister); ok {
		models = provider.NewModelCatalog(lister, logger.With("component", "models"))
	}

	registry := agent.NewRegistry(sem, db, tel.Metrics, logger.With("component", "tools"))
	var agentCache agent.ResponseCache
	if cacheSvc != nil {
		agentCache = cacheSvc
	}
	ag := agent.New(cfg.Agent, llm, registry, rt, agentCache, tel.Metrics, logger.With("component", "agent"))

	var index *docindex.Service
	var indexer *docindex.Indexer
	if cfg.DocIndex.Enabled {
		path := cfg.Cache.Path
		if path == "" {
			path = defaultIndexPath
		}
		store, err := docindex.Open(path)
		if err != nil {
			logger.Warn("Document index disabled", "path", path, "error", err)
		} else {
			defer store.Close()
			index = docindex.NewService(store, embedder, logger.With("component", "docindex"))
			indexer = docindex.NewIndexer(store, db, embedder, cfg.DocIndex.MaxRowsPerCollection,
				tel.Metrics, logger.With("component", "docindex"))
			logger.Info("Document index initialized", "path", path)
		}
	}

	ragSvc := rag.New(cfg.Agent, llm, logger.With("component", "rag"))

	server := httpapi.NewServer(httpapi.Deps{
		Config:    cfg,
		DB:        db,
		Semantic:  sem,
		Router:    rt,
		Agent:     ag,
		Cache:     cacheSvc,
		Index:     index,
		Indexer:   indexer,
		RAG:       ragSvc,
		Models:    models,
		Telemetry: tel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("NeoQuery ready",
		"api_endpoint", fmt.Sprintf("http://localhost:%d/api", cfg.Server.HTTPPort),
		"metrics", cfg.Telemetry.MetricsEnabled,
	)

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
	logger.Info("NeoQuery stopped")
}
