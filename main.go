package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"docuchat/features/chat"
	"docuchat/features/document"
	"docuchat/internal/adapter/gemini"
	"docuchat/internal/adapter/openai"
	"docuchat/internal/config"
	"docuchat/internal/extract"
	"docuchat/internal/index"
	"docuchat/internal/llm"
	"docuchat/internal/logger"
	"docuchat/internal/middleware"
	"docuchat/internal/retrieval"
	"docuchat/internal/session"
	"docuchat/internal/summary"
	"docuchat/internal/worker"
)

const systemPrompt = "You are a helpful assistant."

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Provider Adapters
	pacer := llm.NewPacer(cfg.MaxQPS, cfg.MaxRetries, time.Duration(cfg.BackoffBase*float64(time.Second)))

	var embedder llm.Embedder
	var generator retrieval.Generator

	switch cfg.Provider {
	case "openai":
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.ChatModel, cfg.EmbedMaxBytes, pacer)
		if err != nil {
			slog.Error("failed to create openai client", "error", err)
			os.Exit(1)
		}
		embedder, generator = client, client
	default:
		client, err := gemini.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.EmbedModel, cfg.ChatModel, cfg.EmbedMaxBytes, pacer)
		if err != nil {
			slog.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		embedder, generator = client, client
	}

	// 3. Core Services
	state := session.NewState(systemPrompt)
	handle := index.NewHandle(cfg.CacheDir)
	builder := index.NewBuilder(embedder, cfg.CacheDir, cfg.EmbedBatchSize, cfg.ChunkSize, cfg.ChunkOverlap)
	summarizer := summary.NewService(generator)

	// Warm the index from disk in the background. The probe call discovers
	// the embedding dimension; artifacts from a previous run load as-is.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		store, _, err := builder.BuildOrUpdate(ctx, nil)
		if err != nil {
			slog.Warn("failed to warm index from disk", "error", err)
			return
		}
		handle.Set(store)
		slog.Info("index warmed", "chunks", store.Count(), "dimension", store.Dimension())
	}()

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(embedder, generator, handle, retrieval.Config{
		K:             cfg.RAGTopK,
		Widen:         cfg.WidenFactor,
		MinSimilarity: float32(cfg.MinSimilarity),
		MMRLambda:     cfg.MMRLambda,
	}, queryLogger)

	// 4. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish, but a consumer querying lookupd
	// 404s until then. Pre-create the topic over nsqd's HTTP port.
	host, _, _ := net.SplitHostPort(cfg.NSQDHost)
	if host == "" {
		host = cfg.NSQDHost
	}
	topicURL := fmt.Sprintf("http://%s:4151/topic/create?topic=%s", host, worker.TopicIngestTask)
	go func() {
		time.Sleep(2 * time.Second)
		resp, err := http.Post(topicURL, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create ingest topic", "error", err, "url", topicURL)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			slog.Info("ingest topic pre-created")
		}
	}()

	// 5. Ingest Worker
	// MaxInFlight 1 on a single channel keeps index builds strictly serial.
	if cfg.EnableIndexerWorker {
		ingest := worker.NewIngestConsumer(extract.Text, summarizer, builder, handle, state, cfg.MinFiles)

		consumerCfg := nsq.NewConfig()
		consumerCfg.MaxInFlight = 1
		consumer, err := nsq.NewConsumer(worker.TopicIngestTask, worker.ChannelIngest, consumerCfg)
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
		} else {
			consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
				return ingest.HandleMessage(m)
			}))
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("NSQ ingest consumer connected")
			}
		}
	}

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// 6. Routes
	documentService := document.NewService(state, handle, nsqProducer, cfg.MinFiles)
	documentHandler := document.NewHandler(documentService, cfg.UploadDir, int(cfg.MaxUploadSizeMB))

	chatHandler := chat.NewHandler(retrievalService, state)

	http.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	http.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	http.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	http.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	http.Handle("POST /index/clear", middleware.CorrelationID(enableCORS(documentHandler.ClearIndex)))
	http.Handle("GET /index/stats", middleware.CorrelationID(enableCORS(documentHandler.Stats)))

	http.Handle("POST /chat/ask", middleware.CorrelationID(enableCORS(chatHandler.Ask)))
	http.Handle("GET /chat/history", middleware.CorrelationID(enableCORS(chatHandler.History)))
	http.Handle("DELETE /chat/history", middleware.CorrelationID(enableCORS(chatHandler.ResetHistory)))
	http.Handle("PUT /scope", middleware.CorrelationID(enableCORS(chatHandler.SetScope)))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// 7. Start Server
	slog.Info("server starting", "port", cfg.ServerPort, "provider", cfg.Provider)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
