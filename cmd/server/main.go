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

	"golang.org/x/sync/errgroup"

	"mastewalai/internal/config"
	"mastewalai/internal/ratelimit"
	"mastewalai/internal/server"
	"mastewalai/internal/usertoken"
	"mastewalai/internal/util"
	"mastewalai/pkg/ai"
	"mastewalai/pkg/queue"
	"mastewalai/pkg/rag"
	"mastewalai/pkg/storage"
	"mastewalai/pkg/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.FileConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, embeddingDim, err := buildEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(embeddingDim))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	files, err := buildFileStore(cfg)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.TokenSecret,
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
	})
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	ingestor := rag.NewIngestor(st, files, embedder)
	chat := rag.NewChat(st, rag.NewRetriever(st, embedder), rag.NewGenerator(generator))

	var reindexQueue *queue.RedisJobQueue
	var chatLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		stream := cfg.ReindexStream
		if stream == "" {
			stream = "reindex:documents"
		}
		reindexQueue, err = queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   stream,
			Group:    "indexer",
		})
		if err != nil {
			return fmt.Errorf("init reindex queue: %w", err)
		}
		reindexQueue.Start(ctx, 1, func(ctx context.Context, job queue.JobStatus) error {
			_, err := ingestor.Reindex(ctx, job.DocumentID)
			return err
		})

		if cfg.ChatRateLimit > 0 {
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			chatLimiter, err = ratelimit.NewFixedWindowLimiter(client, "mastewal:ratelimit", cfg.ChatRateLimit, time.Minute)
			if err != nil {
				return fmt.Errorf("init rate limiter: %w", err)
			}
		}
	}

	httpServer := server.New(server.Config{
		Chat:          chat,
		Ingestor:      ingestor,
		Store:         st,
		Queue:         reindexQueue,
		TokenVerifier: tokenVerifier,
		ChatLimiter:   chatLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func buildEmbedder(cfg config.FileConfig) (ai.Embedder, int, error) {
	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = 1024
	}
	switch cfg.EmbeddingBackend {
	case "", "voyage":
		embedder, err := ai.NewVoyageEmbedder(cfg.VoyageAPIKey, cfg.EmbeddingModel)
		return embedder, dim, err
	case "gemini":
		embedder, err := ai.NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.EmbeddingModel)
		return embedder, dim, err
	case "ollama":
		return ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.OllamaURL), cfg.EmbeddingModel, dim), dim, nil
	default:
		return nil, 0, fmt.Errorf("unknown embedding backend %q", cfg.EmbeddingBackend)
	}
}

func buildGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch cfg.GenerationBackend {
	case "", "gemini":
		model := cfg.GenerationModel
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return ai.NewGeminiGenerator(cfg.GeminiAPIKey, model)
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.OllamaURL), cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation backend %q", cfg.GenerationBackend)
	}
}

func buildFileStore(cfg config.FileConfig) (storage.FileStore, error) {
	if cfg.MinioEndpoint != "" {
		bucket := cfg.MinioBucket
		if bucket == "" {
			bucket = "documents"
		}
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, bucket, cfg.MinioUseSSL)
	}
	return storage.NewLocalStore(cfg.LocalStorage)
}
