package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragdesk/ragdesk/internal/bot"
	"github.com/ragdesk/ragdesk/internal/chat"
	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/ingest"
	"github.com/ragdesk/ragdesk/internal/knowledge"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/ragdesk/ragdesk/internal/log"
	"github.com/ragdesk/ragdesk/internal/postgres"
	"github.com/ragdesk/ragdesk/internal/retrieval"
	"github.com/ragdesk/ragdesk/internal/session"
)

// app bundles the constructed components a command needs. Clients are built
// once at startup and passed down explicitly.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool

	knowledge *knowledge.Store
	sessions  *session.Store
	client    *llm.Client
	retriever *retrieval.Service
	pipeline  *ingest.Pipeline
	engine    *chat.Engine
	bot       *bot.Bot
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// setupStorage loads config and connects the database. Used by commands that
// never talk to OpenAI.
func setupStorage(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	pool, err := postgres.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := postgres.Migrate(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		knowledge: knowledge.NewStore(pool, logger),
		sessions:  session.NewStore(pool, logger, session.WithRetention(cfg.HistoryRetention)),
	}, nil
}

// setup builds the full application: storage plus the OpenAI-backed
// pipeline, retrieval service, conversation engine, and bot.
func setup(ctx context.Context) (*app, error) {
	a, err := setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.cfg.RequireAPIKey(); err != nil {
		a.Close()
		return nil, err
	}

	client, err := llm.NewClient(
		a.cfg.OpenAIAPIKey, a.cfg.ChatModel, a.cfg.EmbeddingModel, a.logger,
		llm.WithTemperature(a.cfg.Temperature),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	a.client = client
	a.retriever = retrieval.NewService(a.knowledge, client, a.logger,
		retrieval.WithMatchCount(a.cfg.MatchCount),
		retrieval.WithMinSimilarity(a.cfg.MinSimilarity),
	)
	a.pipeline = ingest.NewPipeline(a.knowledge, client, a.logger,
		ingest.WithChunking(a.cfg.ChunkSize, a.cfg.ChunkOverlap),
	)
	a.engine = chat.NewEngine(a.retriever, client, a.logger,
		chat.WithMaxToolRounds(a.cfg.MaxToolRounds),
	)
	a.bot = bot.New(a.sessions, a.engine, a.retriever, a.knowledge, a.logger,
		bot.WithHistoryLimit(a.cfg.HistoryLimit),
	)

	return a, nil
}
