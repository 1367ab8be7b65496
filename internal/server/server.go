// Package server exposes the coaching assistant over HTTP: streaming agent
// endpoints, the follow-up questions endpoint, and admin/ops routes.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicworks/coachtool/config"
	"github.com/civicworks/coachtool/internal/agent/core"
	"github.com/civicworks/coachtool/internal/agent/telemetry"
	"github.com/civicworks/coachtool/internal/index"
	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/llm"
	"github.com/civicworks/coachtool/internal/store"
)

// AgentService is the recipe surface the handlers depend on. Satisfied by
// *core.Recipes; tests substitute fakes.
type AgentService interface {
	Chat(ctx context.Context, message string, conversation []core.ConversationTurn) (core.RunResult, error)
	Plan(ctx context.Context, answers core.QuestionnaireAnswers, followUpAnswers map[string]string) (core.RunResult, error)
	Questions(ctx context.Context, answers core.QuestionnaireAnswers) (core.FollowUpResult, error)
	Adapt(ctx context.Context, caseStudy, userContext, constraints string) (core.RunResult, error)
}

// DocumentStore is the read surface the handlers need from the chunk store.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]store.DocumentRecord, error)
	AllChunks(ctx context.Context) ([]kb.ChunkRecord, error)
	ListCaseStudies(ctx context.Context) ([]store.CaseStudyRecord, error)
	GetCaseStudy(ctx context.Context, documentID string) (store.CaseStudyRecord, error)
}

// Reindexer rebuilds the search index from a full chunk snapshot.
type Reindexer interface {
	Reset(records []kb.ChunkRecord) error
}

// Server holds the handler dependencies. Everything is injected so tests can
// run without Postgres or a model backend.
type Server struct {
	agent     AgentService
	provider  llm.Provider
	docs      DocumentStore
	reindex   Reindexer
	routing   config.LLMRoutingConfig
	jwtSecret []byte
	logger    *log.Logger
	validate  *validator.Validate
}

// NewServer wires handler dependencies together.
func NewServer(agent AgentService, provider llm.Provider, docs DocumentStore, reindex Reindexer, routing config.LLMRoutingConfig, jwtSecret []byte, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Server{
		agent:     agent,
		provider:  provider,
		docs:      docs,
		reindex:   reindex,
		routing:   routing,
		jwtSecret: jwtSecret,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/plan", s.handlePlan)
	api.POST("/questions", s.handleQuestions)
	api.POST("/adapt", s.handleAdapt)
	api.GET("/case-studies", s.handleListCaseStudies)
	api.GET("/case-studies/:id", s.handleGetCaseStudy)

	admin := api.Group("/admin")
	admin.Use(jwtAuth(s.jwtSecret))
	admin.POST("/reindex", s.handleReindex)
}

// NewEcho builds the echo instance with the recover middleware, CORS, and a
// unified JSON error handler that logs every failed request.
func NewEcho(origins []string, logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))
	return e
}

// Run wires the full service from configuration and serves until the listener
// fails: migrations, store, index warm-up from the store, agent runner, and
// HTTP routes.
func Run(cfg *config.Config, addr string) error {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := store.Migrate("", dsn, "up", 0); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	idxLogger := log.New(log.Writer(), "[INDEX] ", log.LstdFlags)
	idx, err := index.NewEmbedded(cfg.Search, provider, idxLogger)
	if err != nil {
		return err
	}
	records, err := st.AllChunks(ctx)
	if err != nil {
		return fmt.Errorf("loading chunks for index warm-up: %w", err)
	}
	if err := idx.Reset(records); err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	idxLogger.Printf("index ready with %d chunks", len(records))

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	}

	agentLogger := log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	var counter core.Counter
	if tc, err := core.NewTokenCounter(); err != nil {
		agentLogger.Printf("tokenizer unavailable, evidence budget disabled: %v", err)
	} else {
		counter = tc
	}
	runner := &core.Runner{
		Provider: provider,
		Tools: &core.Toolset{
			Index:       idx,
			Logger:      agentLogger,
			Metrics:     metrics,
			ResultLimit: cfg.Search.ResultLimit,
			ChunkCap:    cfg.Search.DocumentLimit,
		},
		Counter: counter,
		Logger:  agentLogger,
		Metrics: metrics,
	}
	recipes := &core.Recipes{Runner: runner, Routing: cfg.LLM.Routing, Caps: cfg.Recipes}

	srv := NewServer(recipes, provider, st, idx, cfg.LLM.Routing, []byte(cfg.Server.JWTSecret), logger)
	e := NewEcho(cfg.Server.CORSOrigins, logger)
	srv.Register(e)

	if addr == "" {
		addr = cfg.Server.Address
	}
	if addr == "" {
		addr = ":8080"
	}
	logger.Printf("listening on %s", addr)
	return e.Start(addr)
}
