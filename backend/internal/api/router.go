// Package api exposes the ingestion pipeline and upload sessions over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/adapter"
	"cdr-graph/backend/internal/constants"
	"cdr-graph/backend/internal/ingest"
	"cdr-graph/backend/internal/metrics"
	"cdr-graph/backend/internal/session"
	"cdr-graph/backend/internal/tabular"
	"cdr-graph/backend/pkg/logger"
)

// Ingester runs the pipeline on a parsed table.
type Ingester interface {
	Ingest(ctx context.Context, table *tabular.Table) (*ingest.Result, error)
}

// Assistant answers questions about uploads. *adapter.LLMAdapter satisfies it.
type Assistant interface {
	ExplainFileType(ctx context.Context, fileType string, columns []string) (string, error)
	AnalyzeSession(ctx context.Context, sc adapter.SessionContext) (string, error)
	Answer(ctx context.Context, question string, sc adapter.SessionContext) (string, error)
	Suggest(ctx context.Context, sc adapter.SessionContext) ([]string, error)
}

// GraphInspector reports on the graph store. *graph.Repository and
// *graph.MemoryStore satisfy it.
type GraphInspector interface {
	Ping(ctx context.Context) error
	CountNodes(ctx context.Context) (map[string]int64, error)
	CountRelationships(ctx context.Context) (map[string]int64, error)
}

// Deps wires the router. AI and Graph may be nil.
type Deps struct {
	Ingest         Ingester
	Sessions       *session.Manager
	AI             Assistant
	Graph          GraphInspector
	Metrics        *metrics.Registry
	MaxUploadBytes int64
	SessionMaxAge  time.Duration
	AITimeout      time.Duration
	Logger         *zap.Logger
}

type server struct {
	Deps
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Named("api")
	}
	if deps.AITimeout <= 0 {
		deps.AITimeout = constants.AIRequestTimeout
	}
	if deps.SessionMaxAge <= 0 {
		deps.SessionMaxAge = 24 * time.Hour
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 50 << 20
	}
	s := &server{Deps: deps}

	router := gin.New()
	router.Use(ginLogger(deps.Logger))
	router.Use(gin.Recovery())
	router.Use(cors())
	if deps.Metrics != nil {
		router.Use(instrument(deps.Metrics))
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/check", s.check)
	router.GET("/health", s.health)
	router.GET("/graph/stats", s.graphStats)
	router.POST("/parse-data", s.parseData)
	router.POST("/session/cleanup", s.cleanup)

	sessions := router.Group("/session", requireSession())
	{
		sessions.GET("/history", s.history)
		sessions.GET("/stats", s.stats)
		sessions.GET("/memory", s.memory)

		ai := sessions.Group("/ai", s.requireAI())
		{
			ai.GET("/analysis", s.analysis)
			ai.POST("/ask", s.ask)
			ai.GET("/suggestions", s.suggestions)
			ai.GET("/explain/:file_type", s.explain)
			ai.POST("/chat", s.chat)
		}
	}

	return router
}
