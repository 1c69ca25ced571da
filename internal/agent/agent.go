package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/files"
	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/storage"
)

// Defaults for the per-request budgets.
const (
	DefaultMaxToolIterations   = 10
	DefaultMaxSearchIterations = 3
	DefaultQueryExpansionCount = 2
	DefaultRefineBudget        = 10
	DefaultAccessTrackingTopN  = 5
)

// AnalysisClient runs cheap single-shot completions for text analysis.
type AnalysisClient interface {
	CompleteAnalysis(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Config tunes the agent's budgets and optional behaviors.
type Config struct {
	MaxToolIterations     int
	MaxSearchIterations   int
	QueryExpansionEnabled bool
	QueryExpansionCount   int
	RefineBudget          int
	AccessTrackingTopN    int
}

func (c *Config) applyDefaults() {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = DefaultMaxToolIterations
	}
	if c.MaxSearchIterations <= 0 {
		c.MaxSearchIterations = DefaultMaxSearchIterations
	}
	if c.QueryExpansionCount <= 0 {
		c.QueryExpansionCount = DefaultQueryExpansionCount
	}
	if c.RefineBudget <= 0 {
		c.RefineBudget = DefaultRefineBudget
	}
	if c.AccessTrackingTopN <= 0 {
		c.AccessTrackingTopN = DefaultAccessTrackingTopN
	}
}

// Deps are the collaborators an Agent needs.
type Deps struct {
	Repo     storage.Repository
	Chat     llm.ChatClient
	Simple   llm.SimpleChat
	Analysis AnalysisClient
	Files    *files.Loader
	Logger   *zap.Logger
	Config   Config
}

// Agent orchestrates the four memory operations.
type Agent struct {
	repo     storage.Repository
	chat     llm.ChatClient
	simple   llm.SimpleChat
	analysis AnalysisClient
	files    *files.Loader
	log      *zap.Logger
	cfg      Config
}

// New builds an Agent, filling zero config fields with defaults.
func New(deps Deps) *Agent {
	deps.Config.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		repo:     deps.Repo,
		chat:     deps.Chat,
		simple:   deps.Simple,
		analysis: deps.Analysis,
		files:    deps.Files,
		log:      logger,
		cfg:      deps.Config,
	}
}
