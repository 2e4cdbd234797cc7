package core

import (
	"github.com/recallkit/recallkit-go/pkg/answer"
	embedderopenai "github.com/recallkit/recallkit-go/pkg/embedder/openai"
	"github.com/recallkit/recallkit-go/pkg/intent"
	"github.com/recallkit/recallkit-go/pkg/ledger"
	llmopenai "github.com/recallkit/recallkit-go/pkg/llm/openai"
	"github.com/recallkit/recallkit-go/pkg/mirror"
	"github.com/recallkit/recallkit-go/pkg/planner"
	plannermysql "github.com/recallkit/recallkit-go/pkg/planner/mysql"
	plannerpostgres "github.com/recallkit/recallkit-go/pkg/planner/postgres"
	plannersqlite "github.com/recallkit/recallkit-go/pkg/planner/sqlite"
	"github.com/recallkit/recallkit-go/pkg/transcriber"
	"github.com/recallkit/recallkit-go/pkg/vectorstore"
)

// NewPipeline creates a fully wired pipeline from configuration.
//
// Pass nil to load configuration from the environment. Every provider
// shares one usage ledger, and the vector store writes through to the
// local mirror when one is configured.
func NewPipeline(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		loaded, err := LoadConfigFromEnv()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	usage := ledger.New()

	llmClient, err := llmopenai.NewClient(&llmopenai.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Ledger:  usage,
	})
	if err != nil {
		return nil, NewFlowError("NewPipeline", err)
	}

	embedClient, err := embedderopenai.NewClient(&embedderopenai.Config{
		APIKey:     cfg.Embedder.APIKey,
		Model:      cfg.Embedder.Model,
		BaseURL:    cfg.Embedder.BaseURL,
		Dimensions: cfg.Embedder.Dimensions,
		Ledger:     usage,
	})
	if err != nil {
		return nil, NewFlowError("NewPipeline", err)
	}

	transcribeClient, err := transcriber.NewClient(&transcriber.Config{
		APIKey:  cfg.Transcriber.APIKey,
		Model:   cfg.Transcriber.Model,
		BaseURL: cfg.Transcriber.BaseURL,
	})
	if err != nil {
		return nil, NewFlowError("NewPipeline", err)
	}

	var closers []func() error
	closers = append(closers, llmClient.Close, embedClient.Close)

	var mirrorStore vectorstore.Mirror
	if cfg.Mirror.DBPath != "" {
		m, err := mirror.NewStore(&mirror.Config{DBPath: cfg.Mirror.DBPath})
		if err != nil {
			return nil, NewFlowError("NewPipeline", err)
		}
		mirrorStore = m
		closers = append(closers, m.Close)
	}

	namespace := cfg.VectorStore.Namespace
	if namespace == "" {
		namespace, err = LoadOrCreateNamespace(cfg.VectorStore.NamespaceFile)
		if err != nil {
			return nil, NewFlowError("NewPipeline", err)
		}
	}

	storeClient, err := vectorstore.NewClient(&vectorstore.Config{
		BaseURL:   cfg.VectorStore.BaseURL,
		APIKey:    cfg.VectorStore.APIKey,
		Namespace: namespace,
		Ledger:    usage,
		Mirror:    mirrorStore,
	})
	if err != nil {
		return nil, NewFlowError("NewPipeline", err)
	}

	plannerStore, err := newPlannerStore(&cfg.Planner)
	if err != nil {
		return nil, NewFlowError("NewPipeline", err)
	}

	plannerService, err := planner.NewService(plannerStore)
	if err != nil {
		return nil, NewFlowError("NewPipeline", err)
	}
	closers = append(closers, plannerService.Close)

	p, err := NewPipelineWithComponents(Components{
		Transcriber: transcribeClient,
		Classifier:  intent.NewClassifier(llmClient),
		Embedder:    embedClient,
		Store:       storeClient,
		Synthesizer: answer.NewSynthesizer(llmClient),
		Reminders:   plannerService,
		Calendar:    plannerService,
	})
	if err != nil {
		return nil, err
	}

	p.usage = usage
	p.closers = closers
	return p, nil
}

// newPlannerStore creates the planner backend named by the configuration.
func newPlannerStore(cfg *PlannerConfig) (planner.Store, error) {
	switch cfg.Provider {
	case "sqlite", "":
		return plannersqlite.NewClient(&plannersqlite.Config{DBPath: cfg.DBPath})
	case "postgres":
		return plannerpostgres.NewClient(&plannerpostgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		})
	case "mysql":
		return plannermysql.NewClient(&plannermysql.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
		})
	default:
		return nil, planner.ErrInvalidConfig
	}
}
