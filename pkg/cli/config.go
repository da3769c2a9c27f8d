package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/tool/clock"
	convtool "github.com/zuychin03/zuychin-assistant/pkg/tool/conversation"
	"github.com/zuychin03/zuychin-assistant/pkg/tool/memory"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/async"
)

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string

	// Adapters
	geminiProject   string
	geminiLocation  string
	geminiAPIKey    string
	generativeModel string
	embeddingModel  string

	ownerID       string
	assistantFile string
	turnTimeout   time.Duration
	noTools       bool

	clock *clock.Clock
}

func newConfig() *config {
	return &config{clock: clock.New("UTC")}
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID of Firestore",
			Sources:     cli.EnvVars("ZUYCHIN_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("ZUYCHIN_DATABASE"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "owner-id",
			Usage:       "Owner of memories and profile",
			Value:       "owner",
			Sources:     cli.EnvVars("ZUYCHIN_OWNER_ID"),
			Destination: &cfg.ownerID,
		},
	}
}

// llmFlags returns flags for LLM and pipeline configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("ZUYCHIN_GEMINI_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini on Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("ZUYCHIN_GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key, used when no Vertex AI project is set",
			Sources:     cli.EnvVars("ZUYCHIN_GEMINI_API_KEY", "GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "generative-model",
			Usage:       "Model generating replies and summaries",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("ZUYCHIN_GENERATIVE_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Model computing memory embeddings",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("ZUYCHIN_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "assistant-file",
			Usage:       "YAML file with system prompt and pipeline tunables",
			Sources:     cli.EnvVars("ZUYCHIN_ASSISTANT_FILE"),
			Destination: &cfg.assistantFile,
		},
		&cli.DurationFlag{
			Name:        "turn-timeout",
			Usage:       "Upper bound of one turn",
			Value:       2 * time.Minute,
			Sources:     cli.EnvVars("ZUYCHIN_TURN_TIMEOUT"),
			Destination: &cfg.turnTimeout,
		},
		&cli.BoolFlag{
			Name:        "no-tools",
			Usage:       "Do not expose tools to the model",
			Sources:     cli.EnvVars("ZUYCHIN_NO_TOOLS"),
			Destination: &cfg.noTools,
		},
	}
	return append(flags, cfg.clock.Flags()...)
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (*repository.Firestore, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" && cfg.geminiAPIKey == "" {
		return nil, goerr.New("gemini-project or gemini-api-key is required")
	}
	if cfg.geminiProject != "" && cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, cfg.geminiAPIKey,
		adapter.WithGenerativeModel(cfg.generativeModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return gemini, nil
}

// newRegistry builds the tools available to the model
func (cfg *config) newRegistry(repo repository.Repository, gemini adapter.Gemini) (*tool.Registry, error) {
	registry, err := tool.New(
		cfg.clock,
		memory.NewSearch(chat.NewRetriever(gemini, repo)),
		memory.NewSaveNote(gemini, repo),
		convtool.NewRecent(repo),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create tool registry")
	}
	return registry, nil
}

// runtime is everything a command needs to run turns
type runtime struct {
	repo     *repository.Firestore
	gemini   adapter.Gemini
	registry *tool.Registry
	pipeline *chat.Pipeline
	runner   *async.Runner
}

func (rt *runtime) Close() {
	rt.runner.Wait()
	_ = rt.repo.Close()
}

// replyDeliveryMargin leaves time to send the reply after a turn used its whole budget
const replyDeliveryMargin = 30 * time.Second

// newTaskRunner bounds detached tasks, which include whole channel turns, by the turn
// timeout plus delivery time. A disabled turn timeout leaves tasks unbounded.
func newTaskRunner(turnTimeout time.Duration) *async.Runner {
	if turnTimeout <= 0 {
		return async.NewRunner(async.WithTimeout(0))
	}
	return async.NewRunner(async.WithTimeout(turnTimeout + replyDeliveryMargin))
}

// newRuntime connects to Firestore and Gemini and assembles the chat pipeline
func (cfg *config) newRuntime(ctx context.Context) (*runtime, error) {
	assistant, err := loadAssistantConfig(cfg.assistantFile)
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	registry, err := cfg.newRegistry(repo, gemini)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	runner := newTaskRunner(cfg.turnTimeout)
	opts := append(assistant.pipelineOptions(),
		chat.WithRunner(runner),
		chat.WithTurnTimeout(cfg.turnTimeout),
		chat.WithToolsEnabled(!cfg.noTools),
	)

	return &runtime{
		repo:     repo,
		gemini:   gemini,
		registry: registry,
		pipeline: chat.New(repo, gemini, registry, opts...),
		runner:   runner,
	}, nil
}
