package chat

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickmn/go-cache"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/async"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrGenerationFailed is returned when no reply could be generated. The inbound
	// message stays persisted.
	ErrGenerationFailed = goerr.New("failed to generate reply")

	// ErrTurnTimeout is returned when a turn exceeds its wall-clock budget
	ErrTurnTimeout = goerr.New("turn timed out")
)

//go:embed prompt/system.md
var defaultSystemPrompt string

const (
	defaultRetrievalThreshold = 0.5
	defaultRetrievalCount     = 10
	defaultMaxMemories        = 5
	defaultHistoryWindow      = 20
	defaultTurnTimeout        = 2 * time.Minute
	profileCacheTTL           = 5 * time.Minute
)

// ProcessInput is one inbound turn
type ProcessInput struct {
	Message        string
	Channel        model.Channel
	OwnerID        string
	ConversationID model.ConversationID
	Attachments    []*model.Attachment
	Thinking       bool
}

// ProcessResult carries the reply and the ID of the persisted inbound message
type ProcessResult struct {
	Reply         string
	UserMessageID model.MessageID
}

// Pipeline runs the retrieval augmented chat flow for every inbound message
type Pipeline struct {
	repo         repository.Repository
	retriever    *Retriever
	compactor    *Compactor
	dedup        *DedupGuard
	orchestrator *Orchestrator
	runner       *async.Runner
	profiles     *cache.Cache

	systemPrompt       string
	retrievalThreshold float64
	retrievalCount     int
	maxMemories        int
	historyWindow      int
	turnTimeout        time.Duration
	toolsEnabled       bool
	compactorOpts      []CompactorOption
	orchestratorOpts   []OrchestratorOption
	dedupThreshold     float64
}

// Option configures Pipeline
type Option func(*Pipeline)

// WithSystemPrompt replaces the built-in system prompt used when the owner has no profile
func WithSystemPrompt(prompt string) Option {
	return func(p *Pipeline) {
		if strings.TrimSpace(prompt) != "" {
			p.systemPrompt = prompt
		}
	}
}

// WithRetrieval sets the similarity floor and candidate count of memory retrieval and
// how many memories are kept after reranking
func WithRetrieval(threshold float64, count, maxMemories int) Option {
	return func(p *Pipeline) {
		p.retrievalThreshold = threshold
		p.retrievalCount = count
		p.maxMemories = maxMemories
	}
}

// WithHistoryWindow sets how many previous messages are fetched
func WithHistoryWindow(n int) Option {
	return func(p *Pipeline) {
		p.historyWindow = n
	}
}

// WithTurnTimeout bounds one turn. Zero disables the bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.turnTimeout = d
	}
}

// WithToolsEnabled controls whether tool mode exposes the registry to the model
func WithToolsEnabled(enabled bool) Option {
	return func(p *Pipeline) {
		p.toolsEnabled = enabled
	}
}

// WithDedupThreshold sets the similarity at or above which a message is not stored again
func WithDedupThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		p.dedupThreshold = threshold
	}
}

// WithCompactorOptions passes options to the history compactor
func WithCompactorOptions(opts ...CompactorOption) Option {
	return func(p *Pipeline) {
		p.compactorOpts = append(p.compactorOpts, opts...)
	}
}

// WithOrchestratorOptions passes options to the generation orchestrator
func WithOrchestratorOptions(opts ...OrchestratorOption) Option {
	return func(p *Pipeline) {
		p.orchestratorOpts = append(p.orchestratorOpts, opts...)
	}
}

// WithRunner sets the runner of detached memory writes
func WithRunner(runner *async.Runner) Option {
	return func(p *Pipeline) {
		p.runner = runner
	}
}

// New creates a new Pipeline. registry may be nil.
func New(repo repository.Repository, gemini adapter.Gemini, registry *tool.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:               repo,
		profiles:           cache.New(profileCacheTTL, 2*profileCacheTTL),
		systemPrompt:       defaultSystemPrompt,
		retrievalThreshold: defaultRetrievalThreshold,
		retrievalCount:     defaultRetrievalCount,
		maxMemories:        defaultMaxMemories,
		historyWindow:      defaultHistoryWindow,
		turnTimeout:        defaultTurnTimeout,
		toolsEnabled:       true,
		dedupThreshold:     defaultDedupThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.runner == nil {
		p.runner = async.NewRunner()
	}
	p.retriever = NewRetriever(gemini, repo)
	p.compactor = NewCompactor(NewSummarizer(gemini), p.compactorOpts...)
	p.dedup = NewDedupGuard(repo, p.dedupThreshold)
	p.orchestrator = NewOrchestrator(gemini, registry, p.orchestratorOpts...)

	return p
}

// Retriever returns the memory retriever so tools can share it
func (p *Pipeline) Retriever() *Retriever {
	return p.retriever
}

// Wait blocks until detached memory writes finish
func (p *Pipeline) Wait() {
	p.runner.Wait()
}

// InvalidateProfile drops the cached system prompt of an owner
func (p *Pipeline) InvalidateProfile(ownerID string) {
	p.profiles.Delete(profileCacheKey(ownerID))
}

// Process handles one inbound message and returns the reply
func (p *Pipeline) Process(ctx context.Context, input *ProcessInput) (*ProcessResult, error) {
	if p.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.turnTimeout)
		defer cancel()
	}

	logger := logging.From(ctx).With("channel", input.Channel)
	if input.ConversationID != "" {
		logger = logger.With("conversation_id", input.ConversationID)
	}
	ctx = logging.With(ctx, logger)
	ctx = tool.WithOwner(ctx, input.OwnerID)

	inbound := model.NewMessage(model.RoleUser, input.Message, input.Channel, input.ConversationID)
	if err := p.repo.PutMessage(ctx, inbound); err != nil {
		return nil, goerr.Wrap(err, "failed to save inbound message")
	}

	var (
		candidates []*model.RetrievalCandidate
		embedding  []float32
		history    []*model.Message
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		candidates, embedding = p.retriever.retrieve(egCtx, input.Message, input.OwnerID, p.retrievalThreshold, p.retrievalCount)
		return nil
	})
	eg.Go(func() error {
		history = p.fetchHistory(egCtx, inbound)
		return nil
	})
	_ = eg.Wait()

	memories := Rerank(candidates, input.Message, p.maxMemories)
	historySection := p.compactor.Compact(ctx, history)

	if len(embedding) > 0 && p.dedup.ShouldStore(ctx, embedding, input.OwnerID) {
		p.storeMemory(ctx, inbound, embedding, input.OwnerID)
	}

	genInput := &GenerateInput{
		SystemPrompt:    p.loadSystemPrompt(ctx, input.OwnerID),
		MemorySection:   renderMemories(memories),
		HistorySection:  historySection,
		Message:         input.Message,
		Attachments:     input.Attachments,
		ToolsEnabled:    p.toolsEnabled,
		ThinkingEnabled: input.Thinking,
	}

	reply, err := p.orchestrator.Generate(ctx, genInput)
	if err != nil && isTokenLimitError(err) && (genInput.MemorySection != "" || genInput.HistorySection != "") {
		logger.Warn("prompt exceeded token limit, retrying without context")
		genInput.MemorySection, genInput.HistorySection = "", ""
		reply, err = p.orchestrator.Generate(ctx, genInput)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, goerr.Wrap(ErrTurnTimeout, "turn exceeded budget",
				goerr.V("timeout", p.turnTimeout), goerr.V("cause", err.Error()))
		}
		return nil, goerr.Wrap(ErrGenerationFailed, "no reply generated", goerr.V("cause", err.Error()))
	}

	outbound := model.NewMessage(model.RoleAssistant, reply, input.Channel, input.ConversationID)
	if err := p.repo.PutMessage(ctx, outbound); err != nil {
		logger.Error("failed to save reply", "error", err)
	}

	if input.ConversationID != "" {
		p.updateTitle(ctx, input.ConversationID, input.Message)
	}

	return &ProcessResult{
		Reply:         reply,
		UserMessageID: inbound.ID,
	}, nil
}

// fetchHistory returns up to historyWindow messages before inbound, oldest first
func (p *Pipeline) fetchHistory(ctx context.Context, inbound *model.Message) []*model.Message {
	var (
		msgs []*model.Message
		err  error
	)
	if inbound.ConversationID != "" {
		msgs, err = p.repo.ListMessagesByConversation(ctx, inbound.ConversationID, p.historyWindow+1)
	} else {
		msgs, err = p.repo.ListMessagesByChannel(ctx, inbound.Channel, p.historyWindow+1)
	}
	if err != nil {
		logging.From(ctx).Warn("failed to fetch history", "error", err)
		return nil
	}

	history := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == inbound.ID {
			continue
		}
		history = append(history, m)
	}
	if len(history) > p.historyWindow {
		history = history[len(history)-p.historyWindow:]
	}
	return history
}

func (p *Pipeline) storeMemory(ctx context.Context, msg *model.Message, embedding []float32, ownerID string) {
	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Content:   msg.Content,
		Embedding: embedding,
		Metadata: map[string]string{
			model.MetadataSource:  model.SourceUserMessage,
			model.MetadataChannel: string(msg.Channel),
		},
		OwnerID:   ownerID,
		CreatedAt: msg.CreatedAt,
	}

	p.runner.Go(ctx, "store_memory", func(ctx context.Context) error {
		if err := p.repo.PutMemory(ctx, memory); err != nil {
			return goerr.Wrap(err, "failed to store memory", goerr.V("message_id", msg.ID))
		}
		return nil
	})
}

func profileCacheKey(ownerID string) string {
	return "profile:" + ownerID
}

// loadSystemPrompt returns the owner's override, or the configured default
func (p *Pipeline) loadSystemPrompt(ctx context.Context, ownerID string) string {
	key := profileCacheKey(ownerID)
	if v, ok := p.profiles.Get(key); ok {
		if prompt, ok := v.(string); ok {
			return prompt
		}
	}

	prompt := p.systemPrompt
	profile, err := p.repo.GetProfile(ctx, ownerID)
	switch {
	case err == nil:
		if strings.TrimSpace(profile.SystemPrompt) != "" {
			prompt = profile.SystemPrompt
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		logging.From(ctx).Warn("failed to load profile, using default system prompt", "error", err)
		return prompt
	}

	p.profiles.Set(key, prompt, cache.DefaultExpiration)
	return prompt
}

func (p *Pipeline) updateTitle(ctx context.Context, id model.ConversationID, message string) {
	title := deriveTitle(message)
	if title == "" {
		return
	}

	err := p.repo.UpdateConversationTitle(ctx, id, title)
	if errors.Is(err, repository.ErrNotFound) {
		now := time.Now()
		err = p.repo.PutConversation(ctx, &model.Conversation{
			ID:        id,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err != nil {
		logging.From(ctx).Warn("failed to update conversation title", "error", err)
	}
}

func renderMemories(memories []*model.RetrievalCandidate) string {
	if len(memories) == 0 {
		return ""
	}

	lines := make([]string, 0, len(memories))
	for _, c := range memories {
		line := "- "
		if category := c.Memory.Metadata[model.MetadataCategory]; category != "" {
			line += "[" + category + "] "
		}
		lines = append(lines, line+c.Memory.Content)
	}
	return strings.Join(lines, "\n")
}
