// Package chat turns user questions into resolved conversation turns.
//
// The orchestrator owns prompt construction, model invocation and candidate
// validation for all three modes. It never executes queries: SQL-mode turns
// resolve to an Outcome carrying the candidate text, and execution belongs to
// the gate behind its own confirmation step.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dbchat-dev/dbchat/internal/knowledge"
	"github.com/dbchat-dev/dbchat/internal/llm"
	"github.com/dbchat-dev/dbchat/internal/security"
	"github.com/dbchat-dev/dbchat/internal/session"
)

// Generator produces text from a role-tagged prompt. Satisfied by *llm.Client.
type Generator interface {
	Chat(ctx context.Context, req llm.Request) (string, error)
}

// Retriever searches the knowledge base. Satisfied by *knowledge.Store.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Conversation records exchanges and replays recent history. Satisfied by
// *session.Store.
type Conversation interface {
	AppendExchange(ctx context.Context, sessionID uuid.UUID, userText, assistantText string) error
	Recent(ctx context.Context, sessionID uuid.UUID, n int) ([]session.Message, error)
}

// SchemaFunc supplies the schema description included in SQL prompts.
// Typically a closure over database.SchemaInfo.
type SchemaFunc func(ctx context.Context) (string, error)

// Config configures an Orchestrator.
type Config struct {
	Generator     Generator
	Retriever     Retriever
	Conversation  Conversation
	Schema        SchemaFunc
	HistoryWindow int
	TopK          int
	Logger        *slog.Logger
}

// Orchestrator handles one conversation turn per call. One model invocation
// per turn; a rejected candidate resolves the turn rather than retrying.
type Orchestrator struct {
	generator     Generator
	retriever     Retriever
	conversation  Conversation
	schema        SchemaFunc
	historyWindow int
	topK          int
	validate      func(string) security.Result
	logger        *slog.Logger
}

// Generation parameters per mode. SQL wants determinism; conversational
// modes want some variety.
const (
	sqlMaxTokens    = 500
	sqlTemperature  = 0.2
	ragMaxTokens    = 500
	ragTemperature  = 0.7
	chatMaxTokens   = 800
	chatTemperature = 0.8
)

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator:     cfg.Generator,
		retriever:     cfg.Retriever,
		conversation:  cfg.Conversation,
		schema:        cfg.Schema,
		historyWindow: cfg.HistoryWindow,
		topK:          cfg.TopK,
		validate:      security.ValidateReadOnly,
		logger:        logger,
	}
}

// HandleTurn resolves one user turn in the given mode. The exchange is
// recorded only once the turn has an outcome; a failed model or retrieval
// call leaves the conversation untouched.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID uuid.UUID, userText string, mode Mode) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch mode {
	case ModeSQL:
		outcome, err = o.sqlTurn(ctx, userText)
	case ModeRAG:
		outcome, err = o.ragTurn(ctx, sessionID, userText)
	case ModeChat:
		outcome, err = o.chatTurn(ctx, sessionID, userText)
	default:
		return Outcome{}, fmt.Errorf("unsupported mode %v", mode)
	}
	if err != nil {
		return Outcome{}, err
	}

	if recErr := o.conversation.AppendExchange(ctx, sessionID, userText, assistantRecord(outcome)); recErr != nil {
		// The user already has their answer; losing the record is worth a
		// warning, not a failed turn.
		o.logger.Warn("recording exchange failed", "session_id", sessionID, "error", recErr)
	}

	o.logger.Debug("turn resolved", "mode", mode, "outcome", outcome.Kind)
	return outcome, nil
}

// sqlTurn asks the model for a single read-only query and validates the
// candidate. Validation failure resolves the turn as rejected; there is no
// regeneration loop.
func (o *Orchestrator) sqlTurn(ctx context.Context, question string) (Outcome, error) {
	schema, err := o.schema(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("describing schema: %w", err)
	}

	raw, err := o.generator.Chat(ctx, llm.Request{
		Messages:    buildSQLPrompt(schema, question),
		MaxTokens:   sqlMaxTokens,
		Temperature: sqlTemperature,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generating query: %w", err)
	}

	candidate := extractSQL(raw)
	if isRefusal(candidate) {
		return Outcome{Kind: OutcomeRejected, Reason: "model declined to produce a query"}, nil
	}

	if res := o.validate(candidate); !res.Allowed {
		o.logger.Info("candidate rejected", "reason", res.Reason)
		return Outcome{Kind: OutcomeRejected, Reason: res.Reason}, nil
	}
	return Outcome{Kind: OutcomeExecutableQuery, Query: candidate}, nil
}

// ragTurn grounds the answer in retrieved documents. The validator and the
// execution gate play no part here.
func (o *Orchestrator) ragTurn(ctx context.Context, sessionID uuid.UUID, question string) (Outcome, error) {
	results, err := o.retriever.Search(ctx, question, knowledge.WithTopK(o.topK))
	if err != nil {
		return Outcome{}, fmt.Errorf("searching knowledge base: %w", err)
	}
	if len(results) == 0 {
		return Outcome{
			Kind:   OutcomeDirectAnswer,
			Answer: "I couldn't find any relevant information in the knowledge base for your question.",
		}, nil
	}

	history, err := o.conversation.Recent(ctx, sessionID, o.historyWindow)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading history: %w", err)
	}

	answer, err := o.generator.Chat(ctx, llm.Request{
		Messages:    buildRAGPrompt(results, history, question),
		MaxTokens:   ragMaxTokens,
		Temperature: ragTemperature,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generating answer: %w", err)
	}
	return Outcome{Kind: OutcomeDirectAnswer, Answer: answer}, nil
}

// chatTurn answers conversationally from recent history alone.
func (o *Orchestrator) chatTurn(ctx context.Context, sessionID uuid.UUID, question string) (Outcome, error) {
	history, err := o.conversation.Recent(ctx, sessionID, o.historyWindow)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading history: %w", err)
	}

	answer, err := o.generator.Chat(ctx, llm.Request{
		Messages:    buildChatPrompt(history, question),
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generating answer: %w", err)
	}
	return Outcome{Kind: OutcomeDirectAnswer, Answer: answer}, nil
}

// assistantRecord is the text stored as the assistant's half of an exchange.
func assistantRecord(o Outcome) string {
	switch o.Kind {
	case OutcomeExecutableQuery:
		return o.Query
	case OutcomeRejected:
		return "Query rejected: " + o.Reason
	default:
		return o.Answer
	}
}
