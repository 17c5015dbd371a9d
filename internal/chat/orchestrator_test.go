package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/dbchat-dev/dbchat/internal/knowledge"
	"github.com/dbchat-dev/dbchat/internal/llm"
	"github.com/dbchat-dev/dbchat/internal/log"
	"github.com/dbchat-dev/dbchat/internal/security"
	"github.com/dbchat-dev/dbchat/internal/session"
)

// scriptedGenerator returns a fixed reply and records the requests it saw.
type scriptedGenerator struct {
	reply    string
	err      error
	requests []llm.Request
}

func (g *scriptedGenerator) Chat(_ context.Context, req llm.Request) (string, error) {
	g.requests = append(g.requests, req)
	return g.reply, g.err
}

// fakeRetriever serves canned results and records whether it was called.
type fakeRetriever struct {
	results []knowledge.Result
	err     error
	calls   int
}

func (r *fakeRetriever) Search(context.Context, string, ...knowledge.SearchOption) ([]knowledge.Result, error) {
	r.calls++
	return r.results, r.err
}

// memoryConversation records exchanges in memory.
type memoryConversation struct {
	history   []session.Message
	exchanges [][2]string
	appendErr error
}

func (c *memoryConversation) AppendExchange(_ context.Context, _ uuid.UUID, userText, assistantText string) error {
	if c.appendErr != nil {
		return c.appendErr
	}
	c.exchanges = append(c.exchanges, [2]string{userText, assistantText})
	return nil
}

func (c *memoryConversation) Recent(context.Context, uuid.UUID, int) ([]session.Message, error) {
	return c.history, nil
}

func staticSchema(ctx context.Context) (string, error) {
	return "Database Schema:\n\nTable: products\n  - id: bigint (NOT NULL)\n", nil
}

func newTestOrchestrator(gen Generator, ret Retriever, conv Conversation) *Orchestrator {
	return New(Config{
		Generator:     gen,
		Retriever:     ret,
		Conversation:  conv,
		Schema:        staticSchema,
		HistoryWindow: 10,
		TopK:          3,
		Logger:        log.NewNop(),
	})
}

func TestSQLTurnProducesExecutableQuery(t *testing.T) {
	gen := &scriptedGenerator{reply: "```sql\nSELECT name, price FROM products ORDER BY price DESC\n```"}
	conv := &memoryConversation{}
	o := newTestOrchestrator(gen, &fakeRetriever{}, conv)

	got, err := o.HandleTurn(context.Background(), uuid.New(), "most expensive products?", ModeSQL)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Kind != OutcomeExecutableQuery {
		t.Fatalf("kind = %v, want OutcomeExecutableQuery (reason %q)", got.Kind, got.Reason)
	}
	if got.Query != "SELECT name, price FROM products ORDER BY price DESC" {
		t.Errorf("query = %q", got.Query)
	}

	// One model call, schema embedded in the prompt.
	if len(gen.requests) != 1 {
		t.Fatalf("model calls = %d, want 1", len(gen.requests))
	}
	prompt := gen.requests[0].Messages[len(gen.requests[0].Messages)-1].Content
	if !strings.Contains(prompt, "Table: products") {
		t.Errorf("prompt missing schema: %q", prompt)
	}

	// Exchange recorded with the candidate as the assistant turn.
	if len(conv.exchanges) != 1 {
		t.Fatalf("exchanges = %d, want 1", len(conv.exchanges))
	}
	if conv.exchanges[0][1] != got.Query {
		t.Errorf("assistant record = %q, want the candidate", conv.exchanges[0][1])
	}
}

func TestSQLTurnRejectsForbiddenCandidate(t *testing.T) {
	gen := &scriptedGenerator{reply: "DELETE FROM products WHERE price > 100"}
	conv := &memoryConversation{}
	o := newTestOrchestrator(gen, &fakeRetriever{}, conv)

	got, err := o.HandleTurn(context.Background(), uuid.New(), "remove expensive products", ModeSQL)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Kind != OutcomeRejected {
		t.Fatalf("kind = %v, want OutcomeRejected", got.Kind)
	}
	if !strings.Contains(got.Reason, "DELETE") {
		t.Errorf("reason = %q, want mention of DELETE", got.Reason)
	}

	// No regeneration: exactly one model call, turn resolved.
	if len(gen.requests) != 1 {
		t.Errorf("model calls = %d, want 1", len(gen.requests))
	}

	// The rejection is still part of the conversation record.
	if len(conv.exchanges) != 1 {
		t.Fatalf("exchanges = %d, want 1", len(conv.exchanges))
	}
	if !strings.Contains(conv.exchanges[0][1], "rejected") {
		t.Errorf("assistant record = %q, want rejection notice", conv.exchanges[0][1])
	}
}

func TestSQLTurnRefusalSentinel(t *testing.T) {
	gen := &scriptedGenerator{reply: "REFUSED"}
	o := newTestOrchestrator(gen, &fakeRetriever{}, &memoryConversation{})

	got, err := o.HandleTurn(context.Background(), uuid.New(), "drop everything", ModeSQL)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Kind != OutcomeRejected {
		t.Fatalf("kind = %v, want OutcomeRejected", got.Kind)
	}
	if !strings.Contains(got.Reason, "declined") {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestSQLTurnModelFailureLeavesNoRecord(t *testing.T) {
	gen := &scriptedGenerator{err: llm.ErrUnavailable}
	conv := &memoryConversation{}
	o := newTestOrchestrator(gen, &fakeRetriever{}, conv)

	_, err := o.HandleTurn(context.Background(), uuid.New(), "show products", ModeSQL)
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(conv.exchanges) != 0 {
		t.Errorf("failed turn must not record an exchange, got %d", len(conv.exchanges))
	}
}

func TestRAGTurnAnswersFromRetrievedContext(t *testing.T) {
	gen := &scriptedGenerator{reply: "Returns are accepted within 30 days."}
	ret := &fakeRetriever{results: []knowledge.Result{
		{Document: knowledge.Document{ID: 1, Content: "Our return policy allows returns within 30 days."}, Similarity: 0.92},
		{Document: knowledge.Document{ID: 2, Content: "Shipping takes 3-5 business days."}, Similarity: 0.41},
	}}
	conv := &memoryConversation{}
	o := newTestOrchestrator(gen, ret, conv)

	// A spy validator proves the read-only gate plays no part in this mode.
	validated := false
	o.validate = func(q string) security.Result {
		validated = true
		return security.ValidateReadOnly(q)
	}

	got, err := o.HandleTurn(context.Background(), uuid.New(), "what is the return policy?", ModeRAG)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Kind != OutcomeDirectAnswer {
		t.Fatalf("kind = %v, want OutcomeDirectAnswer", got.Kind)
	}
	if got.Answer != "Returns are accepted within 30 days." {
		t.Errorf("answer = %q", got.Answer)
	}
	if validated {
		t.Error("retrieval-mode turn must not invoke the query validator")
	}

	prompt := gen.requests[0].Messages[len(gen.requests[0].Messages)-1].Content
	if !strings.Contains(prompt, "return policy allows returns within 30 days") {
		t.Errorf("prompt missing retrieved document: %q", prompt)
	}
}

func TestRAGTurnEmptyRetrieval(t *testing.T) {
	gen := &scriptedGenerator{reply: "should not be called"}
	conv := &memoryConversation{}
	o := newTestOrchestrator(gen, &fakeRetriever{}, conv)

	got, err := o.HandleTurn(context.Background(), uuid.New(), "unrelated question", ModeRAG)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Kind != OutcomeDirectAnswer {
		t.Fatalf("kind = %v, want OutcomeDirectAnswer", got.Kind)
	}
	if !strings.Contains(got.Answer, "couldn't find") {
		t.Errorf("answer = %q", got.Answer)
	}
	// No retrieved context means no model call.
	if len(gen.requests) != 0 {
		t.Errorf("model calls = %d, want 0", len(gen.requests))
	}
}

func TestChatTurnIncludesHistory(t *testing.T) {
	gen := &scriptedGenerator{reply: "As I said, ten products."}
	conv := &memoryConversation{history: []session.Message{
		{Role: session.RoleUser, Content: "how many products are there?"},
		{Role: session.RoleAssistant, Content: "There are ten products."},
	}}
	o := newTestOrchestrator(gen, &fakeRetriever{}, conv)

	got, err := o.HandleTurn(context.Background(), uuid.New(), "repeat that", ModeChat)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Kind != OutcomeDirectAnswer {
		t.Fatalf("kind = %v, want OutcomeDirectAnswer", got.Kind)
	}

	msgs := gen.requests[0].Messages
	// system + 2 history + question
	if len(msgs) != 4 {
		t.Fatalf("prompt messages = %d, want 4", len(msgs))
	}
	if msgs[2].Role != llm.RoleAssistant || msgs[2].Content != "There are ten products." {
		t.Errorf("history message misplaced: %+v", msgs[2])
	}
}

func TestRecordingFailureDoesNotFailTurn(t *testing.T) {
	gen := &scriptedGenerator{reply: "Hello!"}
	conv := &memoryConversation{appendErr: errors.New("connection lost")}
	o := newTestOrchestrator(gen, &fakeRetriever{}, conv)

	got, err := o.HandleTurn(context.Background(), uuid.New(), "hi", ModeChat)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got.Answer != "Hello!" {
		t.Errorf("answer = %q", got.Answer)
	}
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"bare", "SELECT 1", "SELECT 1"},
		{"fenced with language", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"fenced without language", "```\nSELECT 1\n```", "SELECT 1"},
		{"single-line fence", "```sql SELECT 1```", "SELECT 1"},
		{"prose around fence", "Here you go:\n```sql\nSELECT 1\n```\nEnjoy.", "SELECT 1"},
		{"surrounding whitespace", "  \nSELECT 1\n  ", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractSQL(tt.response); got != tt.want {
				t.Errorf("extractSQL(%q) = %q, want %q", tt.response, got, tt.want)
			}
		})
	}
}

func TestIsRefusal(t *testing.T) {
	if !isRefusal("REFUSED") {
		t.Error("exact sentinel not recognized")
	}
	if !isRefusal("refused: cannot modify data") {
		t.Error("prefixed sentinel not recognized")
	}
	if isRefusal("SELECT 'REFUSED'") {
		t.Error("sentinel inside a query must not trigger")
	}
}
