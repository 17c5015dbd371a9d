package chat

import (
	"fmt"
	"strings"

	"github.com/dbchat-dev/dbchat/internal/knowledge"
	"github.com/dbchat-dev/dbchat/internal/llm"
	"github.com/dbchat-dev/dbchat/internal/session"
)

// refusalSentinel is the token the model is instructed to emit when it
// declines to produce a query. Recognized case-insensitively at the start of
// the extracted candidate.
const refusalSentinel = "REFUSED"

const sqlSystemPrompt = "You are a SQL expert assistant. You must emit only a single read-only " +
	"PostgreSQL SELECT query and nothing else. Never produce INSERT, UPDATE, DELETE, DDL or any " +
	"other statement that modifies data. If the question cannot be answered with a read-only " +
	"query, reply with exactly " + refusalSentinel + "."

const ragSystemPrompt = "You are a helpful assistant with access to a knowledge base. " +
	"Answer using only the provided context; say so when the context does not cover the question."

const chatSystemPrompt = "You are a helpful assistant for a database chat system. You can help " +
	"users understand their data, answer questions, and provide guidance."

// buildSQLPrompt combines the fixed instruction, schema metadata and the
// user's question into one generation request.
func buildSQLPrompt(schema, question string) []llm.Message {
	var b strings.Builder
	b.WriteString(schema)
	b.WriteString("\n\nUser Question: ")
	b.WriteString(question)
	b.WriteString("\n\nGenerate ONLY the SQL query, without any explanation or markdown formatting. The query should be ready to execute.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sqlSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// buildRAGPrompt grounds the question in retrieved documents plus recent
// conversation.
func buildRAGPrompt(results []knowledge.Result, history []session.Message, question string) []llm.Message {
	var b strings.Builder
	b.WriteString("Context from knowledge base:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\nDocument %d: %s\n", i+1, r.Document.Content)
	}

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	b.WriteString("\nUser Question: ")
	b.WriteString(question)
	b.WriteString("\n\nProvide a helpful and accurate answer based on the context provided.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: ragSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// buildChatPrompt replays recent history as role-tagged messages.
func buildChatPrompt(history []session.Message, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: chatSystemPrompt})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

// extractSQL pulls the candidate statement out of a model response,
// stripping surrounding markdown code fences when present.
func extractSQL(response string) string {
	s := strings.TrimSpace(response)

	idx := strings.Index(s, "```")
	if idx < 0 {
		return s
	}

	rest := s[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Language tag (```sql) occupies the rest of the fence line.
		rest = rest[nl+1:]
	} else {
		// Single-line fence: ```sql SELECT ...```
		rest = strings.TrimSpace(rest)
		if len(rest) >= 4 && strings.EqualFold(rest[:4], "sql ") {
			rest = rest[4:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// isRefusal reports whether the extracted candidate is the refusal sentinel.
func isRefusal(candidate string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(candidate)), refusalSentinel)
}
