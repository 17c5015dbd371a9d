package dispatch

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"explicit sql", "/sql show me all products", Command{KindSQL, "show me all products"}},
		{"explicit ask", "/ask what is the return policy?", Command{KindAsk, "what is the return policy?"}},
		{"explicit chat", "/chat hello there", Command{KindChat, "hello there"}},
		{"history", "/history", Command{KindHistory, ""}},
		{"schema", "/schema", Command{KindSchema, ""}},
		{"help", "/help", Command{KindHelp, ""}},
		{"quit", "/quit", Command{KindQuit, ""}},
		{"exit alias", "/exit", Command{KindQuit, ""}},
		{"command case-insensitive", "/SQL list orders", Command{KindSQL, "list orders"}},
		{"unknown command", "/frobnicate now", Command{KindUnknown, "/frobnicate"}},
		{"empty line", "   ", Command{KindEmpty, ""}},
		{"sql without payload", "/sql", Command{KindSQL, ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.line); got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestAutoDetect(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"data verb", "show me the cheapest laptop", KindSQL},
		{"count phrase", "how many orders were placed today?", KindSQL},
		{"table name", "which customers spent the most?", KindSQL},
		{"case-insensitive", "LIST ALL PRODUCTS", KindSQL},
		{"plain conversation", "hello, what can you do?", KindChat},
		{"ambiguous defaults to chat", "tell me a joke", KindChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line)
			if got.Kind != tt.want {
				t.Errorf("Parse(%q).Kind = %v, want %v", tt.line, got.Kind, tt.want)
			}
			if got.Text != tt.line {
				t.Errorf("Parse(%q).Text = %q, want the raw line", tt.line, got.Text)
			}
		})
	}
}
