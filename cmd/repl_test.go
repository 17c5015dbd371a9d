package cmd

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/dbchat-dev/dbchat/internal/gate"
)

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &gate.ResultSet{
		Columns: []string{"name", "price"},
		Rows: [][]any{
			{"Laptop Pro", 1299.99},
			{"Mouse", nil},
		},
	})

	out := buf.String()
	for _, want := range []string{"name", "price", "Laptop Pro", "NULL", "2 row(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "display limit") {
		t.Error("truncation notice shown for untruncated result")
	}
}

func TestRenderResultTruncated(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &gate.ResultSet{
		Columns:   []string{"id"},
		Rows:      [][]any{{1}},
		Truncated: true,
	})
	if !strings.Contains(buf.String(), "display limit reached") {
		t.Errorf("missing truncation notice:\n%s", buf.String())
	}
}

func TestRenderResultEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &gate.ResultSet{Columns: []string{"id"}})
	if !strings.Contains(buf.String(), "No rows returned.") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "YES\n", true},
		{"no", "n\n", false},
		{"default is no", "\n", false},
		{"eof is decline", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := &repl{in: bufio.NewScanner(strings.NewReader(tt.input)), out: &buf}

			got, err := r.confirm("SELECT 1")
			if err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if got != tt.want {
				t.Errorf("confirm = %v, want %v", got, tt.want)
			}
			// The original candidate text must be what the operator sees.
			if !strings.Contains(buf.String(), "SELECT 1") {
				t.Errorf("prompt missing candidate:\n%s", buf.String())
			}
		})
	}
}
