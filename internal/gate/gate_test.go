package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dbchat-dev/dbchat/internal/log"
)

// countingExecutor records how many times Execute was called.
type countingExecutor struct {
	calls  int
	result *ResultSet
	err    error
}

func (e *countingExecutor) Execute(_ context.Context, _ string) (*ResultSet, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func alwaysYes(string) (bool, error) { return true, nil }
func alwaysNo(string) (bool, error)  { return false, nil }

func TestDeclineLeavesStorageUnqueried(t *testing.T) {
	exec := &countingExecutor{result: &ResultSet{}}
	g := New(exec, 50, log.NewNop())

	_, err := g.ConfirmAndExecute(context.Background(), "SELECT 1", alwaysNo)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("declined execution must not touch storage, got %d calls", exec.calls)
	}
}

func TestConfirmedExecutionForwardsOriginalText(t *testing.T) {
	var seen string
	exec := &recordingExecutor{result: &ResultSet{Columns: []string{"n"}, Rows: [][]any{{1}}}, seen: &seen}
	g := New(exec, 50, log.NewNop())

	original := "SELECT 1 -- original spacing preserved"
	res, err := g.ConfirmAndExecute(context.Background(), original, alwaysYes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != original {
		t.Errorf("executor received %q, want verbatim %q", seen, original)
	}
	if len(res.Rows) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

type recordingExecutor struct {
	result *ResultSet
	seen   *string
}

func (e *recordingExecutor) Execute(_ context.Context, stmt string) (*ResultSet, error) {
	*e.seen = stmt
	return e.result, nil
}

func TestResultTruncation(t *testing.T) {
	rows := make([][]any, 80)
	for i := range rows {
		rows[i] = []any{i}
	}
	exec := &countingExecutor{result: &ResultSet{Columns: []string{"i"}, Rows: rows}}
	g := New(exec, 50, log.NewNop())

	res, err := g.ConfirmAndExecute(context.Background(), "SELECT i FROM big", alwaysYes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 50 {
		t.Errorf("expected 50 rows after truncation, got %d", len(res.Rows))
	}
	if !res.Truncated {
		t.Error("expected Truncated flag")
	}
	if exec.calls != 1 {
		t.Errorf("truncation must not re-query, got %d calls", exec.calls)
	}
}

func TestStructuralErrorSurfacesVerbatim(t *testing.T) {
	backendErr := fmt.Errorf(`column "nonexistent" does not exist`)
	exec := &countingExecutor{err: backendErr}
	g := New(exec, 50, log.NewNop())

	_, err := g.ConfirmAndExecute(context.Background(), "SELECT nonexistent FROM users", alwaysYes)
	if !errors.Is(err, backendErr) {
		t.Fatalf("structural error must surface unchanged, got %v", err)
	}
}

func TestConfirmError(t *testing.T) {
	exec := &countingExecutor{result: &ResultSet{}}
	g := New(exec, 50, log.NewNop())

	_, err := g.ConfirmAndExecute(context.Background(), "SELECT 1", func(string) (bool, error) {
		return false, errors.New("stdin closed")
	})
	if err == nil || errors.Is(err, ErrDeclined) {
		t.Fatalf("confirmation failure must be an error distinct from decline, got %v", err)
	}
	if exec.calls != 0 {
		t.Errorf("failed confirmation must not touch storage")
	}
}
