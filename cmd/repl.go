package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dbchat-dev/dbchat/internal/app"
	"github.com/dbchat-dev/dbchat/internal/chat"
	"github.com/dbchat-dev/dbchat/internal/dispatch"
	"github.com/dbchat-dev/dbchat/internal/gate"
	"github.com/dbchat-dev/dbchat/internal/llm"
	"github.com/dbchat-dev/dbchat/internal/session"
)

const helpText = `Commands:
  /sql <question>    Generate a SQL query from your question (asks before running)
  /ask <question>    Answer from the knowledge base
  /chat <message>    Plain conversation
  /history           Show recent conversation
  /schema            Show the queryable tables
  /help              Show this help
  /quit, /exit       Leave

Unprefixed text is routed automatically: data questions go to SQL mode,
everything else to chat.`

// repl runs the interactive loop: read, classify, handle, repeat.
type repl struct {
	app     *app.App
	session *session.Session
	in      *bufio.Scanner
	out     io.Writer
}

// runREPL creates a session and processes turns until /quit, EOF or context
// cancellation.
func runREPL(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	sess, err := a.Sessions.Create(ctx, "CLI Session")
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	r := &repl{
		app:     a,
		session: sess,
		in:      bufio.NewScanner(in),
		out:     out,
	}

	fmt.Fprintf(out, "dbchat — connected to %s. Type /help for commands.\n", a.Config.PostgresDBName)
	fmt.Fprintf(out, "Session: %s\n\n", sess.ID)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nGoodbye!")
			return nil
		default:
		}

		fmt.Fprint(out, "> ")
		if !r.in.Scan() {
			if err := r.in.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			fmt.Fprintln(out, "\nGoodbye!")
			return nil
		}

		if done := r.handle(ctx, dispatch.Parse(r.in.Text())); done {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		fmt.Fprintln(out)
	}
}

// handle processes one classified command. Returns true when the loop should
// stop. Every turn ends with a visible outcome: answer, rejection or error.
func (r *repl) handle(ctx context.Context, cmd dispatch.Command) bool {
	switch cmd.Kind {
	case dispatch.KindEmpty:
		return false
	case dispatch.KindQuit:
		return true
	case dispatch.KindHelp:
		fmt.Fprintln(r.out, helpText)
	case dispatch.KindUnknown:
		fmt.Fprintf(r.out, "Unknown command: %s\nType /help for available commands.\n", cmd.Text)
	case dispatch.KindHistory:
		r.showHistory(ctx)
	case dispatch.KindSchema:
		r.showSchema(ctx)
	case dispatch.KindSQL:
		r.turn(ctx, cmd.Text, chat.ModeSQL)
	case dispatch.KindAsk:
		r.turn(ctx, cmd.Text, chat.ModeRAG)
	case dispatch.KindChat:
		r.turn(ctx, cmd.Text, chat.ModeChat)
	}
	return false
}

// turn runs one orchestrated exchange and renders its outcome.
func (r *repl) turn(ctx context.Context, text string, mode chat.Mode) {
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(r.out, "Please provide a question.")
		return
	}

	outcome, err := r.app.Orchestrator.HandleTurn(ctx, r.session.ID, text, mode)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			fmt.Fprintln(r.out, "The model service is not reachable. Is it running? Try again in a moment.")
			return
		}
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}

	switch outcome.Kind {
	case chat.OutcomeDirectAnswer:
		fmt.Fprintln(r.out, outcome.Answer)
	case chat.OutcomeRejected:
		fmt.Fprintf(r.out, "Query rejected: %s\n", outcome.Reason)
	case chat.OutcomeExecutableQuery:
		r.execute(ctx, outcome.Query)
	}
}

// execute routes a validated candidate through the confirmation gate and
// renders the result.
func (r *repl) execute(ctx context.Context, query string) {
	result, err := r.app.Gate.ConfirmAndExecute(ctx, query, r.confirm)
	switch {
	case errors.Is(err, gate.ErrDeclined):
		fmt.Fprintln(r.out, "Query cancelled.")
	case err != nil:
		// Backend rejection of a validated statement surfaces verbatim.
		fmt.Fprintf(r.out, "Error: %v\n", err)
	default:
		renderResult(r.out, result)
	}
}

// confirm shows the candidate and reads a yes/no answer.
func (r *repl) confirm(statement string) (bool, error) {
	fmt.Fprintf(r.out, "\nGenerated query:\n\n  %s\n\nExecute this query? [y/N]: ", statement)
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return false, err
		}
		// EOF counts as a decline.
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(r.in.Text()))
	return answer == "y" || answer == "yes", nil
}

func (r *repl) showHistory(ctx context.Context) {
	messages, err := r.app.Sessions.Recent(ctx, r.session.ID, r.app.Config.HistoryWindow)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	if len(messages) == 0 {
		fmt.Fprintln(r.out, "No conversation yet.")
		return
	}
	for _, m := range messages {
		fmt.Fprintf(r.out, "[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
	}
}

func (r *repl) showSchema(ctx context.Context) {
	schema, err := r.app.SchemaInfo(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, schema)
}

// renderResult prints a result set as an aligned table with a truncation
// notice when the display cap dropped rows.
func renderResult(out io.Writer, result *gate.ResultSet) {
	if len(result.Rows) == 0 {
		fmt.Fprintln(out, "No rows returned.")
		return
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))

	separators := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		separators[i] = strings.Repeat("-", len(col))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))

	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d row(s)", len(result.Rows))
	if result.Truncated {
		fmt.Fprint(out, " (display limit reached, more rows exist)")
	}
	fmt.Fprintln(out)
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
