// Package dispatch classifies raw input lines into a closed set of commands.
//
// Classification is stateless per turn. Explicit slash commands route
// directly; unprefixed text goes through a keyword heuristic that picks
// between SQL and chat mode, defaulting to chat on ambiguity. The heuristic
// only affects which conversational path runs; misclassification can never
// execute anything, since SQL mode is still gated by validation and
// confirmation downstream.
package dispatch

import "strings"

// Kind enumerates every command the loop understands. The set is closed:
// dispatching is an exhaustive switch, not a string-keyed lookup.
type Kind int

const (
	// KindSQL is an explicit natural-language-to-SQL request (/sql).
	KindSQL Kind = iota
	// KindAsk is an explicit knowledge-base question (/ask).
	KindAsk
	// KindChat is an explicit conversational turn (/chat).
	KindChat
	// KindHistory shows recent conversation (/history).
	KindHistory
	// KindSchema shows the queryable schema (/schema).
	KindSchema
	// KindHelp shows usage (/help).
	KindHelp
	// KindQuit ends the session (/quit, /exit).
	KindQuit
	// KindUnknown is an unrecognized slash command; Command.Text holds it.
	KindUnknown
	// KindEmpty is a blank line; the loop skips it.
	KindEmpty
)

// String implements Stringer for logging.
func (k Kind) String() string {
	switch k {
	case KindSQL:
		return "sql"
	case KindAsk:
		return "ask"
	case KindChat:
		return "chat"
	case KindHistory:
		return "history"
	case KindSchema:
		return "schema"
	case KindHelp:
		return "help"
	case KindQuit:
		return "quit"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Command is one classified input line.
type Command struct {
	Kind Kind
	// Text is the command payload: the question for SQL/Ask/Chat, or the
	// unrecognized command word for KindUnknown.
	Text string
}

// dataKeywords signal a question about stored data. Matched as substrings of
// the lowercased input, same as the reference heuristic.
var dataKeywords = []string{
	"show", "list", "how many", "count", "total", "find", "get",
	"customers", "products", "orders",
}

// Parse classifies one raw input line.
func Parse(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Kind: KindEmpty}
	}

	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: autoDetect(trimmed), Text: trimmed}
	}

	word, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(word) {
	case "/sql":
		return Command{Kind: KindSQL, Text: rest}
	case "/ask":
		return Command{Kind: KindAsk, Text: rest}
	case "/chat":
		return Command{Kind: KindChat, Text: rest}
	case "/history":
		return Command{Kind: KindHistory}
	case "/schema":
		return Command{Kind: KindSchema}
	case "/help":
		return Command{Kind: KindHelp}
	case "/quit", "/exit":
		return Command{Kind: KindQuit}
	default:
		return Command{Kind: KindUnknown, Text: word}
	}
}

// autoDetect scores unprefixed text: data-question keywords pick SQL mode,
// anything else falls back to chat.
func autoDetect(text string) Kind {
	lower := strings.ToLower(text)
	for _, kw := range dataKeywords {
		if strings.Contains(lower, kw) {
			return KindSQL
		}
	}
	return KindChat
}
