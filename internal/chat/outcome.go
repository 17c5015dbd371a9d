package chat

// Mode selects how a turn is handled.
type Mode int

const (
	// ModeSQL translates the question into a single read-only query.
	ModeSQL Mode = iota
	// ModeRAG answers from retrieved knowledge-base documents.
	ModeRAG
	// ModeChat answers conversationally from recent history.
	ModeChat
)

// String implements Stringer for logging.
func (m Mode) String() string {
	switch m {
	case ModeSQL:
		return "sql"
	case ModeRAG:
		return "rag"
	case ModeChat:
		return "chat"
	default:
		return "unknown"
	}
}

// OutcomeKind tags the closed set of turn results.
type OutcomeKind int

const (
	// OutcomeExecutableQuery carries a validated candidate ready for the
	// execution gate.
	OutcomeExecutableQuery OutcomeKind = iota
	// OutcomeDirectAnswer carries text to show the user; nothing executes.
	OutcomeDirectAnswer
	// OutcomeRejected carries the reason a candidate was declined. The
	// candidate is never executed and the turn is not retried.
	OutcomeRejected
)

// Outcome is the result of one orchestration turn. Exactly the field for
// its Kind is populated.
type Outcome struct {
	Kind   OutcomeKind
	Query  string // OutcomeExecutableQuery: the original candidate text
	Answer string // OutcomeDirectAnswer
	Reason string // OutcomeRejected
}
