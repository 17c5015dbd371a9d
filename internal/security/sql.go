package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of validating a candidate statement.
// Reason is populated only when Allowed is false.
type Result struct {
	Allowed bool
	Reason  string
}

// accept is the single accepting Result value.
var accept = Result{Allowed: true}

func reject(format string, args ...any) Result {
	return Result{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// forbiddenKeywords lists the write/DDL/DCL/procedural verbs that are never
// allowed in a model-generated statement, matched as whole tokens.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "REPLACE", "MERGE", "GRANT", "REVOKE",
	"EXECUTE", "EXEC", "CALL", "DO",
}

// forbiddenRe matches any forbidden keyword as a whole token. Word-boundary
// matching is a correctness requirement, not an optimization: identifiers
// such as updated_at or created_by contain forbidden verbs as substrings and
// must not be rejected for that alone.
var forbiddenRe = regexp.MustCompile(`\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// ValidateReadOnly classifies a candidate statement as safe-to-execute or
// rejected. It is pure and deterministic: the same text always yields the
// same Result, and malformed SQL never causes an error here — the database
// reports syntax problems itself.
//
// The checks, in order:
//  1. Strip SQL comments (-- line and /* */ block), collapse whitespace.
//  2. Reject more than one top-level statement.
//  3. Reject any forbidden verb appearing as a whole token.
//  4. Require the statement to begin with SELECT or WITH.
func ValidateReadOnly(candidate string) Result {
	stripped := stripComments(candidate)

	statements := splitStatements(stripped)
	if len(statements) > 1 {
		return reject("multiple statements")
	}

	normalized := strings.ToUpper(strings.Join(strings.Fields(stripped), " "))

	if m := forbiddenRe.FindString(normalized); m != "" {
		return reject("forbidden keyword %s", m)
	}

	if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "WITH") {
		return reject("not a read query")
	}

	return accept
}

// lexer states for stripComments / splitStatements.
const (
	stateNormal = iota
	stateLineComment
	stateBlockComment
	stateSingleQuote
	stateDoubleQuote
)

// stripComments removes -- line comments and /* */ block comments while
// preserving quoted strings, so a literal containing "--" is not truncated
// and a keyword hidden inside a comment cannot trigger (or dodge) matching.
// Comments are replaced by a single space to keep token boundaries intact.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	state := stateNormal
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateNormal:
			switch {
			case c == '-' && i+1 < len(s) && s[i+1] == '-':
				state = stateLineComment
				b.WriteByte(' ')
				i++
			case c == '/' && i+1 < len(s) && s[i+1] == '*':
				state = stateBlockComment
				b.WriteByte(' ')
				i++
			case c == '\'':
				state = stateSingleQuote
				b.WriteByte(c)
			case c == '"':
				state = stateDoubleQuote
				b.WriteByte(c)
			default:
				b.WriteByte(c)
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				b.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(s) && s[i+1] == '/' {
				state = stateNormal
				i++
			}
		case stateSingleQuote:
			b.WriteByte(c)
			if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			b.WriteByte(c)
			if c == '"' {
				state = stateNormal
			}
		}
	}
	return b.String()
}

// splitStatements splits comment-free text on top-level semicolons and
// returns the non-empty statement segments. Semicolons inside quoted
// strings do not separate statements; a trailing semicolon produces no
// extra segment.
func splitStatements(s string) []string {
	var (
		segments []string
		start    int
		state    = stateNormal
	)

	flush := func(end int) {
		if seg := strings.TrimSpace(s[start:end]); seg != "" {
			segments = append(segments, seg)
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateNormal:
			switch c {
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case ';':
				flush(i)
				start = i + 1
			}
		case stateSingleQuote:
			if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}
		}
	}
	flush(len(s))
	return segments
}
