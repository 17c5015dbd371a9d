// Package security contains the validation layer that gates model-generated
// SQL before it can reach the database.
//
// The validator is the security boundary of dbchat: every candidate statement
// produced by the language model passes through ValidateReadOnly before the
// execution gate will even consider it. Validation is pure and deterministic,
// performs no I/O, and judges intent category only — syntactic validity is
// left to the database, which reports its own errors.
//
// Defense-in-depth: the validator is one of three independent layers
// (read-only system instruction, validation, human confirmation). A failure
// in any single layer must not by itself allow a write to execute.
package security
