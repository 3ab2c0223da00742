// Package kgerrors defines the typed error kinds surfaced across the parser,
// rule catalog, evaluator, and persistence layer (spec §7). Callers use
// errors.As to recover a specific kind rather than matching on strings.
package kgerrors

import (
	"fmt"
	"strings"
	"time"
)

// ParseError is produced by the parser; it never leaves partial state
// behind (internal/lang.Parse either returns a full Program or an error).
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	if e.Line == 0 && e.Column == 0 {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// SchemaViolation reports an arity or type mismatch on insert.
type SchemaViolation struct {
	Expected, Got string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation: expected %s, got %s", e.Expected, e.Got)
}

// VectorDimensionMismatch reports a declared-dimension violation.
type VectorDimensionMismatch struct {
	Expected, Got int
}

func (e *VectorDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// NotFound reports a missing KG, relation, or rule.
type NotFound struct {
	Kind string // "knowledge_graph" | "relation" | "rule"
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// AlreadyExists reports a duplicate create.
type AlreadyExists struct {
	Kind string
	Name string
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Name)
}

// CannotDrop reports a refusal to drop the default or in-use KG.
type CannotDrop struct {
	Reason string
}

func (e *CannotDrop) Error() string {
	return fmt.Sprintf("cannot drop: %s", e.Reason)
}

// ResourceErrorKind enumerates the resource limits guarded by ExecutionConfig.
type ResourceErrorKind string

const (
	ResourceMemory           ResourceErrorKind = "memory"
	ResourceResultSize       ResourceErrorKind = "result_size"
	ResourceIntermediateSize ResourceErrorKind = "intermediate_size"
	ResourceRowWidth         ResourceErrorKind = "row_width"
	ResourceRecursionDepth   ResourceErrorKind = "recursion_depth"
)

// ResourceError reports a query exceeding a configured resource bound.
type ResourceError struct {
	Kind   ResourceErrorKind
	Detail string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource limit exceeded (%s): %s", e.Kind, e.Detail)
}

// TimeoutError reports a query cancelled by its deadline.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query timed out after %v (budget %v)", e.Elapsed, e.Timeout)
}

// Unstratified reports a rule set whose dependency graph has a negative
// edge inside a strongly-connected component.
type Unstratified struct {
	From, To string
	Cycle    []string
}

func (e *Unstratified) Error() string {
	return fmt.Sprintf("unstratified negation %s -> %s through cycle [%s]", e.From, e.To, strings.Join(e.Cycle, ", "))
}

// UnsafeRuleKind distinguishes the two safety checks of §4.2.
type UnsafeRuleKind string

const (
	UnsafeHead            UnsafeRuleKind = "head"
	UnsafeRangeRestriction UnsafeRuleKind = "range_restriction"
)

// UnsafeRule reports a head or negated-atom variable with no positive
// binding.
type UnsafeRule struct {
	Kind      UnsafeRuleKind
	Variables []string
}

func (e *UnsafeRule) Error() string {
	return fmt.Sprintf("unsafe rule (%s): unbound variables [%s]", e.Kind, strings.Join(e.Variables, ", "))
}

// AggregateIncompatible reports conflicting head aggregates across clauses.
type AggregateIncompatible struct {
	Existing, New string
}

func (e *AggregateIncompatible) Error() string {
	return fmt.Sprintf("incompatible aggregates: existing %s, new %s", e.Existing, e.New)
}

// ArityMismatch reports a new clause whose head arity disagrees with the
// existing clause set.
type ArityMismatch struct {
	Existing, New int
}

func (e *ArityMismatch) Error() string {
	return fmt.Sprintf("arity mismatch: existing %d, new %d", e.Existing, e.New)
}

// IoError wraps a persistence I/O failure with the offending path.
type IoError struct {
	Path  string
	Cause error
}

func (e *IoError) Error() string { return fmt.Sprintf("io error on %s: %v", e.Path, e.Cause) }
func (e *IoError) Unwrap() error { return e.Cause }

// CorruptFile reports a referenced batch/shard file that is unreadable.
type CorruptFile struct {
	Path   string
	Detail string
}

func (e *CorruptFile) Error() string {
	return fmt.Sprintf("corrupt file %s: %s", e.Path, e.Detail)
}

// Internal reports a condition that should be unreachable in correct use.
type Internal struct {
	Message string
}

func (e *Internal) Error() string { return fmt.Sprintf("internal error: %s", e.Message) }
