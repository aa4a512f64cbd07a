// Package sharpedge implements the tri-state sharp-edge policy (C7):
// how the interpreter reacts when it encounters a construct it can
// interpret but which is known to produce surprising or unsound traces
// (e.g. a Python-style mutation of a traced container, here: reassigning
// through an index expression the tracer has already captured
// provenance for).
//
// WARN-level sharp edges are logged with github.com/sirupsen/logrus,
// with an edge field added to the caller's entry (which carries the
// compilation id when jit.CompileContext supplies it) so they can be
// correlated with jit's own compile-lifecycle logging.
package sharpedge

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level is one of the three sharp-edge policy states.
type Level string

const (
	// Allow means the construct is interpreted silently.
	Allow Level = "ALLOW"
	// Warn means the construct is interpreted, but a structured warning
	// is logged first.
	Warn Level = "WARN"
	// Error means the construct aborts compilation with an
	// Unsupported-construct error.
	Error Level = "ERROR"
)

// Edge names a specific sharp-edge condition the interpreter can check
// the policy for.
type Edge string

const (
	// ReassignTracedContainer fires when an index-assignment targets a
	// value the tracer has already handed out a proxy for.
	ReassignTracedContainer Edge = "reassign_traced_container"
	// MixedConcreteSymbolicCompare fires when a comparison mixes a
	// concrete operand with a symbolic one in a way that cannot be
	// guarded precisely (see provenance.Record.SafeForGuarding).
	MixedConcreteSymbolicCompare Edge = "mixed_concrete_symbolic_compare"
	// UnboundedRecursionDepth fires when the interpreter's call-frame
	// stack exceeds a configured depth, a likely sign of symbolic
	// recursion that will never terminate.
	UnboundedRecursionDepth Edge = "unbounded_recursion_depth"
	// DisallowedGlobal fires when a global read by name is not present
	// on the compile context's allow-list.
	DisallowedGlobal Edge = "disallowed_global"
	// UnsupportedValueType fires when a non-constant value of a type
	// outside {tensor, number, string, known container, callable} is
	// wrapped and handed a proxy-less pass-through instead.
	UnsupportedValueType Edge = "unsupported_value_type"
	// UnsafeProvenanceForGuard fires when a number or string proxy is
	// minted from a provenance chain that is not SafeForGuarding, so no
	// value-equality constraint can be recorded for it.
	UnsafeProvenanceForGuard Edge = "unsafe_provenance_for_guard"
	// UnsafeOpaqueCall fires when the callee of a call cannot be
	// resolved through the lookaside registry and has no interpretable
	// body either.
	UnsafeOpaqueCall Edge = "unsafe_opaque_call"
)

// Policy maps each known Edge to a Level. Edges with no explicit entry
// default to Error — sharp edges are opt-in to relaxed handling, never
// opt-out by omission.
type Policy struct {
	levels map[Edge]Level
	log    *logrus.Entry
}

// New returns a Policy where every known Edge defaults to Error except
// MixedConcreteSymbolicCompare and UnsafeProvenanceForGuard, which
// default to Warn, logging
// through log (a *logrus.Entry pre-populated with compilation_id by the
// caller, typically jit.CompileContext).
func New(log *logrus.Entry) *Policy {
	return &Policy{
		levels: map[Edge]Level{
			ReassignTracedContainer:      Error,
			MixedConcreteSymbolicCompare: Warn,
			UnboundedRecursionDepth:      Error,
			DisallowedGlobal:             Error,
			UnsupportedValueType:         Error,
			UnsafeProvenanceForGuard:     Warn,
			UnsafeOpaqueCall:             Error,
		},
		log: log,
	}
}

// NewWithLevel returns a Policy where every known Edge is set to the
// same level, the uniform sharp_edges_level a compile-time entry point
// takes as a single scalar rather than New's per-edge defaults. Callers
// may still relax or tighten individual edges afterward via Set.
func NewWithLevel(log *logrus.Entry, level Level) *Policy {
	p := New(log)
	for edge := range p.levels {
		p.levels[edge] = level
	}
	return p
}

// Set overrides the level for a specific edge, the mechanism callers use
// to relax (or tighten) the defaults above.
func (p *Policy) Set(edge Edge, level Level) {
	p.levels[edge] = level
}

// Level returns the configured level for edge.
func (p *Policy) Level(edge Edge) Level {
	if l, ok := p.levels[edge]; ok {
		return l
	}
	return Error
}

// Check applies the policy to edge, given a human-readable detail
// string for logging/error messages. It returns an error only when the
// edge's level is Error; Warn edges log and return nil, and Allow edges
// do nothing at all.
func (p *Policy) Check(edge Edge, detail string) error {
	switch p.Level(edge) {
	case Allow:
		return nil
	case Warn:
		if p.log != nil {
			p.log.WithField("edge", string(edge)).Warn(detail)
		}
		return nil
	default: // Error
		return fmt.Errorf("sharpedge: %s: %s", edge, detail)
	}
}
