// Package jit implements the scoped compile-context entry point (C9):
// the single function external callers use to turn a host-language
// closure and a set of concrete inputs into a prologue trace plus a
// computation trace, wiring together packages interp, prologue,
// lookaside, sharpedge and proxy for one compilation.
//
// Each call to Compile builds its own Interpreter; the Namer and the
// result cache belong to the CompileContext and are shared by every
// Compile call made with it. Beyond that, nothing is shared across
// compilations except, optionally, the lookaside.Registry a caller may
// reuse across a REPL-style session.
package jit

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dr8co/tracejit/internal/lookaside"
	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/internal/translate"
	"github.com/dr8co/tracejit/internal/wrapped"
	"github.com/dr8co/tracejit/interp"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/prologue"
)

// CacheMode controls how repeated compiles of the same closure reuse
// prior work.
type CacheMode string

const (
	// ConstantValues caches a compiled result keyed by the concrete
	// values of the traced arguments, the way a guard-checked tracing
	// JIT normally operates: a later call with the same values for every
	// safe-for-guarding input skips recompilation entirely.
	ConstantValues CacheMode = "constant_values"
	// NoCaching recompiles on every call, used by callers (tests, the
	// trace-inspector REPL) that want to see fresh trace output each
	// time regardless of argument values.
	NoCaching CacheMode = "no_caching"
)

// CompileError is the error type Compile returns for any failure that
// originates from the compilation pipeline itself (as opposed to a
// caller error, e.g. a mismatched argument count).
type CompileError struct {
	Kind   string
	Detail string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("jit: %s: %s", e.Kind, e.Detail)
}

// CompileContext holds everything scoped to a single call to Compile:
// a fresh compilation id for correlating log lines, a logger derived
// from it, the sharp-edge policy in effect, the lookaside registry to
// consult, and the Namer that will mint every proxy this compile
// produces.
type CompileContext struct {
	CompilationID uuid.UUID
	Log           *logrus.Entry
	Policy        *sharpedge.Policy
	Lookaside     *lookaside.Registry
	Namer         *proxy.Namer

	// Translate, GlobalNames and AllowedGlobals are forwarded verbatim
	// onto the Interpreter Compile constructs; see interp.Interpreter
	// for what each controls. All are nil by default.
	Translate      *translate.Table
	GlobalNames    []string
	AllowedGlobals map[string]bool

	cache map[string]*Result
}

// NewCompileContext returns a CompileContext with a fresh compilation
// id, a logger scoped to it, and a placeholder default-Error sharp-edge
// policy; Compile replaces Policy on every call with the uniform level
// its sharp_edges_level argument names, so callers normally never touch
// Policy directly.
func NewCompileContext(log *logrus.Logger, lk *lookaside.Registry) *CompileContext {
	id := uuid.New()
	entry := log.WithField("compilation_id", id.String())
	return &CompileContext{
		CompilationID: id,
		Log:           entry,
		Policy:        sharpedge.New(entry),
		Lookaside:     lk,
		Namer:         proxy.NewNamer(),
		cache:         make(map[string]*Result),
	}
}

// Result is what a successful compilation produces: the prologue that
// must run (and whose guards must pass) before the computation trace is
// valid to execute against a given set of real inputs.
type Result struct {
	Prologue    *prims.TraceCtx
	Computation *prims.TraceCtx
}

// Compile traces fn against posArgs and the keyword arguments named by
// kwargNames/kwargValues, returning the synthesized prologue and
// computation traces. level is the sharp_edges_level every sharp edge
// this compilation encounters is checked against, replacing cc.Policy
// wholesale for the duration of this call — the uniform fourth argument
// of the entry-point contract, as opposed to a per-edge policy a caller
// tunes by hand.
//
// The host bytecode has no native keyword-call syntax, so by convention
// kwargValues are placed after posArgs in the closure's parameter slots,
// in the order kwargNames lists them; callers constructing fn are
// expected to declare its parameters in that same order. This is a
// deliberate simplification, not a faithful reproduction of
// Python-style **kwargs.
func Compile(cc *CompileContext, constants []object.Object, fn *object.Closure,
	posArgs []object.Object, kwargNames []string, kwargValues []object.Object,
	level sharpedge.Level, mode CacheMode) (*Result, error) {

	cc.Policy = sharpedge.NewWithLevel(cc.Log, level)

	if len(kwargNames) != len(kwargValues) {
		return nil, &CompileError{Kind: "bad_arguments", Detail: "kwargNames and kwargValues must be the same length"}
	}
	if fn.Fn.NumParameters != len(posArgs)+len(kwargNames) {
		return nil, &CompileError{Kind: "bad_arguments",
			Detail: fmt.Sprintf("closure wants %d parameters, got %d positional + %d keyword",
				fn.Fn.NumParameters, len(posArgs), len(kwargNames))}
	}

	cc.Log.WithFields(logrus.Fields{
		"num_pos_args": len(posArgs),
		"num_kwargs":   len(kwargNames),
		"cache_mode":   mode,
	}).Info("starting compilation")

	var cacheKey string
	if mode == ConstantValues {
		cacheKey = resultCacheKey(fn, posArgs, kwargNames, kwargValues)
		if cached, ok := cc.cache[cacheKey]; ok {
			cc.Log.Debug("cache hit, skipping recompilation")
			return cached, nil
		}
	}

	args := make([]*wrapped.Value, 0, len(posArgs)+len(kwargNames))
	for idx, a := range posArgs {
		args = append(args, wrapped.Wrap(a, provenance.Root(idx)))
	}
	for idx, name := range kwargNames {
		args = append(args, wrapped.Wrap(kwargValues[idx], provenance.RootKwarg(name)))
	}

	i := interp.New(constants, nil, cc.Lookaside, cc.Policy)
	i.Namer = cc.Namer
	i.Translate = cc.Translate
	i.GlobalNames = cc.GlobalNames
	i.AllowedGlobals = cc.AllowedGlobals

	if err := i.RunTraced(fn, args); err != nil {
		cc.Log.WithError(err).Error("compilation failed during trace")
		return nil, &CompileError{Kind: "trace_failed", Detail: err.Error()}
	}

	comp := i.Trace
	if err := prologue.HoistComputation(comp, i.Origins); err != nil {
		return nil, &CompileError{Kind: "hoist_failed", Detail: err.Error()}
	}

	pro, err := prologue.Synthesize(cc.Namer, comp, i.Origins, comp.Constraints())
	if err != nil {
		return nil, &CompileError{Kind: "prologue_failed", Detail: err.Error()}
	}

	cc.Log.WithFields(logrus.Fields{
		"num_prologue_symbols":    len(pro.Symbols()),
		"num_computation_symbols": len(comp.Symbols()),
	}).Info("compilation finished")

	result := &Result{Prologue: pro, Computation: comp}
	if mode == ConstantValues {
		cc.cache[cacheKey] = result
	}
	return result, nil
}

// resultCacheKey builds a cache key from fn's identity and every
// argument's concrete Inspect() rendering. This is a coarse but correct
// stand-in for the guard-checked cache key a production tracing JIT
// would build from SafeForGuarding provenance only: it invalidates on
// any argument change, tensor shape included, rather than trying to
// decide in advance which arguments the trace will actually guard on.
func resultCacheKey(fn *object.Closure, posArgs []object.Object, kwargNames []string, kwargValues []object.Object) string {
	key := fmt.Sprintf("%p|", fn.Fn)
	for _, a := range posArgs {
		key += a.Inspect() + "|"
	}
	for idx, name := range kwargNames {
		key += name + "=" + kwargValues[idx].Inspect() + "|"
	}
	return key
}
