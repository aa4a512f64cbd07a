// Command tracectl inspects compiled tracejit traces: it loads a source
// file, resolves one of its top-level `let`-bound functions, traces it
// against a list of integer positional arguments via package jit, and
// either dumps the resulting prologue/computation traces, benchmarks
// repeated compilation of the same function, or checks that running the
// prologue and computation traces through package vm against real
// inputs reproduces what the tracing interpreter computed directly.
//
// Subcommands are structured with github.com/alecthomas/kong, the
// library the retrieval pack's ethpandaops-erigone go.mod carries for
// exactly this kind of typed, multi-command CLI surface — a second,
// genuinely distinct concern from cmd/tracejit's simple flag.Parse
// script runner.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/dr8co/tracejit/compiler"
	"github.com/dr8co/tracejit/config"
	"github.com/dr8co/tracejit/internal/lookaside"
	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/internal/wrapped"
	"github.com/dr8co/tracejit/interp"
	"github.com/dr8co/tracejit/jit"
	"github.com/dr8co/tracejit/lexer"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/parser"
	"github.com/dr8co/tracejit/vm"
)

var cli struct {
	Dump  DumpCmd  `cmd:"" help:"Dump the prologue and computation traces for a function."`
	Bench BenchCmd `cmd:"" help:"Benchmark repeated compilation of a function."`
	Check CheckCmd `cmd:"" help:"Verify the compiled traces reproduce the interpreter's direct result."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("tracectl"),
		kong.Description("Inspect tracejit compiled prologue/computation traces."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// target names the common arguments every subcommand needs to locate
// and trace one function.
type target struct {
	File       string  `arg:"" help:"Source file to compile." type:"existingfile"`
	Fn         string  `help:"Name of the top-level let-bound function to trace." required:""`
	Args       []int64 `help:"Positional integer arguments to trace the function against." sep:","`
	Mode       string  `help:"Cache mode: constant_values or no_caching." default:"no_caching" enum:"constant_values,no_caching"`
	Config     string  `help:"Path to a TOML config file (translation table, allow-list)." type:"existingfile" optional:""`
	SharpEdges string  `help:"Sharp-edge policy level applied uniformly to every edge." default:"error" enum:"allow,warn,error"`
}

// sharpEdgeLevel converts t.SharpEdges to the sharpedge.Level every
// Policy built for this target uses, so the traced compilation and any
// direct interpretation it is compared against (CheckCmd) see the same
// policy.
func (t *target) sharpEdgeLevel() sharpedge.Level {
	switch t.SharpEdges {
	case "allow":
		return sharpedge.Allow
	case "warn":
		return sharpedge.Warn
	default:
		return sharpedge.Error
	}
}

// loadConfig loads t.Config, if set, returning nil with no error when no
// config file was given.
func (t *target) loadConfig() (*config.Config, error) {
	if t.Config == "" {
		return nil, nil
	}
	cfg, err := config.LoadFile(t.Config)
	if err != nil {
		return nil, fmt.Errorf("tracectl: %w", err)
	}
	return cfg, nil
}

// compile loads t.File, resolves t.Fn as a global closure, and traces it
// against t.Args, returning the jit.Result and the compiled constant
// pool. CheckCmd obtains the closure it re-runs directly from
// resolveClosure, not from this function.
func (t *target) compile() (*jit.Result, []object.Object, error) {
	src, err := os.ReadFile(t.File)
	if err != nil {
		return nil, nil, fmt.Errorf("tracectl: %w", err)
	}

	cfg, err := t.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	l := lexer.New(string(src))
	p := parser.New(l)
	program := p.ParseProgram()
	if len(p.Errors()) != 0 {
		return nil, nil, fmt.Errorf("tracectl: parse errors: %v", p.Errors())
	}

	st := compiler.NewSymbolTable()
	if cfg != nil {
		st.Translations = cfg.TranslationTable()
	}
	comp := compiler.NewWithState(st, nil)
	if err := comp.Compile(program); err != nil {
		return nil, nil, fmt.Errorf("tracectl: compile: %w", err)
	}
	bc := comp.Bytecode()

	sym, ok := st.Resolve(t.Fn)
	if !ok || sym.Scope != compiler.GlobalScope {
		return nil, nil, fmt.Errorf("tracectl: no top-level function named %q", t.Fn)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	policy := sharpedge.NewWithLevel(log.WithField("source", "tracectl"), t.sharpEdgeLevel())
	lk := lookaside.New()

	mainFn := &object.CompiledFunction{Instructions: bc.Instructions}
	mainClosure := &object.Closure{Fn: mainFn}
	boot := interp.New(bc.Constants, nil, lk, policy)
	if err := boot.RunTraced(mainClosure, nil); err != nil {
		return nil, nil, fmt.Errorf("tracectl: running top-level statements: %w", err)
	}

	globals := boot.GlobalsSnapshot()
	closure, ok := globals[sym.Index].Concrete.(*object.Closure)
	if !ok {
		return nil, nil, fmt.Errorf("tracectl: %q is not a function", t.Fn)
	}

	posArgs := make([]object.Object, len(t.Args))
	for idx, v := range t.Args {
		posArgs[idx] = &object.Integer{Value: v}
	}

	cc := jit.NewCompileContext(log, lk)
	if cfg != nil {
		cc.Translate = cfg.TranslationTable()
		cc.AllowedGlobals = cfg.AllowListSet()
		cc.GlobalNames = st.GlobalNames()
	}
	mode := jit.NoCaching
	if t.Mode == string(jit.ConstantValues) {
		mode = jit.ConstantValues
	}

	result, err := jit.Compile(cc, bc.Constants, closure, posArgs, nil, nil, t.sharpEdgeLevel(), mode)
	if err != nil {
		return nil, nil, fmt.Errorf("tracectl: %w", err)
	}
	return result, bc.Constants, nil
}

// resolveClosure re-parses and re-compiles t.File from scratch and runs
// its top-level statements once, returning the named function's closure
// alongside the constant pool and global slots a caller needs to run
// that closure directly through a fresh interp.Interpreter — used by
// CheckCmd to compare a traced result against direct interpretation.
func (t *target) resolveClosure() (*object.Closure, []object.Object, []*wrapped.Value, error) {
	src, err := os.ReadFile(t.File)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tracectl: %w", err)
	}

	cfg, err := t.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	program := parser.New(lexer.New(string(src))).ParseProgram()
	st := compiler.NewSymbolTable()
	if cfg != nil {
		st.Translations = cfg.TranslationTable()
	}
	comp := compiler.NewWithState(st, nil)
	if err := comp.Compile(program); err != nil {
		return nil, nil, nil, fmt.Errorf("tracectl: recompiling for direct run: %w", err)
	}
	bc := comp.Bytecode()

	sym, ok := st.Resolve(t.Fn)
	if !ok || sym.Scope != compiler.GlobalScope {
		return nil, nil, nil, fmt.Errorf("tracectl: no top-level function named %q", t.Fn)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	policy := sharpedge.NewWithLevel(log.WithField("source", "tracectl"), t.sharpEdgeLevel())
	lk := lookaside.New()

	mainFn := &object.CompiledFunction{Instructions: bc.Instructions}
	mainClosure := &object.Closure{Fn: mainFn}
	boot := interp.New(bc.Constants, nil, lk, policy)
	if err := boot.RunTraced(mainClosure, nil); err != nil {
		return nil, nil, nil, fmt.Errorf("tracectl: running top-level statements: %w", err)
	}

	globals := boot.GlobalsSnapshot()
	closure, ok := globals[sym.Index].Concrete.(*object.Closure)
	if !ok {
		return nil, nil, nil, fmt.Errorf("tracectl: %q is not a function", t.Fn)
	}
	return closure, bc.Constants, globals, nil
}

// DumpCmd prints every BoundSymbol of both traces plus the recorded
// guard constraints, in the teacher REPL's "trace:" rendering.
type DumpCmd struct {
	target
}

func (c *DumpCmd) Run() error {
	result, _, err := c.compile()
	if err != nil {
		return err
	}
	printTrace("prologue", result.Prologue)
	printTrace("computation", result.Computation)
	return nil
}

func printTrace(label string, t *prims.TraceCtx) {
	fmt.Printf("%s:\n", label)
	for _, sym := range t.Symbols() {
		fmt.Println("  " + sym.String())
	}
	for _, c := range t.Constraints() {
		fmt.Printf("  guard: %s %s %v\n", c.Prov, c.Op, c.Value)
	}
}

// BenchCmd compiles the same function N times, reporting total and
// per-compile wall-clock time. Each iteration re-reads and re-compiles
// the file and traces with a fresh jit.CompileContext, so no iteration
// hits the per-context result cache, even with Mode=constant_values;
// the timing covers the whole pipeline.
type BenchCmd struct {
	target
	N int `help:"Number of compilations to run." default:"100"`
}

func (c *BenchCmd) Run() error {
	start := time.Now()
	for i := 0; i < c.N; i++ {
		if _, _, err := c.compile(); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("%d compiles in %s (%s/compile)\n", c.N, elapsed, elapsed/time.Duration(c.N))
	return nil
}

// CheckCmd runs the compiled prologue and computation traces through
// package vm against the same concrete arguments used to trace them,
// and compares the result against running the original closure directly
// through the tracing interpreter — the round-trip property from
// spec.md §8: a trace compiled against given inputs must reproduce the
// value a direct interpretation of the same inputs would have produced.
type CheckCmd struct {
	target
}

func (c *CheckCmd) Run() error {
	result, _, err := c.compile()
	if err != nil {
		return err
	}

	posArgs := make([]object.Object, len(c.Args))
	for idx, v := range c.Args {
		posArgs[idx] = &object.Integer{Value: v}
	}

	proExec := vm.NewExecutor(posArgs)
	unpacked, err := proExec.Run(result.Prologue)
	if err != nil {
		return fmt.Errorf("tracectl: prologue guards failed: %w", err)
	}

	compExec := vm.NewExecutor(unpacked)
	traced, err := compExec.Run(result.Computation)
	if err != nil {
		return fmt.Errorf("tracectl: computation trace failed: %w", err)
	}
	if len(traced) != 1 {
		return fmt.Errorf("tracectl: expected a single return value, got %d", len(traced))
	}

	closure, constants, globals, err := c.resolveClosure()
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	policy := sharpedge.NewWithLevel(log.WithField("source", "tracectl"), c.sharpEdgeLevel())
	direct := interp.New(constants, globals, lookaside.New(), policy)

	args := make([]*wrapped.Value, len(posArgs))
	for idx, a := range posArgs {
		args[idx] = wrapped.Wrap(a, provenance.Root(idx))
	}
	if err := direct.RunTraced(closure, args); err != nil {
		return fmt.Errorf("tracectl: direct interpretation failed: %w", err)
	}
	directResult := direct.LastPoppedStackItem().Concrete

	if traced[0].Inspect() != directResult.Inspect() {
		return fmt.Errorf("tracectl: mismatch: traced=%s direct=%s", traced[0].Inspect(), directResult.Inspect())
	}
	fmt.Printf("ok: traced result %s matches direct interpretation\n", traced[0].Inspect())
	return nil
}
