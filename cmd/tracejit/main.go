// Command tracejit runs tracejit host-language source through the
// tracing bytecode interpreter, either as an interactive trace-inspector
// REPL or as a one-shot script/expression runner, mirroring the
// teacher's own lexer -> parser -> compiler -> runtime pipeline down to
// its flag surface (-f/--file, -e/--eval, -d/--debug, -v/--version).
//
// Unlike the teacher's main.go, which ran compiled bytecode through a
// plain bytecode.vm, this entry point runs it through package interp so
// every invocation — REPL line, script, or one-off expression — goes
// through the same tracing interpreter the jit package uses, and -d
// prints the resulting computation trace alongside the value.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/dr8co/tracejit/compiler"
	"github.com/dr8co/tracejit/config"
	"github.com/dr8co/tracejit/internal/lookaside"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/interp"
	"github.com/dr8co/tracejit/lexer"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/parser"
	"github.com/dr8co/tracejit/repl"
)

const version = "0.1.0"

func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `tracejit v%s

USAGE:
    %s [OPTIONS]

DESCRIPTION:
    tracejit runs tracejit host-language source through the tracing
    bytecode interpreter. Without any flags, it starts an interactive
    trace-inspector REPL.

OPTIONS:
    -f, --file <path>       Execute a source file
    -e, --eval <code>       Evaluate an expression and print the result
    -c, --config <path>     Load a TOML config file (translation table, allow-list)
    -s, --sharp-edges <lvl> Sharp-edge policy level applied uniformly: allow, warn, error (default error)
    -d, --debug             Print the recorded computation trace
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    %s
    %s -f script.tj
    %s -e "let x = 5; x * 2"
    %s -f script.tj -d

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage

	fileFlag := flag.String("file", "", "Execute a source file")
	evalFlag := flag.String("eval", "", "Evaluate an expression and print the result")
	configFlag := flag.String("config", "", "Load a TOML config file (translation table, allow-list)")
	sharpEdgesFlag := flag.String("sharp-edges", "error", "Sharp-edge policy level applied uniformly: allow, warn, error")
	debugFlag := flag.Bool("debug", false, "Print the recorded computation trace")
	versionFlag := flag.Bool("version", false, "Show version information")
	noColorFlag := flag.Bool("no-color", false, "Disable syntax highlighting and colored output")

	flag.StringVar(fileFlag, "f", "", "Execute a source file")
	flag.StringVar(evalFlag, "e", "", "Evaluate an expression and print the result")
	flag.StringVar(configFlag, "c", "", "Load a TOML config file (translation table, allow-list)")
	flag.StringVar(sharpEdgesFlag, "s", "error", "Sharp-edge policy level applied uniformly: allow, warn, error")
	flag.BoolVar(debugFlag, "d", false, "Print the recorded computation trace")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("tracejit v%s\n", version)
		return
	}

	level := parseSharpEdgeLevel(*sharpEdgesFlag)

	if *fileFlag != "" {
		runSource(readFile(*fileFlag), *debugFlag, *configFlag, level)
		return
	}

	if *evalFlag != "" {
		runSource(*evalFlag, *debugFlag, *configFlag, level)
		return
	}

	username := "unknown"
	if usr, err := user.Current(); err == nil {
		username = usr.Username
	}

	var cfg *config.Config
	if *configFlag != "" {
		var err error
		cfg, err = config.LoadFile(*configFlag)
		if err != nil {
			fmt.Printf("config error: %s\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Hello", username+",", "welcome to tracejit!")
	fmt.Println("Feel free to type in tracejit code. (Ctrl+D or Ctrl+C to exit)")

	repl.Start(username, repl.Options{
		NoColor:    *noColorFlag,
		Debug:      *debugFlag,
		SharpEdges: level,
		Config:     cfg,
	})
}

func readFile(filename string) string {
	cleaned := filepath.Clean(filename)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		fmt.Printf("Error getting absolute path: %s\n", err)
		os.Exit(1)
	}

	//nolint:gosec // the path comes from a trusted CLI flag, not untrusted user input
	content, err := os.ReadFile(absolute)
	if err != nil {
		fmt.Printf("Error reading file: %s\n", err)
		os.Exit(1)
	}
	return string(content)
}

// parseSharpEdgeLevel maps a -sharp-edges flag value to its
// sharpedge.Level, defaulting to the conservative Error level for any
// value other than "allow"/"warn".
func parseSharpEdgeLevel(flagValue string) sharpedge.Level {
	switch flagValue {
	case "allow":
		return sharpedge.Allow
	case "warn":
		return sharpedge.Warn
	default:
		return sharpedge.Error
	}
}

// runSource lexes, parses, compiles, and traces src as a single
// top-level program, the non-interactive analogue of repl.evalCmd.
// configPath, when non-empty, is loaded to seed the compiler's call
// translation table and the interpreter's global allow-list.
func runSource(src string, debug bool, configPath string, level sharpedge.Level) {
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	if len(p.Errors()) != 0 {
		_, _ = fmt.Fprintln(os.Stderr, "Parser errors:")
		for _, msg := range p.Errors() {
			_, _ = fmt.Fprintln(os.Stderr, "\t"+msg)
		}
		os.Exit(1)
	}

	var cfg *config.Config
	if configPath != "" {
		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			fmt.Printf("config error: %s\n", err)
			os.Exit(1)
		}
	}

	comp := compiler.New()
	if cfg != nil {
		comp = compiler.NewWithTranslations(cfg.TranslationTable())
	}
	if err := comp.Compile(program); err != nil {
		fmt.Printf("Compilation error: %s\n", err)
		os.Exit(1)
	}
	bc := comp.Bytecode()

	log := logrus.New()
	if !debug {
		log.SetLevel(logrus.ErrorLevel)
	}
	policy := sharpedge.NewWithLevel(log.WithField("source", "cmd/tracejit"), level)

	mainFn := &object.CompiledFunction{Instructions: bc.Instructions}
	mainClosure := &object.Closure{Fn: mainFn}

	i := interp.New(bc.Constants, nil, lookaside.New(), policy)
	if cfg != nil {
		i.AllowedGlobals = cfg.AllowListSet()
	}
	if err := i.RunTraced(mainClosure, nil); err != nil {
		fmt.Printf("runtime error: %s\n", err)
		os.Exit(1)
	}

	if last := i.LastPoppedStackItem(); last != nil && last.Concrete != nil {
		fmt.Println(last.Concrete.Inspect())
	}

	if debug {
		fmt.Println("trace:")
		for _, sym := range i.Trace.Symbols() {
			fmt.Println("  " + sym.String())
		}
		for _, c := range i.Trace.Constraints() {
			fmt.Printf("  guard: %s %s %v\n", c.Prov, c.Op, c.Value)
		}
	}
}
