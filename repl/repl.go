// Package repl implements the trace inspector: an interactive REPL for
// the tracejit host language that, instead of evaluating each line
// against a live environment, compiles it and runs it through the
// tracing interpreter (package interp), showing the ordinary result
// value and, in debug mode, the resulting computation trace (and any
// guard constraints it recorded) alongside it.
//
// It reuses the teacher's Bubbletea/Bubbles/Lipgloss REPL architecture
// verbatim down to the styling and multiline-input handling; only
// evalCmd's internals differ, since there is no tree-walking
// evaluator or persistent *object.Environment in this tracer — each
// line compiles and runs standalone, with globals persisted across
// lines the same way the teacher's VM-based REPL persisted them.
package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/dr8co/tracejit/compiler"
	"github.com/dr8co/tracejit/config"
	"github.com/dr8co/tracejit/internal/lookaside"
	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/internal/wrapped"
	"github.com/dr8co/tracejit/interp"
	"github.com/dr8co/tracejit/lexer"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/parser"
	"github.com/dr8co/tracejit/token"
)

const (
	// Prompt is the default prompt for the REPL.
	Prompt = ">> "

	// ContPrompt is the continuation prompt used in multiline input mode.
	ContPrompt = ".. "
)

// Options contains configuration options for the REPL.
type Options struct {
	NoColor bool // Disable syntax highlighting and colored output
	Debug   bool // Enable debug mode with more verbose output

	// SharpEdges is the uniform sharp_edges_level every line's policy is
	// built with, the same scalar jit.Compile's level parameter takes.
	// The zero value is treated as sharpedge.Error, the conservative
	// default every other entry point falls back to.
	SharpEdges sharpedge.Level

	// Config, when non-nil, seeds each line's compiler with its call
	// translation table and each line's interpreter with its global
	// allow-list, the same way cmd/tracejit's -config flag does for a
	// one-shot run.
	Config *config.Config
}

// level returns o.SharpEdges, or sharpedge.Error if it was left unset.
func (o Options) level() sharpedge.Level {
	if o.SharpEdges == "" {
		return sharpedge.Error
	}
	return o.SharpEdges
}

// Start initializes and runs the REPL with the given username and options.
func Start(username string, options Options) {
	p := tea.NewProgram(initialModel(username, options))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
	}
}

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	traceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BE9FD"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	parseErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	runtimeErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF8700")).
				Bold(true)

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	identifierStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F8F8F2"))

	literalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	operatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	delimiterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9"))

	stringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))
)

// ErrorType represents the type of error that occurred.
type ErrorType int

const (
	NoError ErrorType = iota
	ParseError
	RuntimeError
)

type evalResultMsg struct {
	output    string
	isError   bool
	errorType ErrorType
	elapsed   time.Duration
}

// model represents the state of the application.
type model struct {
	textInput       textinput.Model
	history         []historyEntry
	symbolTable     *compiler.SymbolTable
	globals         []*wrapped.Value
	constants       []object.Object
	lookaside       *lookaside.Registry
	username        string
	evaluating      bool
	currentInput    string
	multilineBuffer string
	isMultiline     bool
	spinner         spinner.Model
	options         Options
}

func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

type historyEntry struct {
	input          string
	output         string
	isError        bool
	errorType      ErrorType
	evaluationTime time.Duration
}

func initialModel(username string, options Options) model {
	ti := textinput.New()
	ti.Placeholder = "Enter tracejit code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	st := compiler.NewSymbolTable()
	if options.Config != nil {
		st.Translations = options.Config.TranslationTable()
	}

	return model{
		textInput:   ti,
		history:     []historyEntry{},
		symbolTable: st,
		globals:     make([]*wrapped.Value, 0),
		lookaside:   lookaside.New(),
		username:    username,
		spinner:     s,
		options:     options,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func isBalanced(input string) bool {
	var stack []rune
	for _, char := range input {
		switch char {
		case '(', '{', '[':
			stack = append(stack, char)
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

// evalCmd lexes, parses, and compiles input, then runs the resulting
// bytecode (wrapped as a zero-argument closure, the REPL's stand-in for
// a top-level program) through the tracing interpreter, reporting both
// the result value and the computation trace it recorded.
func (m *model) evalCmd(input string, debug bool) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		l := lexer.New(input)
		p := parser.New(l)
		program := p.ParseProgram()

		if len(p.Errors()) != 0 {
			return evalResultMsg{
				output:    formatParseErrors(p.Errors()),
				isError:   true,
				errorType: ParseError,
				elapsed:   time.Since(start),
			}
		}

		comp := compiler.NewWithState(m.symbolTable, m.constants)
		if err := comp.Compile(program); err != nil {
			return evalResultMsg{
				output:    formatRuntimeError(err.Error()),
				isError:   true,
				errorType: RuntimeError,
				elapsed:   time.Since(start),
			}
		}
		bc := comp.Bytecode()
		m.constants = bc.Constants

		log := logrus.New()
		if !debug {
			log.SetLevel(logrus.ErrorLevel)
		}
		policy := sharpedge.NewWithLevel(log.WithField("source", "repl"), m.options.level())

		mainFn := &object.CompiledFunction{Instructions: bc.Instructions}
		mainClosure := &object.Closure{Fn: mainFn}

		i := interp.New(bc.Constants, m.globals, m.lookaside, policy)
		if m.options.Config != nil {
			i.AllowedGlobals = m.options.Config.AllowListSet()
			i.GlobalNames = m.symbolTable.GlobalNames()
		}
		runErr := i.RunTraced(mainClosure, nil)
		m.globals = append([]*wrapped.Value(nil), (*i).GlobalsSnapshot()...)

		var out strings.Builder
		isError := false
		errorType := NoError

		if runErr != nil {
			isError = true
			errorType = RuntimeError
			out.WriteString(formatRuntimeError(runErr.Error()))
		} else {
			last := i.LastPoppedStackItem()
			if last != nil && last.Concrete != nil {
				out.WriteString(last.Concrete.Inspect())
			} else {
				out.WriteString("nil")
			}
			if debug {
				out.WriteString("\n")
				out.WriteString(formatTrace(i.Trace))
			}
		}

		return evalResultMsg{
			output:    out.String(),
			isError:   isError,
			errorType: errorType,
			elapsed:   time.Since(start),
		}
	}
}

func formatTrace(trace *prims.TraceCtx) string {
	var s strings.Builder
	s.WriteString("trace:\n")
	for _, sym := range trace.Symbols() {
		s.WriteString("  ")
		s.WriteString(sym.String())
		s.WriteString("\n")
	}
	for _, c := range trace.Constraints() {
		s.WriteString(fmt.Sprintf("  guard: %s %s %v\n", c.Prov, c.Op, c.Value))
	}
	return s.String()
}

func (m model) formatError(errorStyle *lipgloss.Style, entry *historyEntry, s *strings.Builder) {
	parts := strings.Split(entry.output, "\nTips:")
	if len(parts) > 1 {
		if m.options.NoColor {
			s.WriteString(parts[0])
			s.WriteString("\n")
			s.WriteString("Tips:" + parts[1])
		} else {
			s.WriteString(errorStyle.Render(parts[0]))
			s.WriteString("\n")
			s.WriteString(errorTipStyle.Render("Tips:" + parts[1]))
		}
	} else {
		if m.options.NoColor {
			s.WriteString(entry.output)
		} else {
			s.WriteString(errorStyle.Render(entry.output))
		}
	}
}

var errorTipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		m.evaluating = false
		m.history = append(m.history, historyEntry{
			input:          m.currentInput,
			output:         msg.output,
			isError:        msg.isError,
			errorType:      msg.errorType,
			evaluationTime: msg.elapsed,
		})
		m.currentInput = ""
		return m, nil

	case tea.KeyMsg:
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			if input == "" {
				if m.isMultiline {
					if m.multilineBuffer == "" {
						m.isMultiline = false
						return m, nil
					}
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.textInput.SetValue("")
					m.isMultiline = false
					buffer := m.multilineBuffer
					m.multilineBuffer = ""
					return m, m.evalCmd(buffer, m.options.Debug)
				}
				return m, nil
			}

			if m.isMultiline {
				m.multilineBuffer += "\n" + input
				m.textInput.SetValue("")
				if isBalanced(m.multilineBuffer) {
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.isMultiline = false
					buffer := m.multilineBuffer
					m.multilineBuffer = ""
					return m, m.evalCmd(buffer, m.options.Debug)
				}
				return m, nil
			}

			if !isBalanced(input) {
				m.isMultiline = true
				m.multilineBuffer = input
				m.textInput.SetValue("")
				return m, nil
			}

			m.evaluating = true
			m.currentInput = input
			m.textInput.SetValue("")
			return m, m.evalCmd(input, m.options.Debug)
		}
	}

	if !m.evaluating {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	if m.evaluating {
		return m, m.spinner.Tick
	}
	return m, cmd
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.applyStyle(titleStyle, " tracejit trace inspector "))
	s.WriteString("\n")

	if m.username != "" {
		s.WriteString(fmt.Sprintf("\nHello %s! Type tracejit code to compile and trace it\n", m.username))
	}
	s.WriteString("\n")

	for _, entry := range m.history {
		lines := strings.Split(entry.input, "\n")
		for i, line := range lines {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(m.highlightCode(line))
			s.WriteString("\n")
		}

		if entry.isError {
			switch entry.errorType {
			case ParseError:
				m.formatError(&parseErrorStyle, &entry, &s)
			case RuntimeError:
				m.formatError(&runtimeErrorStyle, &entry, &s)
			default:
				s.WriteString(m.applyStyle(errorStyle, entry.output))
			}
		} else {
			parts := strings.SplitN(entry.output, "\ntrace:\n", 2)
			s.WriteString(m.applyStyle(resultStyle, parts[0]))
			if len(parts) > 1 {
				s.WriteString("\n")
				s.WriteString(m.applyStyle(traceStyle, "trace:\n"+parts[1]))
			}
		}

		if entry.evaluationTime > 10*time.Millisecond {
			timeStr := fmt.Sprintf(" (%.2fs)", entry.evaluationTime.Seconds())
			s.WriteString(m.applyStyle(historyStyle, timeStr))
		}

		s.WriteString("\n\n")
	}

	if m.evaluating {
		s.WriteString(m.applyStyle(promptStyle, Prompt))
		s.WriteString(m.highlightCode(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" Compiling and tracing...")
		s.WriteString("\n\n")
	}

	if m.isMultiline && !m.evaluating {
		s.WriteString(m.applyStyle(historyStyle, "Current multiline input:\n"))
		s.WriteString(m.highlightCode(m.multilineBuffer))
		s.WriteString("\n")
	}

	if !m.evaluating {
		if m.isMultiline {
			m.textInput.Prompt = m.applyStyle(promptStyle, ContPrompt)
		} else {
			m.textInput.Prompt = m.applyStyle(promptStyle, Prompt)
		}
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	helpText := "\nPress Esc or Ctrl+C/D to exit"
	if m.isMultiline {
		helpText += " | Multiline mode: Enter empty line to evaluate or continue typing"
	} else {
		helpText += " | Multiline input supported for unbalanced brackets"
	}
	s.WriteString(m.applyStyle(historyStyle, helpText))

	return s.String()
}

func formatParseErrors(errors []string) string {
	var s strings.Builder
	s.WriteString("Parser Errors:\n")
	for i, msg := range errors {
		s.WriteString(fmt.Sprintf("  %d. %s\n", i+1, msg))
	}
	s.WriteString("\nTips:\n")
	s.WriteString("  • Check for missing parentheses, braces, or semicolons\n")
	s.WriteString("  • Verify that all expressions are properly terminated\n")
	s.WriteString("  • Ensure variable names are valid identifiers\n")
	return s.String()
}

func formatRuntimeError(errorMsg string) string {
	var s strings.Builder
	s.WriteString("Runtime Error:\n")
	s.WriteString("  " + errorMsg + "\n")
	s.WriteString("\nTips:\n")
	switch {
	case strings.Contains(errorMsg, "identifier not found"):
		s.WriteString("  • Check if the variable is defined before use\n")
		s.WriteString("  • Verify the variable name is spelled correctly\n")
	case strings.Contains(errorMsg, "wrong number of arguments"):
		s.WriteString("  • Check the function call has the correct number of arguments\n")
	case strings.Contains(errorMsg, "unsupported"):
		s.WriteString("  • Ensure operands are of compatible, traceable types\n")
	case strings.Contains(errorMsg, "index"):
		s.WriteString("  • Verify array indices are within bounds\n")
	default:
		s.WriteString("  • Review your code logic\n")
		s.WriteString("  • Check for type mismatches or undefined variables\n")
	}
	return s.String()
}

// highlightCode applies syntax highlighting to tracejit source using
// the same token-stream-driven formatting the teacher's REPL used.
//
//nolint:gocyclo
func (m model) highlightCode(code string) string {
	l := lexer.New(code)
	var s strings.Builder

	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}

	isKeyword := func(t token.Token) bool {
		switch t.Type {
		case token.Function, token.Let, token.True, token.False, token.If, token.Else, token.Return,
			token.Try, token.Catch, token.Raise:
			return true
		}
		return false
	}
	isOperator := func(t token.Token) bool {
		switch t.Type {
		case token.Assign, token.Plus, token.Minus, token.Bang, token.Asterisk, token.Slash,
			token.Lt, token.Lte, token.Gt, token.Gte, token.Eq, token.NotEq:
			return true
		}
		return false
	}
	isOpenParen := func(t token.Token) bool { return t.Type == token.Lparen }
	isCloseParen := func(t token.Token) bool { return t.Type == token.Rparen }
	isOpenBrace := func(t token.Token) bool { return t.Type == token.Lbrace }
	isCloseBrace := func(t token.Token) bool { return t.Type == token.Rbrace }
	isDelimiter := func(t token.Token) bool {
		switch t.Type {
		case token.Comma, token.Colon, token.Semicolon, token.Dot, token.Lparen, token.Rparen,
			token.Lbrace, token.Rbrace, token.Lbracket, token.Rbracket:
			return true
		}
		return false
	}

	indentLevel := 0
	atLineStart := true
	for i := range len(tokens) - 1 {
		tok := tokens[i]
		if tok.Type == token.EOF {
			continue
		}
		var prev token.Token
		if i > 0 {
			prev = tokens[i-1]
		}
		next := tokens[i+1]

		if atLineStart {
			if tok.Type == token.Else && i > 0 && tokens[i-1].Type == token.Rbrace {
				atLineStart = false
			} else {
				for range indentLevel {
					s.WriteString("  ")
				}
				atLineStart = false
			}
		}

		if isKeyword(tok) && tok.Type != token.True && tok.Type != token.False {
			s.WriteString(m.applyStyle(keywordStyle, tok.Literal))
			if !isDelimiter(next) && !isOpenBrace(next) && !isOpenParen(next) {
				s.WriteString(" ")
			}
			continue
		}
		if isKeyword(prev) && isOpenParen(tok) {
			s.WriteString(" ")
		}
		if isOpenBrace(tok) && !isOpenParen(prev) && !isOperator(prev) {
			s.WriteString(" ")
		}
		if isOperator(tok) {
			isPrefixOp := (tok.Type == token.Bang || tok.Type == token.Minus) &&
				(i == 0 || isOpenParen(prev) || isOperator(prev) || isDelimiter(prev))
			if !isPrefixOp && i > 0 && (!isDelimiter(prev) || isCloseParen(prev)) {
				s.WriteString(" ")
			}
			s.WriteString(m.applyStyle(operatorStyle, tok.Literal))
			if !isPrefixOp && !isDelimiter(next) && !isCloseParen(next) && !isCloseBrace(next) {
				s.WriteString(" ")
			}
			continue
		}

		switch tok.Type {
		case token.Function, token.Let, token.True, token.False, token.If, token.Else, token.Return,
			token.Try, token.Catch, token.Raise:
			s.WriteString(m.applyStyle(keywordStyle, tok.Literal))
		case token.Ident:
			s.WriteString(m.applyStyle(identifierStyle, tok.Literal))
		case token.Int:
			s.WriteString(m.applyStyle(literalStyle, tok.Literal))
		case token.String:
			s.WriteString(m.applyStyle(stringStyle, "\""+tok.Literal+"\""))
		case token.Comma, token.Colon, token.Semicolon, token.Dot, token.Lparen, token.Rparen,
			token.Lbrace, token.Rbrace, token.Lbracket, token.Rbracket:
			if !(tok.Type == token.Semicolon && i > 0 && tokens[i-1].Type == token.Rbrace) {
				s.WriteString(m.applyStyle(delimiterStyle, tok.Literal))
			}
		default:
			s.WriteString(tok.Literal)
		}

		if tok.Type == token.Semicolon {
			if next.Type != token.EOF && next.Type != token.Else {
				s.WriteString("\n")
				atLineStart = true
			}
		} else if tok.Type == token.Rbrace {
			switch {
			case next.Type == token.Semicolon:
				s.WriteString(m.applyStyle(delimiterStyle, ";"))
			case next.Type != token.EOF && next.Type != token.Else:
				s.WriteString("\n")
				atLineStart = true
			case next.Type == token.Else:
				s.WriteString(" ")
				atLineStart = false
			}
		}
		if tok.Type == token.Lbrace {
			if next.Type != token.Rbrace && next.Type != token.EOF {
				s.WriteString("\n")
				atLineStart = true
			}
			indentLevel++
		}
		if tok.Type == token.Rbrace && indentLevel > 0 {
			indentLevel--
		}
		if tok.Type == token.Semicolon && next.Type == token.Rbrace {
			atLineStart = false
		}
		if tok.Type == token.Rbrace && next.Type == token.Semicolon {
			//nolint:ineffassign,wastedassign
			i++
		}
	}

	return s.String()
}
