package object

import "fmt"

// Builtins is a collection of predefined built-in functions available for use within the language.
var Builtins = []struct {
	// The name of the built-in function.
	Name string

	// The definition (and implementation) of the built-in function.
	Builtin *Builtin
}{
	{
		"len",
		&Builtin{Name: "len", Fn: func(args ...Object) Object {
			if len(args) != 1 {
				return newError("wrong number of arguments. got=%d, want=1", len(args))
			}
			switch arg := args[0].(type) {
			case *String:
				return &Integer{Value: int64(len(arg.Value))}

			case *Array:
				return &Integer{Value: int64(len(arg.Elements))}

			default:
				return newError("argument to `len` not supported, got %s", args[0].Type())
			}
		},
		},
	},
	{
		"first",
		&Builtin{Name: "first", Fn: func(args ...Object) Object {
			if len(args) != 1 {
				return newError("wrong number of arguments. got=%d, want=1", len(args))
			}
			switch arg := args[0].(type) {
			case *Array:
				if len(arg.Elements) > 0 {
					return arg.Elements[0]
				}
				return nil
			default:
				return newError("argument to `first` not supported, got %s", args[0].Type())
			}
		},
		},
	},
	{
		"rest",
		&Builtin{Name: "rest", Fn: func(args ...Object) Object {
			if len(args) != 1 {
				return newError("wrong number of arguments. got=%d, want=1", len(args))
			}
			switch arg := args[0].(type) {
			case *Array:
				length := len(arg.Elements)
				if length > 0 {
					newElements := make([]Object, length-1)
					copy(newElements, arg.Elements[1:length])
					return &Array{Elements: newElements}
				}
				return nil
			default:
				return newError("argument to `rest` not supported, got %s", args[0].Type())
			}
		},
		},
	},
	{
		"last",
		&Builtin{Name: "last", Fn: func(args ...Object) Object {
			if len(args) != 1 {
				return newError("wrong number of arguments. got=%d, want=1", len(args))
			}
			switch arg := args[0].(type) {
			case *Array:
				length := len(arg.Elements)
				if length > 0 {
					return arg.Elements[length-1]
				}
				return nil

			default:
				return newError("argument to `last` not supported, got %s", args[0].Type())
			}
		},
		},
	},
	{
		"push",
		&Builtin{Name: "push", Fn: func(args ...Object) Object {
			if len(args) != 2 {
				return newError("wrong number of arguments. got=%d, want=2", len(args))
			}
			switch arg := args[0].(type) {
			case *Array:
				length := len(arg.Elements)
				newElements := make([]Object, length+1)
				copy(newElements, arg.Elements)
				newElements[length] = args[1]

				return &Array{Elements: newElements}

			default:
				return newError("argument to `push` not supported, got %s", args[0].Type())

			}
		},
		},
	},
	{
		"puts",
		&Builtin{Name: "puts", Fn: func(args ...Object) Object {
			for _, arg := range args {
				fmt.Println(arg.Inspect())
			}
			return nil
		},
		},
	},
	{
		"add",
		&Builtin{Name: "add", Fn: arithmeticBuiltin("add", func(a, b int64) int64 { return a + b })},
	},
	{
		"sub",
		&Builtin{Name: "sub", Fn: arithmeticBuiltin("sub", func(a, b int64) int64 { return a - b })},
	},
	{
		"mul",
		&Builtin{Name: "mul", Fn: arithmeticBuiltin("mul", func(a, b int64) int64 { return a * b })},
	},
	{
		"div",
		&Builtin{Name: "div", Fn: func(args ...Object) Object {
			if len(args) != 2 {
				return newError("wrong number of arguments. got=%d, want=2", len(args))
			}
			a, ok1 := args[0].(*Integer)
			b, ok2 := args[1].(*Integer)
			if !ok1 || !ok2 {
				return newError("arguments to `div` must be INTEGER, got %s, %s", args[0].Type(), args[1].Type())
			}
			if b.Value == 0 {
				return newError("division by zero")
			}
			return &Integer{Value: a.Value / b.Value}
		}},
	},
	{
		"eq",
		&Builtin{Name: "eq", Fn: func(args ...Object) Object {
			if len(args) != 2 {
				return newError("wrong number of arguments. got=%d, want=2", len(args))
			}
			a, ok1 := args[0].(*Integer)
			b, ok2 := args[1].(*Integer)
			if !ok1 || !ok2 {
				return newError("arguments to `eq` must be INTEGER, got %s, %s", args[0].Type(), args[1].Type())
			}
			return &Boolean{Value: a.Value == b.Value}
		}},
	},
	{
		"gt",
		&Builtin{Name: "gt", Fn: func(args ...Object) Object {
			if len(args) != 2 {
				return newError("wrong number of arguments. got=%d, want=2", len(args))
			}
			a, ok1 := args[0].(*Integer)
			b, ok2 := args[1].(*Integer)
			if !ok1 || !ok2 {
				return newError("arguments to `gt` must be INTEGER, got %s, %s", args[0].Type(), args[1].Type())
			}
			return &Boolean{Value: a.Value > b.Value}
		}},
	},
}

// arithmeticBuiltin builds a two-argument integer builtin from a plain
// Go operator function, shared by add/sub/mul so each of those three
// entries above is one line instead of a repeated type-switch.
func arithmeticBuiltin(name string, op func(a, b int64) int64) BuiltinFunction {
	return func(args ...Object) Object {
		if len(args) != 2 {
			return newError("wrong number of arguments. got=%d, want=2", len(args))
		}
		a, ok1 := args[0].(*Integer)
		b, ok2 := args[1].(*Integer)
		if !ok1 || !ok2 {
			return newError("arguments to `%s` must be INTEGER, got %s, %s", name, args[0].Type(), args[1].Type())
		}
		return &Integer{Value: op(a.Value, b.Value)}
	}
}

func newError(format string, a ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, a...)}
}

// GetBuiltinByName retrieves a built-in function definition by its name from the predefined [Builtins] collection.
//
// It returns a pointer to the corresponding [Builtin] or nil if the name is not found.
func GetBuiltinByName(name string) *Builtin {
	for _, def := range Builtins {
		if def.Name == name {
			return def.Builtin
		}
	}
	return nil
}
