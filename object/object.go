// Package object defines the runtime object system shared by the host
// language's compiler and the tracing interpreter.
//
// It defines various types of objects such as integers, booleans, strings,
// arrays, hashes, compiled functions, and built-ins, plus the two object
// kinds the tracer adds on top of the host language: [Tensor], a proxy-
// backed stand-in for an input tensor, and [Record], a named-field value
// that gives AttributeExpression ("obj.field") something concrete to
// resolve against.
//
// Key components:
//   - [Object] interface: The base interface for all runtime values
//   - Various object types ([Integer], [Boolean], [String], [Array], [Hash], [Tensor], [Record], etc.)
//   - [Hashable] interface: For objects that can be used as hash keys
//   - Optimized hash table implementation with key caching for better performance
//
// Package interp uses the object system to represent and manipulate both
// concrete and wrapped (traced) values during interpretation.
package object

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/dr8co/tracejit/code"
)

//nolint:revive
const (
	INTEGER_OBJ           = "INTEGER"
	BOOLEAN_OBJ           = "BOOLEAN"
	STRING_OBJ            = "STRING"
	NULL_OBJ              = "NULL"
	RETURN_VALUE_OBJ      = "RETURN_VALUE"
	ERROR_OBJ             = "ERROR"
	BUILTIN_OBJ           = "BUILTIN"
	ARRAY_OBJ             = "ARRAY"
	HASH_OBJ              = "HASH"
	COMPILED_FUNCTION_OBJ = "COMPILED_FUNCTION_OBJ"
	CLOSURE_OBJ           = "CLOSURE"
	TENSOR_OBJ            = "TENSOR"
	RECORD_OBJ            = "RECORD"
)

// Type represents the type of object.
type Type string

// Object is the interface that wraps the basic operations of all host
// language objects.
type Object interface {
	// Type returns the type of the object as a value of Type.
	Type() Type

	// Inspect returns a string representation of the object.
	Inspect() string
}

// Integer represents a host language integer value.
type Integer struct {
	Value int64
}

// Type returns the type of the object.
func (i *Integer) Type() Type { return INTEGER_OBJ }

// Inspect returns a string representation of the object.
func (i *Integer) Inspect() string { return strconv.FormatInt(i.Value, 10) }

// Boolean represents a host language boolean value.
type Boolean struct {
	Value bool
}

// Type returns the type of the object.
func (b *Boolean) Type() Type { return BOOLEAN_OBJ }

// Inspect returns a string representation of the object.
func (b *Boolean) Inspect() string { return strconv.FormatBool(b.Value) }

// String represents a host language string value.
type String struct {
	Value string
	// Cache for the hash key to avoid recalculating it
	hashKey *HashKey
}

// Type returns the type of the object.
func (s *String) Type() Type { return STRING_OBJ }

// Inspect returns a string representation of the object.
func (s *String) Inspect() string { return s.Value }

// Null represents a host language null value.
type Null struct{}

// Type returns the type of the object.
func (n *Null) Type() Type { return NULL_OBJ }

// Inspect returns a string representation of the object.
func (n *Null) Inspect() string { return "null" }

// ReturnValue represents a host language return value.
type ReturnValue struct {
	Value Object
}

// Type returns the type of the object.
func (rv *ReturnValue) Type() Type { return RETURN_VALUE_OBJ }

// Inspect returns a string representation of the object.
func (rv *ReturnValue) Inspect() string { return rv.Value.Inspect() }

// Error represents a host language error.
type Error struct {
	Message string
}

// Type returns the type of the object.
func (e *Error) Type() Type { return ERROR_OBJ }

// Inspect returns a string representation of the object.
func (e *Error) Inspect() string { return "ERROR: " + e.Message }

// Tensor represents an input tensor fed into a traced computation. Shape,
// Dtype, Device and RequiresGrad mirror the metadata carried by a
// TensorProxy (see package proxy); Data is only populated when the
// tensor originates from a concrete, non-symbolic call (e.g. the trace
// executor verifying a computation trace against real inputs).
type Tensor struct {
	Shape        []int64
	Dtype        string
	Device       string
	RequiresGrad bool
	Strides      []int64
	Data         []float64
}

// Type returns the type of the object.
func (t *Tensor) Type() Type { return TENSOR_OBJ }

// Inspect returns a string representation of the object.
func (t *Tensor) Inspect() string {
	return fmt.Sprintf("tensor(shape=%v, dtype=%s, device=%s, requires_grad=%t)",
		t.Shape, t.Dtype, t.Device, t.RequiresGrad)
}

// Record represents a named-field value, the attribute-bearing object
// that AttributeExpression ("obj.field") resolves against. Field order
// is preserved in Names for deterministic Inspect output.
type Record struct {
	Names  []string
	Fields map[string]Object
}

// Type returns the type of the object.
func (r *Record) Type() Type { return RECORD_OBJ }

// Inspect returns a string representation of the object.
func (r *Record) Inspect() string {
	var out strings.Builder

	out.WriteString("{")
	for i, name := range r.Names {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(name)
		out.WriteString(": ")
		out.WriteString(r.Fields[name].Inspect())
	}
	out.WriteString("}")

	return out.String()
}

// GetAttr looks up name among the record's fields. ok is false if the
// record has no such field, the signal the interpreter turns into an
// uncaught-attribute-error raise.
func (r *Record) GetAttr(name string) (Object, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// BuiltinFunction represents a host language builtin function.
type BuiltinFunction func(args ...Object) Object

// Builtin represents a host language builtin.
type Builtin struct {
	// Name is the identifier the builtin is registered under (both in
	// the compiler's symbol table and in the lookaside registry's
	// self-lookaside step); carried on the value itself so the
	// interpreter can consult the translation table at a call site
	// without needing separate bookkeeping.
	Name string
	Fn   BuiltinFunction
}

// Type returns the type of the object.
func (b *Builtin) Type() Type { return BUILTIN_OBJ }

// Inspect returns a string representation of the object.
func (b *Builtin) Inspect() string { return "builtin function" }

// Array represents a host language array.
type Array struct {
	Elements []Object
}

// Type returns the type of the object.
func (a *Array) Type() Type { return ARRAY_OBJ }

// Inspect returns a string representation of the object.
func (a *Array) Inspect() string {
	var out strings.Builder

	elements := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		elements[i] = e.Inspect()
	}

	out.WriteString("[")
	out.WriteString(strings.Join(elements, ", "))
	out.WriteString("]")

	return out.String()
}

// HashKey represents a hash key.
type HashKey struct {
	Type  Type
	Value uint64
}

// HashKey returns the hash key for the object.
func (b *Boolean) HashKey() HashKey {
	var value uint64

	if b.Value {
		value = 1
	} else {
		value = 0
	}
	return HashKey{Type: b.Type(), Value: value}
}

// HashKey returns the hash key for the object.
func (i *Integer) HashKey() HashKey {
	//nolint:gosec
	return HashKey{Type: i.Type(), Value: uint64(i.Value)}
}

// HashKey returns the hash key for the object.
func (s *String) HashKey() HashKey {
	// Return the cached hash key if available
	if s.hashKey != nil {
		return *s.hashKey
	}

	// Calculate the hash key
	h := fnv.New64a()
	_, err := h.Write([]byte(s.Value))
	if err != nil {
		return HashKey{Type: ERROR_OBJ, Value: 0}
	}

	// Create and cache the hash key
	hashKey := HashKey{Type: s.Type(), Value: h.Sum64()}
	s.hashKey = &hashKey
	return hashKey
}

// HashPair represents a hash pair.
type HashPair struct {
	Key   Object
	Value Object
}

// Hash represents a host language hash.
type Hash struct {
	Pairs map[HashKey]HashPair
}

// Type returns the type of the object.
func (h *Hash) Type() Type { return HASH_OBJ }

// Inspect returns a string representation of the object.
func (h *Hash) Inspect() string {
	var out strings.Builder

	pairs := make([]string, 0, len(h.Pairs))
	for _, pair := range h.Pairs {
		pairs = append(pairs, fmt.Sprintf("%s: %s", pair.Key.Inspect(), pair.Value.Inspect()))
	}

	out.WriteString("{")
	out.WriteString(strings.Join(pairs, ", "))
	out.WriteString("}")

	return out.String()
}

// Hashable represents an object that can be used as a hash key.
type Hashable interface {
	HashKey() HashKey
}

// CompiledFunction represents a compiled piece of bytecode with its instructions, local variables, and parameters.
type CompiledFunction struct {
	// Represents the bytecode sequence of a compiled function.
	Instructions code.Instructions

	// NumLocals indicates the number of local variables used within the compiled function.
	NumLocals int

	// NumParameters specifies the number of parameters accepted by the compiled function.
	NumParameters int
}

// Type returns the object type of the compiled function, which is [COMPILED_FUNCTION_OBJ].
func (c *CompiledFunction) Type() Type { return COMPILED_FUNCTION_OBJ }

// Inspect returns a formatted string representation of the CompiledFunction instance, including its memory address.
func (c *CompiledFunction) Inspect() string { return fmt.Sprintf("CompiledFunction[%p]", c) }

// Closure represents a function and its free variables in a virtual machine's execution context.
type Closure struct {
	// Fn is a reference to the compiled function containing the bytecode and metadata for closure execution.
	Fn *CompiledFunction

	// Free holds the values representing free variables captured by the
	// closure for use during its execution. The tracing interpreter
	// stores *wrapped.Value here (so provenance survives a capture);
	// package object cannot import package wrapped without a cycle, so
	// this is typed as the looser []any rather than []Object.
	Free []any
}

// Type returns the type of the object, specifically [CLOSURE_OBJ] for instances of Closure.
func (c *Closure) Type() Type { return CLOSURE_OBJ }

// Inspect returns a string representation of the Closure instance, including its memory address.
func (c *Closure) Inspect() string { return fmt.Sprintf("Closure[%p]", c) }
