package interp

import (
	"github.com/dr8co/tracejit/code"
	"github.com/dr8co/tracejit/object"
)

// Frame is one call-frame of the interpreter's frame stack, adapted
// from the teacher's vm.Frame: same (closure, instruction pointer, base
// pointer) shape, now also used as the unwind target for OpSetupTry/
// OpRaise within a single function body.
type Frame struct {
	cl          *object.Closure
	ip          int
	basePointer int
}

// NewFrame returns a Frame for cl with its operand stack based at
// basePointer.
func NewFrame(cl *object.Closure, basePointer int) *Frame {
	return &Frame{cl: cl, ip: -1, basePointer: basePointer}
}

// Instructions returns the bytecode this frame is executing.
func (f *Frame) Instructions() code.Instructions {
	return f.cl.Fn.Instructions
}
