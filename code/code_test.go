package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	tests := []struct {
		op       Opcode
		operands []int
		expected []byte
	}{
		{OpConstant, []int{65534}, []byte{byte(OpConstant), 255, 254}},
		{OpAdd, []int{}, []byte{byte(OpAdd)}},
		{OpGetLocal, []int{255}, []byte{byte(OpGetLocal), 255}},
		{OpClosure, []int{65534, 255}, []byte{byte(OpClosure), 255, 254, 255}},
		{OpGetAttr, []int{1}, []byte{byte(OpGetAttr), 0, 1}},
		{OpSetupTry, []int{300}, []byte{byte(OpSetupTry), 1, 44}},
		{OpPopBlock, []int{}, []byte{byte(OpPopBlock)}},
		{OpRaise, []int{}, []byte{byte(OpRaise)}},
	}

	for _, tt := range tests {
		instruction := Make(tt.op, tt.operands...)
		assert.Equal(t, tt.expected, instruction)
	}
}

func TestInstructionsString(t *testing.T) {
	instructions := []Instructions{
		Make(OpAdd),
		Make(OpGetLocal, 1),
		Make(OpConstant, 2),
		Make(OpConstant, 65535),
		Make(OpGetAttr, 0),
		Make(OpSetupTry, 10),
		Make(OpRaise),
	}

	expected := `0000 OpAdd
0001 OpGetLocal 1
0003 OpConstant 2
0006 OpConstant 65535
0009 OpGetAttr 0
0012 OpSetupTry 10
0015 OpRaise
`

	var flat Instructions
	for _, ins := range instructions {
		flat = append(flat, ins...)
	}

	assert.Equal(t, expected, flat.String())
}

func TestReadOperands(t *testing.T) {
	tests := []struct {
		op        Opcode
		operands  []int
		bytesRead int
	}{
		{OpConstant, []int{65535}, 2},
		{OpGetLocal, []int{255}, 1},
		{OpClosure, []int{65535, 255}, 3},
		{OpGetAttr, []int{42}, 2},
		{OpSetupTry, []int{42}, 2},
	}

	for _, tt := range tests {
		instruction := Make(tt.op, tt.operands...)

		def, err := Lookup(byte(tt.op))
		require.NoError(t, err)

		operandsRead, n := ReadOperands(def, instruction[1:])
		assert.Equal(t, tt.bytesRead, n)
		assert.Equal(t, tt.operands, operandsRead)
	}
}

func TestEffect(t *testing.T) {
	tests := []struct {
		op       Opcode
		operands []int
		expected StackEffect
	}{
		{OpConstant, []int{0}, StackEffect{Pops: 0, Pushes: 1}},
		{OpAdd, nil, StackEffect{Pops: 2, Pushes: 1}},
		{OpPop, nil, StackEffect{Pops: 1, Pushes: 0}},
		{OpGetAttr, []int{0}, StackEffect{Pops: 1, Pushes: 1}},
		{OpRaise, nil, StackEffect{Pops: 1, Pushes: 0, ControlsFlow: true}},
		{OpSetupTry, []int{10}, StackEffect{Pops: 0, Pushes: 0}},
		{OpPopBlock, nil, StackEffect{Pops: 0, Pushes: 0}},
		{OpArray, []int{3}, StackEffect{Pops: 3, Pushes: 1}},
		{OpHash, []int{4}, StackEffect{Pops: 4, Pushes: 1}},
		{OpCall, []int{2}, StackEffect{Pops: 3, Pushes: 1, ControlsFlow: true}},
		{OpClosure, []int{0, 2}, StackEffect{Pops: 2, Pushes: 1}},
		{OpJump, []int{0}, StackEffect{Pops: 0, Pushes: 0, ControlsFlow: true}},
		{OpJumpNotTruthy, []int{0}, StackEffect{Pops: 1, Pushes: 0, ControlsFlow: true}},
	}

	for _, tt := range tests {
		got := Effect(tt.op, tt.operands, false)
		assert.Equal(t, tt.expected, got)
	}
}
