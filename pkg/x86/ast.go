// Package x86 defines the x86-64 instruction representation consumed and
// produced by the register allocator, along with its textual parser and
// the AT&T syntax printer that emits the final program.
package x86

import (
	"cmp"
	"fmt"
)

// MReg is a physical machine register
type MReg int

const (
	RAX MReg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RSP
	RBP
)

var regNames = [...]string{
	RAX: "rax",
	RBX: "rbx",
	RCX: "rcx",
	RDX: "rdx",
	RSI: "rsi",
	RDI: "rdi",
	RSP: "rsp",
	RBP: "rbp",
}

func (r MReg) String() string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("mreg(%d)", int(r))
	}
	return regNames[r]
}

// LookupReg returns the register with the given name (without the % sigil)
func LookupReg(name string) (MReg, bool) {
	for i, n := range regNames {
		if n == name {
			return MReg(i), true
		}
	}
	return 0, false
}

// --- Operands ---

// Arg is an instruction operand
type Arg interface {
	implArg()
	String() string
}

// Loc is an operand that names a storage location. Locs are the vertices
// of the interference and move graphs.
type Loc interface {
	Arg
	implLoc()
}

// Imm - Immediate integer operand
type Imm struct {
	Value int64
}

// Var - Abstract program variable, not yet allocated
type Var struct {
	Name string
}

// Reg - Physical register
type Reg struct {
	Reg MReg
}

// StackLoc - Stack slot at Offset bytes from %rbp
type StackLoc struct {
	Offset int64
}

func (Imm) implArg()      {}
func (Var) implArg()      {}
func (Reg) implArg()      {}
func (StackLoc) implArg() {}

func (Var) implLoc()      {}
func (Reg) implLoc()      {}
func (StackLoc) implLoc() {}

func (i Imm) String() string      { return fmt.Sprintf("$%d", i.Value) }
func (v Var) String() string      { return v.Name }
func (r Reg) String() string      { return "%" + r.Reg.String() }
func (s StackLoc) String() string { return fmt.Sprintf("%d(%%rbp)", s.Offset) }

// locRank orders location kinds: registers, then variables, then slots
func locRank(l Loc) int {
	switch l.(type) {
	case Reg:
		return 0
	case Var:
		return 1
	case StackLoc:
		return 2
	}
	return 3
}

// CompareLoc is a total order over locations, used wherever output must
// not depend on map iteration order.
func CompareLoc(a, b Loc) int {
	if c := cmp.Compare(locRank(a), locRank(b)); c != 0 {
		return c
	}
	switch x := a.(type) {
	case Reg:
		return cmp.Compare(x.Reg, b.(Reg).Reg)
	case Var:
		return cmp.Compare(x.Name, b.(Var).Name)
	case StackLoc:
		// Slots closer to the frame base first
		return cmp.Compare(b.(StackLoc).Offset, x.Offset)
	}
	return 0
}

// --- Instruction Interface ---

// Instruction is the interface for x86-64 instructions
type Instruction interface {
	implInstruction()
}

// MOVQ - Move Source into Target
type MOVQ struct {
	Target Arg
	Source Arg
}

// ADDQ - Target += Arg
type ADDQ struct {
	Target Arg
	Arg    Arg
}

// CALLQ - Call a symbol
type CALLQ struct {
	Symbol string
}

func (MOVQ) implInstruction()  {}
func (ADDQ) implInstruction()  {}
func (CALLQ) implInstruction() {}

// Operands returns the operands of inst in source order
func Operands(inst Instruction) []Arg {
	switch i := inst.(type) {
	case MOVQ:
		return []Arg{i.Source, i.Target}
	case ADDQ:
		return []Arg{i.Arg, i.Target}
	default:
		return nil
	}
}

// --- Program ---

// Program is a single function body ready for emission
type Program struct {
	Entry string
	Code  []Instruction
	// StackSlots is the number of word-sized spill slots the body uses
	StackSlots int
}

// NewProgram creates an empty program with the given entry symbol
func NewProgram(entry string) *Program {
	return &Program{
		Entry: entry,
		Code:  make([]Instruction, 0),
	}
}

// Append adds an instruction to the program
func (p *Program) Append(inst Instruction) {
	p.Code = append(p.Code, inst)
}
