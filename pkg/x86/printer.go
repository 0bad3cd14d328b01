package x86

import (
	"fmt"
	"io"
	"runtime"
)

// WordSize is the size in bytes of a register and of a stack slot
const WordSize = 8

// Printer outputs x86-64 assembly in GNU as (AT&T) syntax
type Printer struct {
	w        io.Writer
	isDarwin bool

	// PrintResult emits a call to ResultFunc with %rax before returning
	PrintResult bool
	ResultFunc  string
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:           w,
		isDarwin:    runtime.GOOS == "darwin",
		PrintResult: true,
		ResultFunc:  "print_int",
	}
}

// symbolName returns the symbol name with platform-appropriate prefix
func (p *Printer) symbolName(name string) string {
	if p.isDarwin {
		return "_" + name
	}
	return name
}

// AlignedSlots rounds a slot count up so the frame keeps %rsp 16-byte aligned
func AlignedSlots(slots int) int {
	if slots%2 != 0 {
		return slots + 1
	}
	return slots
}

// FrameSize returns the bytes reserved below %rbp for the given slot count
func FrameSize(slots int) int64 {
	return int64(AlignedSlots(slots)) * WordSize
}

// PrintProgram outputs an entire program. Every operand must already be
// allocated: a variable reaching this point is an error.
func (p *Printer) PrintProgram(prog *Program) error {
	// Validate before writing anything so a failure leaves no partial output
	for _, inst := range prog.Code {
		if err := checkAllocated(inst); err != nil {
			return err
		}
	}

	entry := p.symbolName(prog.Entry)
	frame := FrameSize(prog.StackSlots)

	fmt.Fprintf(p.w, "\t.global\t%s\n", entry)
	fmt.Fprintf(p.w, "%s:\n", entry)
	fmt.Fprintf(p.w, "\tpushq\t%%rbp\n")
	fmt.Fprintf(p.w, "\tmovq\t%%rsp, %%rbp\n")
	if frame > 0 {
		fmt.Fprintf(p.w, "\tsubq\t$%d, %%rsp\n", frame)
	}

	if err := p.PrintCode(prog.Code); err != nil {
		return err
	}

	if p.PrintResult {
		fmt.Fprintf(p.w, "\tmovq\t%%rax, %%rdi\n")
		fmt.Fprintf(p.w, "\tcallq\t%s\n", p.symbolName(p.ResultFunc))
	}
	if frame > 0 {
		fmt.Fprintf(p.w, "\taddq\t$%d, %%rsp\n", frame)
	}
	fmt.Fprintf(p.w, "\tmovq\t$0, %%rax\n")
	fmt.Fprintf(p.w, "\tpopq\t%%rbp\n")
	_, err := fmt.Fprintf(p.w, "\tretq\n")
	return err
}

// PrintCode outputs instructions one per line. Unlike PrintProgram it
// accepts variables, so it can dump code before allocation.
func (p *Printer) PrintCode(code []Instruction) error {
	for _, inst := range code {
		if err := p.printInstruction(inst); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) printInstruction(inst Instruction) error {
	var err error
	switch i := inst.(type) {
	case MOVQ:
		_, err = fmt.Fprintf(p.w, "\tmovq\t%s, %s\n", i.Source, i.Target)
	case ADDQ:
		_, err = fmt.Fprintf(p.w, "\taddq\t%s, %s\n", i.Arg, i.Target)
	case CALLQ:
		_, err = fmt.Fprintf(p.w, "\tcallq\t%s\n", p.symbolName(i.Symbol))
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedInstruction, inst)
	}
	return err
}

func checkAllocated(inst Instruction) error {
	switch inst.(type) {
	case MOVQ, ADDQ, CALLQ:
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedInstruction, inst)
	}
	for _, a := range Operands(inst) {
		switch a.(type) {
		case Imm, Reg, StackLoc:
		case Var:
			return fmt.Errorf("%w: unallocated variable %s", ErrBadOperand, a)
		default:
			return fmt.Errorf("%w: %T", ErrBadOperand, a)
		}
	}
	return nil
}
