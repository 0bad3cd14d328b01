package regalloc

import (
	"fmt"

	"github.com/raymyers/ralph-ra/pkg/x86"
)

// Rewrite replaces every variable operand in code with its location.
// Registers and immediates pass through; the input slice is not modified.
func Rewrite(code []x86.Instruction, locs map[string]x86.Loc) ([]x86.Instruction, error) {
	out := make([]x86.Instruction, 0, len(code))
	for i, instr := range code {
		newInstr, err := rewriteInstruction(instr, locs)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, newInstr)
	}
	return out, nil
}

func rewriteInstruction(instr x86.Instruction, locs map[string]x86.Loc) (x86.Instruction, error) {
	switch i := instr.(type) {
	case x86.MOVQ:
		target, err := rewriteArg(i.Target, locs)
		if err != nil {
			return nil, err
		}
		source, err := rewriteArg(i.Source, locs)
		if err != nil {
			return nil, err
		}
		return x86.MOVQ{Target: target, Source: source}, nil

	case x86.ADDQ:
		target, err := rewriteArg(i.Target, locs)
		if err != nil {
			return nil, err
		}
		arg, err := rewriteArg(i.Arg, locs)
		if err != nil {
			return nil, err
		}
		return x86.ADDQ{Target: target, Arg: arg}, nil

	case x86.CALLQ:
		return i, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInstruction, instr)
	}
}

func rewriteArg(arg x86.Arg, locs map[string]x86.Loc) (x86.Arg, error) {
	switch a := arg.(type) {
	case x86.Var:
		loc, ok := locs[a.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnmappedVariable, a.Name)
		}
		return loc, nil
	case x86.Reg, x86.Imm:
		return a, nil
	case x86.StackLoc:
		return nil, fmt.Errorf("%w: stack slot %s before allocation", ErrMalformedInput, a)
	default:
		return nil, fmt.Errorf("%w: operand %T", ErrMalformedInput, arg)
	}
}

// ElideSelfMoves drops moves whose source and target are the same
// location. These appear once move-related variables share a color.
func ElideSelfMoves(code []x86.Instruction) []x86.Instruction {
	out := make([]x86.Instruction, 0, len(code))
	for _, instr := range code {
		if m, ok := instr.(x86.MOVQ); ok && m.Source == m.Target {
			if _, isVar := m.Target.(x86.Var); !isVar {
				continue
			}
		}
		out = append(out, instr)
	}
	return out
}

// PatchInstructions makes allocated code encodable. x86-64 has no form with
// two memory operands, so when both operands of a movq or addq are stack
// slots the source is routed through the scratch register. A movq from a
// slot to itself is dropped.
func PatchInstructions(code []x86.Instruction, scratch x86.MReg) []x86.Instruction {
	tmp := x86.Reg{Reg: scratch}
	out := make([]x86.Instruction, 0, len(code))
	for _, instr := range code {
		switch i := instr.(type) {
		case x86.MOVQ:
			if !bothInMemory(i.Source, i.Target) {
				break
			}
			if i.Source == i.Target {
				continue
			}
			out = append(out,
				x86.MOVQ{Target: tmp, Source: i.Source},
				x86.MOVQ{Target: i.Target, Source: tmp})
			continue
		case x86.ADDQ:
			if !bothInMemory(i.Arg, i.Target) {
				break
			}
			out = append(out,
				x86.MOVQ{Target: tmp, Source: i.Arg},
				x86.ADDQ{Target: i.Target, Arg: tmp})
			continue
		}
		out = append(out, instr)
	}
	return out
}

func bothInMemory(a, b x86.Arg) bool {
	_, aMem := a.(x86.StackLoc)
	_, bMem := b.(x86.StackLoc)
	return aMem && bMem
}
