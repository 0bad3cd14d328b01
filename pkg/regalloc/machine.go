package regalloc

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/raymyers/ralph-ra/pkg/x86"
)

var (
	// ErrMalformedInput indicates an upstream pass produced graphs or code
	// that violate the allocator's preconditions.
	ErrMalformedInput = errors.New("malformed allocator input")
	// ErrUnmappedVariable indicates an instruction references a variable
	// that never appeared in the interference graph.
	ErrUnmappedVariable = errors.New("variable has no location")
	// ErrUnsupportedInstruction indicates an instruction form the rewriter
	// does not know.
	ErrUnsupportedInstruction = x86.ErrUnsupportedInstruction
	// ErrColorsExhausted indicates a bounded color space ran out
	ErrColorsExhausted = errors.New("out of colors")
	// ErrInvalidMachine indicates an unusable machine model
	ErrInvalidMachine = errors.New("invalid machine model")
)

// Machine describes the target's register file as seen by the allocator.
//
// Color c < len(Allocatable) denotes Allocatable[c]; every higher color
// denotes a stack slot.
type Machine struct {
	// Allocatable registers, in color order
	Allocatable []x86.MReg
	// Reserved registers are never assigned to a variable. They are removed
	// from the interference graph before coloring. The first one is the
	// scratch register, so at least one is required.
	Reserved []x86.MReg
	// WordSize is the size in bytes of one stack slot
	WordSize int64
}

// DefaultMachine returns the machine model of the x86-64 target: %rbx is
// the only allocatable register and %rax is kept free for the emitter to
// patch instructions with.
func DefaultMachine() Machine {
	return Machine{
		Allocatable: []x86.MReg{x86.RBX},
		Reserved:    []x86.MReg{x86.RAX},
		WordSize:    x86.WordSize,
	}
}

// Validate checks that the machine model is usable
func (m Machine) Validate() error {
	if len(m.Allocatable) == 0 {
		return fmt.Errorf("%w: no allocatable registers", ErrInvalidMachine)
	}
	if m.WordSize <= 0 {
		return fmt.Errorf("%w: word size %d", ErrInvalidMachine, m.WordSize)
	}
	if len(m.Reserved) == 0 {
		return fmt.Errorf("%w: no reserved scratch register", ErrInvalidMachine)
	}
	seen := make(map[x86.MReg]bool)
	for _, r := range m.Allocatable {
		if isFrameReg(r) {
			return fmt.Errorf("%w: %%%s holds the frame and cannot be allocated", ErrInvalidMachine, r)
		}
		if seen[r] {
			return fmt.Errorf("%w: %%%s listed twice", ErrInvalidMachine, r)
		}
		seen[r] = true
		if slices.Contains(m.Reserved, r) {
			return fmt.Errorf("%w: %%%s is both allocatable and reserved", ErrInvalidMachine, r)
		}
	}
	if isFrameReg(m.Scratch()) {
		return fmt.Errorf("%w: %%%s cannot be the scratch register", ErrInvalidMachine, m.Scratch())
	}
	return nil
}

func isFrameReg(r x86.MReg) bool {
	return r == x86.RSP || r == x86.RBP
}

// Scratch returns the register used to patch instructions that the target
// cannot encode: the first reserved register.
func (m Machine) Scratch() x86.MReg {
	if len(m.Reserved) == 0 {
		return x86.RAX
	}
	return m.Reserved[0]
}

// colorIndex returns the color of an allocatable register
func (m Machine) colorIndex(r x86.MReg) (int, bool) {
	i := slices.Index(m.Allocatable, r)
	return i, i >= 0
}

// Location maps a color to the location it denotes
func (m Machine) Location(color int) x86.Loc {
	if color < len(m.Allocatable) {
		return x86.Reg{Reg: m.Allocatable[color]}
	}
	slot := int64(color - len(m.Allocatable) + 1)
	return x86.StackLoc{Offset: -slot * m.WordSize}
}

// SpillSlots returns how many stack slots are in use when maxColor is
// the highest color assigned.
func (m Machine) SpillSlots(maxColor int) int {
	if maxColor < len(m.Allocatable) {
		return 0
	}
	return maxColor - len(m.Allocatable) + 1
}

// Heuristic selects the next vertex to color
type Heuristic int

const (
	// HeuristicDegree picks the uncolored vertex with the most interference
	// neighbors.
	HeuristicDegree Heuristic = iota
	// HeuristicSaturation picks the uncolored vertex whose neighbors already
	// use the most distinct colors, falling back to degree (DSatur).
	HeuristicSaturation
)

func (h Heuristic) String() string {
	switch h {
	case HeuristicDegree:
		return "degree"
	case HeuristicSaturation:
		return "saturation"
	}
	return fmt.Sprintf("heuristic(%d)", int(h))
}

// ParseHeuristic parses a heuristic name as accepted on the command line
func ParseHeuristic(s string) (Heuristic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "degree", "":
		return HeuristicDegree, nil
	case "saturation", "dsatur":
		return HeuristicSaturation, nil
	}
	return 0, fmt.Errorf("unknown heuristic %q (want degree or saturation)", s)
}
