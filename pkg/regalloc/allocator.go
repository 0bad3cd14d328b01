package regalloc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-ra/pkg/graph"
	"github.com/raymyers/ralph-ra/pkg/x86"
)

// status is the per-vertex coloring state of one allocation pass
type status struct {
	color     int
	colored   bool
	conflicts graph.Set[int]
}

// Allocator colors an interference graph greedily, biased by a move graph.
// An Allocator is used for a single pass.
type Allocator struct {
	interference *graph.Graph[x86.Loc]
	moves        *graph.Graph[x86.Loc]

	machine   Machine
	heuristic Heuristic
	maxColors int // 0 means unbounded
	log       *zap.Logger

	status map[x86.Loc]*status
	order  []x86.Loc // every vertex, in CompareLoc order
}

// Option configures an allocation pass
type Option func(*Allocator)

// WithMachine sets the target register file (default DefaultMachine())
func WithMachine(m Machine) Option {
	return func(a *Allocator) { a.machine = m }
}

// WithHeuristic sets the vertex selection heuristic (default HeuristicDegree)
func WithHeuristic(h Heuristic) Option {
	return func(a *Allocator) { a.heuristic = h }
}

// WithMaxColors bounds the number of colors. Allocation fails with
// ErrColorsExhausted instead of reusing a color.
func WithMaxColors(n int) Option {
	return func(a *Allocator) { a.maxColors = n }
}

// WithLogger traces every coloring decision at debug level
func WithLogger(l *zap.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.log = l
		}
	}
}

// Result holds the output of one allocation pass
type Result struct {
	// Code is the input code with every variable replaced by its location
	Code []x86.Instruction
	// SpillSlots is the number of word-sized stack slots used by spills
	SpillSlots int
	// Colors maps each variable to its color
	Colors map[string]int
	// Locations maps each variable to its location
	Locations map[string]x86.Loc
	// Scratch is the register Program patches memory to memory forms with
	Scratch x86.MReg
}

// NewAllocator creates an allocator over the given graphs
func NewAllocator(interference, moves *graph.Graph[x86.Loc], opts ...Option) *Allocator {
	if interference == nil {
		interference = graph.New[x86.Loc]()
	}
	if moves == nil {
		moves = graph.New[x86.Loc]()
	}
	a := &Allocator{
		interference: interference,
		moves:        moves,
		machine:      DefaultMachine(),
		heuristic:    HeuristicDegree,
		log:          zap.NewNop(),
		status:       make(map[x86.Loc]*status),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate assigns a location to every variable of the interference graph
// and rewrites code accordingly.
//
// The interference graph is consumed: reserved and unallocatable registers
// are removed from it in place. Callers that need it afterwards must pass
// interference.Clone(). The move graph is only read.
func Allocate(code []x86.Instruction, interference, moves *graph.Graph[x86.Loc], opts ...Option) (*Result, error) {
	a := NewAllocator(interference, moves, opts...)
	colors, err := a.Color()
	if err != nil {
		return nil, err
	}
	return a.buildResult(code, colors)
}

// Color runs the coloring loop and returns the color of every variable
func (a *Allocator) Color() (map[string]int, error) {
	if err := a.checkInput(); err != nil {
		return nil, err
	}

	a.excludeRegisters()

	// Fresh status for every remaining vertex
	a.order = a.interference.Sorted(x86.CompareLoc)
	for _, v := range a.order {
		a.status[v] = &status{conflicts: graph.NewSet[int]()}
	}

	if err := a.precolor(); err != nil {
		return nil, err
	}

	for {
		v, ok := a.selectVertex()
		if !ok {
			break
		}
		c, viaMove, err := a.chooseColor(v)
		if err != nil {
			return nil, err
		}
		a.assign(v, c)
		a.log.Debug("colored vertex",
			zap.Stringer("vertex", v),
			zap.Int("color", c),
			zap.Bool("move", viaMove),
			zap.Int("degree", a.interference.Degree(v)))
	}

	colors := make(map[string]int)
	for _, v := range a.order {
		if vr, ok := v.(x86.Var); ok {
			colors[vr.Name] = a.status[v].color
		}
	}
	return colors, nil
}

// checkInput rejects graphs that break the symmetry invariant or carry
// stack slots, which only the allocator may produce.
func (a *Allocator) checkInput() error {
	if err := a.machine.Validate(); err != nil {
		return err
	}
	if err := a.interference.Validate(); err != nil {
		return fmt.Errorf("%w: interference graph: %v", ErrMalformedInput, err)
	}
	if err := a.moves.Validate(); err != nil {
		return fmt.Errorf("%w: move graph: %v", ErrMalformedInput, err)
	}
	for _, g := range []*graph.Graph[x86.Loc]{a.interference, a.moves} {
		for v := range g.Vertices() {
			if _, ok := v.(x86.StackLoc); ok {
				return fmt.Errorf("%w: stack slot %s in input graph", ErrMalformedInput, v)
			}
		}
	}
	return nil
}

// excludeRegisters removes reserved registers from the interference graph.
// Neighbors forget they ever conflicted with them, which is only sound
// because no variable is ever assigned a reserved register. Registers that
// are neither reserved nor allocatable go too: no color denotes them.
func (a *Allocator) excludeRegisters() {
	for _, v := range a.interference.Sorted(x86.CompareLoc) {
		r, ok := v.(x86.Reg)
		if !ok {
			continue
		}
		if _, allocatable := a.machine.colorIndex(r.Reg); allocatable {
			continue
		}
		a.interference.Remove(v)
		a.log.Debug("removed register from interference graph", zap.Stringer("register", v))
	}
}

// precolor fixes allocatable register vertices to their own color so that
// variables interfering with them stay out of them. The color bound
// applies to them as well.
func (a *Allocator) precolor() error {
	for _, v := range a.order {
		r, ok := v.(x86.Reg)
		if !ok {
			continue
		}
		c, _ := a.machine.colorIndex(r.Reg)
		if a.maxColors > 0 && c >= a.maxColors {
			return fmt.Errorf("%w: register %s has color %d, limit is %d", ErrColorsExhausted, v, c, a.maxColors)
		}
		a.assign(v, c)
		a.log.Debug("precolored register", zap.Stringer("register", v), zap.Int("color", c))
	}
	return nil
}

// selectVertex returns the uncolored vertex preferred by the heuristic.
// Ties go to the vertex first in CompareLoc order.
func (a *Allocator) selectVertex() (x86.Loc, bool) {
	var best x86.Loc
	found := false
	for _, v := range a.order {
		if a.status[v].colored {
			continue
		}
		if !found || a.better(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

// better reports whether v strictly beats w under the heuristic
func (a *Allocator) better(v, w x86.Loc) bool {
	if a.heuristic == HeuristicSaturation {
		sv, sw := a.status[v].conflicts.Len(), a.status[w].conflicts.Len()
		if sv != sw {
			return sv > sw
		}
	}
	return a.interference.Degree(v) > a.interference.Degree(w)
}

// chooseColor picks the color of a move-related vertex when legal,
// otherwise the lowest color not in conflict.
func (a *Allocator) chooseColor(v x86.Loc) (int, bool, error) {
	st := a.status[v]

	for _, related := range a.moves.Neighbors(v).Sorted(x86.CompareLoc) {
		rs, ok := a.status[related]
		if !ok || !rs.colored {
			continue
		}
		if !st.conflicts.Contains(rs.color) {
			return rs.color, true, nil
		}
	}

	c := 0
	for st.conflicts.Contains(c) {
		c++
	}
	if a.maxColors > 0 && c >= a.maxColors {
		return 0, false, fmt.Errorf("%w: %s needs color %d, limit is %d", ErrColorsExhausted, v, c, a.maxColors)
	}
	return c, false, nil
}

// assign records the color of v and forbids it for v's neighbors
func (a *Allocator) assign(v x86.Loc, c int) {
	st := a.status[v]
	st.color = c
	st.colored = true
	for n := range a.interference.Neighbors(v) {
		if ns, ok := a.status[n]; ok {
			ns.conflicts.Add(c)
		}
	}
}

func (a *Allocator) buildResult(code []x86.Instruction, colors map[string]int) (*Result, error) {
	result := &Result{
		Colors:    colors,
		Locations: make(map[string]x86.Loc, len(colors)),
		Scratch:   a.machine.Scratch(),
	}

	maxColor := -1
	for _, v := range a.order {
		if c := a.status[v].color; c > maxColor {
			maxColor = c
		}
	}
	result.SpillSlots = a.machine.SpillSlots(maxColor)

	for name, c := range colors {
		result.Locations[name] = a.machine.Location(c)
	}

	rewritten, err := Rewrite(code, result.Locations)
	if err != nil {
		return nil, err
	}
	result.Code = rewritten

	a.log.Debug("allocation done",
		zap.Int("variables", len(colors)),
		zap.Int("spill_slots", result.SpillSlots))
	return result, nil
}

// Program packages the rewritten code for the emitter, patching
// instructions the target cannot encode.
func (r *Result) Program(entry string) *x86.Program {
	prog := x86.NewProgram(entry)
	prog.Code = PatchInstructions(r.Code, r.Scratch)
	prog.StackSlots = r.SpillSlots
	return prog
}
