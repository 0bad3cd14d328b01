// Package unit loads a lowered compilation unit: the instruction list of one
// function together with the interference and move graphs computed for it
// by earlier passes.
package unit

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-ra/pkg/graph"
	"github.com/raymyers/ralph-ra/pkg/x86"
)

// DefaultEntry is the entry symbol used when a unit does not name one
const DefaultEntry = "main"

// File is the on-disk YAML layout of a unit
type File struct {
	Entry        string      `yaml:"entry,omitempty"`
	Vertices     []string    `yaml:"vertices,omitempty"`
	Interference [][2]string `yaml:"interference,omitempty"`
	Moves        [][2]string `yaml:"moves,omitempty"`
	Code         []string    `yaml:"code"`
}

// Unit is a decoded, validated compilation unit
type Unit struct {
	Entry        string
	Code         []x86.Instruction
	Interference *graph.Graph[x86.Loc]
	Moves        *graph.Graph[x86.Loc]
}

// Load reads and parses a unit file
func Load(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit: %w", err)
	}
	u, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

// Parse decodes a unit. Every malformed line and edge is reported, not
// just the first.
func Parse(data []byte) (*Unit, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse unit: %w", err)
	}
	return f.Build()
}

// Build converts the YAML layout into a Unit
func (f *File) Build() (*Unit, error) {
	u := &Unit{
		Entry:        f.Entry,
		Interference: graph.New[x86.Loc](),
		Moves:        graph.New[x86.Loc](),
	}
	if u.Entry == "" {
		u.Entry = DefaultEntry
	}

	var errs error
	for i, line := range f.Code {
		instr, err := x86.ParseInstruction(line)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("code[%d] %q: %w", i, line, err))
			continue
		}
		u.Code = append(u.Code, instr)
	}

	for _, name := range f.Vertices {
		l, err := parseVertex(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vertices: %w", err))
			continue
		}
		u.Interference.AddVertex(l)
	}
	errs = multierr.Append(errs, addEdges(u.Interference, "interference", f.Interference))
	errs = multierr.Append(errs, addEdges(u.Moves, "moves", f.Moves))

	if errs != nil {
		return nil, errs
	}
	return u, nil
}

func addEdges(g *graph.Graph[x86.Loc], section string, edges [][2]string) error {
	var errs error
	for i, e := range edges {
		a, errA := parseVertex(e[0])
		b, errB := parseVertex(e[1])
		if err := multierr.Combine(errA, errB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: %w", section, i, err))
			continue
		}
		if a == b {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: self edge on %s", section, i, a))
			continue
		}
		g.AddEdge(a, b)
	}
	return errs
}

// parseVertex accepts variables and registers. Stack slots only exist
// after allocation so they are rejected here.
func parseVertex(s string) (x86.Loc, error) {
	l, err := x86.ParseLoc(s)
	if err != nil {
		return nil, err
	}
	if _, ok := l.(x86.StackLoc); ok {
		return nil, fmt.Errorf("%w: stack slot %s cannot be a graph vertex", x86.ErrBadOperand, l)
	}
	return l, nil
}
