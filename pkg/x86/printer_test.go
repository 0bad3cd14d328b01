package x86

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestPrinter(buf *bytes.Buffer) *Printer {
	p := NewPrinter(buf)
	p.isDarwin = false
	return p
}

func TestPrintInstructions(t *testing.T) {
	tests := []struct {
		name string
		inst Instruction
		want string
	}{
		{"movq imm", MOVQ{Target: Reg{Reg: RBX}, Source: Imm{Value: 10}}, "\tmovq\t$10, %rbx\n"},
		{"movq slot", MOVQ{Target: StackLoc{Offset: -8}, Source: Reg{Reg: RBX}}, "\tmovq\t%rbx, -8(%rbp)\n"},
		{"addq", ADDQ{Target: Reg{Reg: RAX}, Arg: StackLoc{Offset: -16}}, "\taddq\t-16(%rbp), %rax\n"},
		{"callq", CALLQ{Symbol: "read_int"}, "\tcallq\tread_int\n"},
		{"var in dump", MOVQ{Target: Var{Name: "x"}, Source: Imm{Value: 1}}, "\tmovq\t$1, x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := newTestPrinter(&buf)
			if err := p.printInstruction(tt.inst); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAlignedSlots(t *testing.T) {
	tests := []struct{ slots, want int }{{0, 0}, {1, 2}, {2, 2}, {3, 4}}
	for _, tt := range tests {
		if got := AlignedSlots(tt.slots); got != tt.want {
			t.Errorf("AlignedSlots(%d) = %d, want %d", tt.slots, got, tt.want)
		}
	}
	if got := FrameSize(3); got != 32 {
		t.Errorf("FrameSize(3) = %d, want 32", got)
	}
}

func TestPrintProgram(t *testing.T) {
	prog := NewProgram("main")
	prog.Append(MOVQ{Target: Reg{Reg: RBX}, Source: Imm{Value: 1}})
	prog.Append(MOVQ{Target: StackLoc{Offset: -8}, Source: Imm{Value: 2}})
	prog.Append(MOVQ{Target: Reg{Reg: RAX}, Source: Reg{Reg: RBX}})
	prog.Append(ADDQ{Target: Reg{Reg: RAX}, Arg: StackLoc{Offset: -8}})
	prog.StackSlots = 1

	var buf bytes.Buffer
	if err := newTestPrinter(&buf).PrintProgram(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Join([]string{
		"\t.global\tmain",
		"main:",
		"\tpushq\t%rbp",
		"\tmovq\t%rsp, %rbp",
		"\tsubq\t$16, %rsp",
		"\tmovq\t$1, %rbx",
		"\tmovq\t$2, -8(%rbp)",
		"\tmovq\t%rbx, %rax",
		"\taddq\t-8(%rbp), %rax",
		"\tmovq\t%rax, %rdi",
		"\tcallq\tprint_int",
		"\taddq\t$16, %rsp",
		"\tmovq\t$0, %rax",
		"\tpopq\t%rbp",
		"\tretq",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrintProgramNoFrameNoResult(t *testing.T) {
	prog := NewProgram("start")
	prog.Append(MOVQ{Target: Reg{Reg: RAX}, Source: Imm{Value: 0}})

	var buf bytes.Buffer
	p := newTestPrinter(&buf)
	p.PrintResult = false
	if err := p.PrintProgram(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "start:\n") {
		t.Errorf("expected entry label, got:\n%s", out)
	}
	for _, unwanted := range []string{"subq", "addq", "print_int"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("did not expect %q in:\n%s", unwanted, out)
		}
	}
}

func TestPrintProgramDarwinPrefix(t *testing.T) {
	prog := NewProgram("main")
	prog.Append(CALLQ{Symbol: "read_int"})

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.isDarwin = true
	if err := p.PrintProgram(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"\t.global\t_main\n", "_main:\n", "\tcallq\t_read_int\n", "\tcallq\t_print_int\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestPrintProgramRejectsVariables(t *testing.T) {
	prog := NewProgram("main")
	prog.Append(MOVQ{Target: Var{Name: "x"}, Source: Imm{Value: 1}})

	var buf bytes.Buffer
	err := newTestPrinter(&buf).PrintProgram(prog)
	if !errors.Is(err, ErrBadOperand) {
		t.Errorf("expected ErrBadOperand, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no partial output, got %q", buf.String())
	}
}

type bogus struct{}

func (bogus) implInstruction() {}

func TestPrintUnsupportedInstruction(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)
	if err := p.PrintCode([]Instruction{bogus{}}); !errors.Is(err, ErrUnsupportedInstruction) {
		t.Errorf("expected ErrUnsupportedInstruction, got %v", err)
	}
	prog := NewProgram("main")
	prog.Append(bogus{})
	if err := p.PrintProgram(prog); !errors.Is(err, ErrUnsupportedInstruction) {
		t.Errorf("expected ErrUnsupportedInstruction, got %v", err)
	}
}
