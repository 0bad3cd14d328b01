package x86

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrUnsupportedInstruction indicates an instruction form outside
	// movq/addq/callq reached the back end.
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
	// ErrBadOperand indicates an operand that cannot appear where it was found
	ErrBadOperand = errors.New("bad operand")
)

// ParseInstruction parses one instruction in AT&T order, e.g.
// "movq $1, x", "addq x, y" or "callq read_int". Mnemonics are case
// insensitive; anything after '#' is a comment.
func ParseInstruction(line string) (Instruction, error) {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	mnemonic, rest := line, ""
	if idx := strings.IndexFunc(line, unicode.IsSpace); idx >= 0 {
		mnemonic, rest = line[:idx], strings.TrimSpace(line[idx:])
	}

	switch strings.ToLower(mnemonic) {
	case "movq":
		src, dst, err := parseTwoArgs(rest)
		if err != nil {
			return nil, fmt.Errorf("movq: %w", err)
		}
		return MOVQ{Target: dst, Source: src}, nil
	case "addq":
		src, dst, err := parseTwoArgs(rest)
		if err != nil {
			return nil, fmt.Errorf("addq: %w", err)
		}
		return ADDQ{Target: dst, Arg: src}, nil
	case "callq":
		if !isIdent(rest) {
			return nil, fmt.Errorf("callq: %w: symbol %q", ErrBadOperand, rest)
		}
		return CALLQ{Symbol: rest}, nil
	case "":
		return nil, fmt.Errorf("%w: empty line", ErrUnsupportedInstruction)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInstruction, mnemonic)
	}
}

// parseTwoArgs splits "src, dst". The stack slot form "-8(%rbp)" contains
// no comma so a plain split is enough.
func parseTwoArgs(s string) (Arg, Arg, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: expected 2 operands in %q", ErrBadOperand, s)
	}
	src, err := ParseArg(parts[0])
	if err != nil {
		return nil, nil, err
	}
	dst, err := ParseArg(parts[1])
	if err != nil {
		return nil, nil, err
	}
	if _, ok := dst.(Imm); ok {
		return nil, nil, fmt.Errorf("%w: immediate destination %s", ErrBadOperand, dst)
	}
	return src, dst, nil
}

// ParseArg parses a single operand: $N, %reg, N(%rbp) or a variable name
func ParseArg(s string) (Arg, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "$"):
		n, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: immediate %q", ErrBadOperand, s)
		}
		return Imm{Value: n}, nil
	case strings.HasPrefix(s, "%"):
		r, ok := LookupReg(strings.ToLower(s[1:]))
		if !ok {
			return nil, fmt.Errorf("%w: register %q", ErrBadOperand, s)
		}
		return Reg{Reg: r}, nil
	case strings.HasSuffix(s, "(%rbp)"):
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "(%rbp)"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: stack slot %q", ErrBadOperand, s)
		}
		return StackLoc{Offset: n}, nil
	case isIdent(s):
		return Var{Name: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrBadOperand, s)
}

// ParseLoc parses an operand that must be a location
func ParseLoc(s string) (Loc, error) {
	a, err := ParseArg(s)
	if err != nil {
		return nil, err
	}
	loc, ok := a.(Loc)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a location", ErrBadOperand, a)
	}
	return loc, nil
}

// isIdent checks for a C-style identifier. Dots are accepted so that
// uniquified names such as "x.1" survive.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '.':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
