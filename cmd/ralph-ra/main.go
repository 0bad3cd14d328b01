package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/raymyers/ralph-ra/pkg/config"
	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"github.com/raymyers/ralph-ra/pkg/unit"
	"github.com/raymyers/ralph-ra/pkg/x86"
)

var version = "0.1.0"

// Debug flags for dumping intermediate results
var (
	dCode  bool // code as loaded, before allocation
	dAlloc bool
	dColor bool
	dAsm   bool
)

// Options that override the config file
var (
	configPath    string
	outputPath    string
	heuristicName string
	entryName     string
	verbose       bool
	noPrintResult bool
	elideMoves    bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize single-dash dump flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists all debug flags that should accept single-dash style
var debugFlagNames = []string{"dcode", "dalloc", "dcolor", "dasm"}

// normalizeFlags converts single-dash flags like -dalloc to --dalloc
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-ra [unit.yaml]",
		Short: "ralph-ra allocates registers for a lowered unit and emits x86-64 assembly",
		Long: `ralph-ra is the back end tail of a small compiler. It reads a lowered
instruction list together with its interference and move graphs, colors
the interference graph to assign registers and stack slots, rewrites the
instructions and prints AT&T syntax assembly.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			cfg, err := loadConfig(cmd, errOut)
			if err != nil {
				return err
			}
			return doCompile(args[0], cfg, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Add debug flags
	rootCmd.Flags().BoolVarP(&dCode, "dcode", "", false, "Dump code before allocation")
	rootCmd.Flags().BoolVarP(&dAlloc, "dalloc", "", false, "Dump code after allocation")
	rootCmd.Flags().BoolVarP(&dColor, "dcolor", "", false, "Dump the color assignment as JSON")
	rootCmd.Flags().BoolVarP(&dAsm, "dasm", "", false, "Dump assembly")

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write assembly to file")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to ralph-ra.toml")
	rootCmd.Flags().StringVar(&heuristicName, "heuristic", "", "Vertex selection heuristic (degree or saturation)")
	rootCmd.Flags().StringVar(&entryName, "entry", "", "Entry symbol of the emitted function")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Trace allocation decisions on stderr")
	rootCmd.Flags().BoolVar(&noPrintResult, "no-print-result", false, "Do not print %rax before returning")
	rootCmd.Flags().BoolVar(&elideMoves, "elide-moves", false, "Drop moves whose source and target share a location")

	return rootCmd
}

// loadConfig resolves the config file and applies command line overrides
func loadConfig(cmd *cobra.Command, errOut io.Writer) (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("heuristic") {
		cfg.Alloc.Heuristic = heuristicName
	}
	if flags.Changed("entry") {
		cfg.Emit.Entry = entryName
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if noPrintResult {
		cfg.Emit.PrintResult = false
	}
	if elideMoves {
		cfg.Alloc.ElideMoves = true
	}
	return cfg, nil
}

// newLogger returns a debug console logger on errOut, or a no-op logger
func newLogger(enabled bool, errOut io.Writer) *zap.Logger {
	if !enabled {
		return zap.NewNop()
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(errOut), zapcore.DebugLevel)
	return zap.New(core)
}

// doCompile loads a unit, allocates it and writes the requested outputs
func doCompile(filename string, cfg *config.Config, out, errOut io.Writer) error {
	u, err := unit.Load(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		return err
	}

	if dCode {
		if err := dumpCode(codeOutputFilename(filename), u.Code, out); err != nil {
			fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
			return err
		}
	}

	opts, err := cfg.Options()
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		return err
	}
	logger := newLogger(cfg.Verbose, errOut)
	defer logger.Sync()
	opts = append(opts, regalloc.WithLogger(logger))

	result, err := regalloc.Allocate(u.Code, u.Interference, u.Moves, opts...)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %s: allocation failed: %v\n", filename, err)
		return err
	}
	if cfg.Alloc.ElideMoves {
		result.Code = regalloc.ElideSelfMoves(result.Code)
	}

	if dAlloc {
		if err := dumpCode(allocOutputFilename(filename), result.Code, out); err != nil {
			fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
			return err
		}
	}

	if dColor {
		if err := dumpColors(colorOutputFilename(filename), result, out); err != nil {
			fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
			return err
		}
	}

	entry := cfg.Emit.Entry
	if entry == "" {
		entry = u.Entry
	}
	prog := result.Program(entry)

	// Assembly goes to -o, to input.s with -dasm, or to stdout when no
	// other output was requested.
	switch {
	case outputPath != "":
		err = writeAsmFile(outputPath, prog, cfg, nil)
	case dAsm:
		err = writeAsmFile(asmOutputFilename(filename), prog, cfg, out)
	case !dCode && !dAlloc && !dColor:
		err = printAsm(out, prog, cfg)
	}
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		return err
	}
	return nil
}

func newPrinter(w io.Writer, cfg *config.Config) *x86.Printer {
	p := x86.NewPrinter(w)
	p.PrintResult = cfg.Emit.PrintResult
	if cfg.Emit.ResultFunc != "" {
		p.ResultFunc = cfg.Emit.ResultFunc
	}
	return p
}

func printAsm(w io.Writer, prog *x86.Program, cfg *config.Config) error {
	return newPrinter(w, cfg).PrintProgram(prog)
}

// writeAsmFile prints the program to path and, if echo is set, to echo too
func writeAsmFile(path string, prog *x86.Program, cfg *config.Config, echo io.Writer) error {
	var sb strings.Builder
	if err := printAsm(&sb, prog, cfg); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if echo != nil {
		fmt.Fprint(echo, sb.String())
	}
	return nil
}

// dumpCode writes the instruction list to path and to out
func dumpCode(path string, code []x86.Instruction, out io.Writer) error {
	var sb strings.Builder
	if err := x86.NewPrinter(&sb).PrintCode(code); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	fmt.Fprint(out, sb.String())
	return nil
}

type assignment struct {
	Variable string `json:"variable"`
	Color    int    `json:"color"`
	Location string `json:"location"`
}

type colorDump struct {
	SpillSlots  int          `json:"spill_slots"`
	Assignments []assignment `json:"assignments"`
}

// dumpColors writes the variable assignment as JSON to path and to out
func dumpColors(path string, result *regalloc.Result, out io.Writer) error {
	names := make([]string, 0, len(result.Colors))
	for name := range result.Colors {
		names = append(names, name)
	}
	slices.Sort(names)

	dump := colorDump{SpillSlots: result.SpillSlots, Assignments: make([]assignment, 0, len(names))}
	for _, name := range names {
		dump.Assignments = append(dump.Assignments, assignment{
			Variable: name,
			Color:    result.Colors[name],
			Location: result.Locations[name].String(),
		})
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	out.Write(data)
	return nil
}

// outputFilename replaces a .yaml/.yml extension with ext
func outputFilename(filename, ext string) string {
	for _, in := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, in) {
			return filename[:len(filename)-len(in)] + ext
		}
	}
	return filename + ext
}

// codeOutputFilename returns the output filename for -dcode
func codeOutputFilename(filename string) string {
	return outputFilename(filename, ".code")
}

// allocOutputFilename returns the output filename for -dalloc
func allocOutputFilename(filename string) string {
	return outputFilename(filename, ".alloc")
}

// colorOutputFilename returns the output filename for -dcolor
func colorOutputFilename(filename string) string {
	return outputFilename(filename, ".color.json")
}

// asmOutputFilename returns the output filename for -dasm
func asmOutputFilename(filename string) string {
	return outputFilename(filename, ".s")
}
