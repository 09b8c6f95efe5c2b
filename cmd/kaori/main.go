// Command kaori compiles and runs Kaori source files. It wires the full
// pipeline: pkg/lexer, pkg/parser, pkg/resolver, pkg/typecheck,
// pkg/cfgbuild, pkg/bytecode, pkg/vm.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kaori-lang/kaori/internal/diag"
	"github.com/kaori-lang/kaori/internal/kaorilog"
	"github.com/kaori-lang/kaori/pkg/bytecode"
	"github.com/kaori-lang/kaori/pkg/cfgbuild"
	"github.com/kaori-lang/kaori/pkg/parser"
	"github.com/kaori-lang/kaori/pkg/resolver"
	"github.com/kaori-lang/kaori/pkg/typecheck"
	"github.com/kaori-lang/kaori/pkg/vm"
)

var (
	verbose        bool
	registers      int
	callStackDepth int
	dump           bool
	trace          bool
)

func main() {
	root := &cobra.Command{
		Use:   "kaori",
		Short: "Compiler and VM for the Kaori language",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	run := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and execute a Kaori source file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCmd,
	}
	run.Flags().IntVar(&registers, "registers", vm.DefaultRegisters, "register array size")
	run.Flags().IntVar(&callStackDepth, "call-stack-depth", vm.DefaultCallStackDepth, "maximum call depth")
	run.Flags().BoolVar(&trace, "trace", false, "log every executed instruction")

	build := &cobra.Command{
		Use:   "build <file>",
		Short: "Compile a Kaori source file and print its bytecode",
		Args:  cobra.ExactArgs(1),
		RunE:  buildCmd,
	}
	build.Flags().BoolVar(&dump, "dump", true, "print disassembly of every function")

	root.AddCommand(run, build)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// compile runs every front-end stage through bytecode emission, or
// returns the first diagnostic encountered. It prints the diagnostic
// against source before returning so both subcommands share one
// rendering path.
func compile(log *zap.Logger, filename, source string) (*bytecode.Program, error) {
	log.Debug("lexing and parsing", zap.String("file", filename))
	prog, err := parser.Parse(source)
	if err != nil {
		renderAndReturn(filename, source, err)
		return nil, err
	}

	log.Debug("resolving names")
	resolved, err := resolver.Resolve(prog)
	if err != nil {
		renderAndReturn(filename, source, err)
		return nil, err
	}

	log.Debug("type checking")
	if err := typecheck.Check(resolved); err != nil {
		renderAndReturn(filename, source, err)
		return nil, err
	}

	log.Debug("building control-flow graph")
	cfg, err := cfgbuild.Build(resolved)
	if err != nil {
		renderAndReturn(filename, source, err)
		return nil, err
	}

	log.Debug("emitting bytecode")
	bc, err := bytecode.Emit(cfg)
	if err != nil {
		renderAndReturn(filename, source, err)
		return nil, err
	}

	return bc, nil
}

func renderAndReturn(filename, source string, err error) {
	w := bufio.NewWriter(os.Stderr)
	colour := isTerminal(os.Stderr)
	diag.Render(w, filename, source, err, colour)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func readSource(filename string) (string, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type stdoutPrinter struct{}

func (stdoutPrinter) Print(v vm.Value) { fmt.Println(v.String()) }

func runCmd(cmd *cobra.Command, args []string) error {
	log, err := kaorilog.New(verbose || trace)
	if err != nil {
		return err
	}
	defer log.Sync()

	filename := args[0]
	source, err := readSource(filename)
	if err != nil {
		return err
	}

	bc, err := compile(log, filename, source)
	if err != nil {
		return err
	}

	machine := vm.New(bc, stdoutPrinter{}, registers, callStackDepth)
	if trace {
		machine.SetTrace(func(fnName string, pc int, instr bytecode.Instruction) {
			log.Debug("exec", zap.String("fn", fnName), zap.Int("pc", pc), zap.String("instr", bytecode.DisassembleInstruction(instr)))
		})
	}
	result, err := machine.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaori: %s\n", err)
		os.Exit(1)
	}
	log.Debug("program returned", zap.String("value", result.String()))
	return nil
}

func buildCmd(cmd *cobra.Command, args []string) error {
	log, err := kaorilog.New(verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	filename := args[0]
	source, err := readSource(filename)
	if err != nil {
		return err
	}

	bc, err := compile(log, filename, source)
	if err != nil {
		return err
	}

	if dump {
		for i, fn := range bc.Functions {
			fmt.Printf("function %d %q (%d registers, %d params):\n", i, fn.Name, fn.NumRegisters, fn.NumParams)
			for _, line := range bytecode.Disassemble(fn) {
				fmt.Printf("  %s\n", line)
			}
		}
	}
	return nil
}
