package cfgbuild_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaori-lang/kaori/pkg/cfgbuild"
	"github.com/kaori-lang/kaori/pkg/cfgir"
	"github.com/kaori-lang/kaori/pkg/parser"
	"github.com/kaori-lang/kaori/pkg/resolver"
	"github.com/kaori-lang/kaori/pkg/typecheck"
)

func build(t *testing.T, source string) *cfgbuild.Program {
	t.Helper()
	prog, err := parser.Parse(source)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(prog)
	require.NoError(t, err)
	require.NoError(t, typecheck.Check(resolved))
	cfg, err := cfgbuild.Build(resolved)
	require.NoError(t, err)
	return cfg
}

func TestBuildSimpleReturnIsOneBlock(t *testing.T) {
	cfg := build(t, `
		def main() { return; }
	`)
	main := cfg.Functions[0]
	require.Len(t, main.BasicBlocks, 1)
	assert.Equal(t, cfgir.TermReturn, main.BasicBlocks[0].Terminator.Kind)
}

func TestBuildIfElseProducesFourBlocks(t *testing.T) {
	cfg := build(t, `
		def main() {
			x: number = 0;
			if x == 0 {
				print(1);
			} else {
				print(2);
			}
		}
	`)
	main := cfg.Functions[0]
	// entry, then, else, join
	assert.Len(t, main.BasicBlocks, 4)
	entry := main.BasicBlocks[0]
	assert.Equal(t, cfgir.TermBranch, entry.Terminator.Kind)
}

func TestBuildLoopProducesHeaderBodyIncrementBreakBlocks(t *testing.T) {
	cfg := build(t, `
		def main() {
			for i: number = 0; i < 10; i = i + 1 {
				print(i);
			}
		}
	`)
	main := cfg.Functions[0]
	// entry (init), header, body, increment, break/exit
	assert.Len(t, main.BasicBlocks, 5)
}

func TestBuildBreakJumpsToExitBlock(t *testing.T) {
	cfg := build(t, `
		def main() {
			for i: number = 0; i < 10; i = i + 1 {
				if i == 5 {
					break;
				}
			}
		}
	`)
	main := cfg.Functions[0]
	// the entry block jumps to the loop header, whose false edge is the exit.
	header := main.Block(main.BasicBlocks[0].Terminator.Target)
	exit := header.Terminator.FalseTarget
	var sawGotoToExit bool
	for _, b := range main.BasicBlocks {
		if b.Terminator.Kind == cfgir.TermGoto && b.Terminator.Target == exit {
			sawGotoToExit = true
		}
	}
	assert.True(t, sawGotoToExit, "expected some block to goto the loop's exit block")
}

func TestBuildShortCircuitAndAddsBranchBlocks(t *testing.T) {
	cfg := build(t, `
		def f() -> bool { return true; }
		def main() {
			x: bool = f() and f();
		}
	`)
	// locate main by name rather than by index.
	var mainFn *cfgir.Function
	for _, fn := range cfg.Functions {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	require.NotNil(t, mainFn)
	assert.Greater(t, len(mainFn.BasicBlocks), 1, "short-circuit lowering should branch")
}

func TestBuildConstantPoolDeduplicatesEqualNumbers(t *testing.T) {
	cfg := build(t, `
		def main() {
			x: number = 1;
			y: number = 1;
		}
	`)
	main := cfg.Functions[0]
	assert.Len(t, main.Constants.Entries(), 1)
}

func TestBuildRejectsStringLiterals(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			s: string = "hi";
		}
	`)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(prog)
	require.NoError(t, err)
	require.NoError(t, typecheck.Check(resolved))
	_, err = cfgbuild.Build(resolved)
	require.Error(t, err)
}

func TestBuildRejectsBareStructVariableReference(t *testing.T) {
	prog, err := parser.Parse(`
		struct Point { x: number, y: number }
		def show(p: Point) {
			print(p);
		}
		def main() {}
	`)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(prog)
	require.NoError(t, err)
	require.NoError(t, typecheck.Check(resolved))
	_, err = cfgbuild.Build(resolved)
	require.Error(t, err)
	require.ErrorIs(t, err, cfgbuild.ErrStructNotSupported)
}

func TestBuildThreadsJumpsThroughEmptyJoinBlocks(t *testing.T) {
	cfg := build(t, `
		def main() {
			x: number = 1;
			if x == 1 {
				if x == 1 {
					print(1);
				}
			}
		}
	`)
	main := cfg.Functions[0]

	// The inner if's then-block (holding the print) ends with a Goto
	// that, before threading, targets the inner join block — an empty
	// pass-through block whose own Goto reaches the outer join block.
	// Threading should retarget it straight at the outer join block,
	// skipping the pass-through entirely.
	var innerThen *cfgir.BasicBlock
	for _, b := range main.BasicBlocks {
		for _, instr := range b.Instructions {
			if instr.Op == cfgir.Print {
				innerThen = b
			}
		}
	}
	require.NotNil(t, innerThen, "expected to find the block containing the print instruction")
	require.Equal(t, cfgir.TermGoto, innerThen.Terminator.Kind)

	target := main.Block(innerThen.Terminator.Target)
	assert.NotEqual(t, cfgir.TermGoto, target.Terminator.Kind,
		"threading should skip past any empty Goto-only pass-through block")
}

func TestBuildFunctionCallEmitsMoveArgAndCall(t *testing.T) {
	cfg := build(t, `
		def add(a: number, b: number) -> number { return a + b; }
		def main() { x: number = add(1, 2); }
	`)
	var mainFn *cfgir.Function
	for _, fn := range cfg.Functions {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	require.NotNil(t, mainFn)
	var sawMoveArg, sawCall bool
	for _, b := range mainFn.BasicBlocks {
		for _, instr := range b.Instructions {
			if instr.Op == cfgir.MoveArg {
				sawMoveArg = true
			}
			if instr.Op == cfgir.Call {
				sawCall = true
			}
		}
	}
	assert.True(t, sawMoveArg)
	assert.True(t, sawCall)
}
