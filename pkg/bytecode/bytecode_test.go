package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaori-lang/kaori/pkg/bytecode"
	"github.com/kaori-lang/kaori/pkg/cfgbuild"
	"github.com/kaori-lang/kaori/pkg/parser"
	"github.com/kaori-lang/kaori/pkg/resolver"
	"github.com/kaori-lang/kaori/pkg/typecheck"
)

func emit(t *testing.T, source string) *bytecode.Program {
	t.Helper()
	prog, err := parser.Parse(source)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(prog)
	require.NoError(t, err)
	require.NoError(t, typecheck.Check(resolved))
	cfg, err := cfgbuild.Build(resolved)
	require.NoError(t, err)
	bc, err := bytecode.Emit(cfg)
	require.NoError(t, err)
	return bc
}

func TestEmitProducesInstructionsInStrideAlignment(t *testing.T) {
	bc := emit(t, `def main() { x: number = 1 + 2; }`)
	main := bc.Functions[0]
	assert.Zero(t, len(main.Code)%bytecode.Stride)
	assert.NotEmpty(t, main.Code)
}

func TestEmitResolvesForwardBranchTargets(t *testing.T) {
	bc := emit(t, `
		def main() {
			x: number = 0;
			if x == 0 {
				print(1);
			}
		}
	`)
	main := bc.Functions[0]
	numInstr := len(main.Code) / bytecode.Stride
	for pc := 0; pc < numInstr; pc++ {
		instr := bytecode.Decode(main.Code, pc)
		switch instr.Op {
		case bytecode.OpGoto:
			assert.Less(t, int(instr.A), numInstr)
		case bytecode.OpBranchR, bytecode.OpBranchK:
			assert.Less(t, int(instr.B), numInstr)
			assert.Less(t, int(instr.C), numInstr)
		}
	}
}

func TestEmitRejectsStrings(t *testing.T) {
	_, err := func() (*bytecode.Program, error) {
		prog, err := parser.Parse(`def main() { s: string = "hi"; }`)
		if err != nil {
			return nil, err
		}
		resolved, err := resolver.Resolve(prog)
		if err != nil {
			return nil, err
		}
		if err := typecheck.Check(resolved); err != nil {
			return nil, err
		}
		cfg, err := cfgbuild.Build(resolved)
		if err != nil {
			return nil, err
		}
		return bytecode.Emit(cfg)
	}()
	require.Error(t, err)
}

func TestDisassembleRendersOneLinePerInstruction(t *testing.T) {
	bc := emit(t, `def main() { print(1); }`)
	lines := bytecode.Disassemble(bc.Functions[0])
	assert.Equal(t, len(bc.Functions[0].Code)/bytecode.Stride, len(lines))
}
