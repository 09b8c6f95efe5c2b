package vm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaori-lang/kaori/pkg/bytecode"
	"github.com/kaori-lang/kaori/pkg/cfgbuild"
	"github.com/kaori-lang/kaori/pkg/parser"
	"github.com/kaori-lang/kaori/pkg/resolver"
	"github.com/kaori-lang/kaori/pkg/typecheck"
	"github.com/kaori-lang/kaori/pkg/vm"
)

type capturePrinter struct {
	values []vm.Value
}

func (c *capturePrinter) Print(v vm.Value) { c.values = append(c.values, v) }

func compile(t *testing.T, source string) *bytecode.Program {
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

func run(t *testing.T, source string) (vm.Value, *capturePrinter) {
	t.Helper()
	bc := compile(t, source)
	printer := &capturePrinter{}
	m := vm.New(bc, printer, 0, 0)
	result, err := m.Run()
	require.NoError(t, err)
	return result, printer
}

func TestRunArithmeticAndPrint(t *testing.T) {
	_, printer := run(t, `
		def main() {
			x: number = 1 + 2 * 3;
			print(x);
		}
	`)
	require.Len(t, printer.values, 1)
	assert.Equal(t, vm.Number, printer.values[0].Kind)
	assert.Equal(t, float64(7), printer.values[0].Number)
}

func TestRunComparisonsProduceBooleans(t *testing.T) {
	_, printer := run(t, `
		def main() {
			print(3 < 5);
			print(3 > 5);
			print(3 == 3);
		}
	`)
	require.Len(t, printer.values, 3)
	assert.Equal(t, true, printer.values[0].Boolean)
	assert.Equal(t, false, printer.values[1].Boolean)
	assert.Equal(t, true, printer.values[2].Boolean)
}

func TestRunIfElseTakesCorrectBranch(t *testing.T) {
	_, printer := run(t, `
		def main() {
			x: number = 10;
			if x > 5 {
				print(1);
			} else {
				print(0);
			}
		}
	`)
	require.Len(t, printer.values, 1)
	assert.Equal(t, float64(1), printer.values[0].Number)
}

func TestRunLoopWithBreakAndContinue(t *testing.T) {
	_, printer := run(t, `
		def main() {
			sum: number = 0;
			for i: number = 0; i < 10; i = i + 1 {
				if i == 7 {
					break;
				}
				if i == 2 {
					continue;
				}
				sum = sum + i;
			}
			print(sum);
		}
	`)
	require.Len(t, printer.values, 1)
	// 0+1+3+4+5+6 = 19 (2 skipped by continue, loop breaks before 7)
	assert.Equal(t, float64(19), printer.values[0].Number)
}

func TestRunFunctionCallWithArgsAndReturn(t *testing.T) {
	_, printer := run(t, `
		def add(a: number, b: number) -> number {
			return a + b;
		}
		def main() {
			print(add(3, 4));
		}
	`)
	require.Len(t, printer.values, 1)
	assert.Equal(t, float64(7), printer.values[0].Number)
}

func TestRunRecursiveFunctionCall(t *testing.T) {
	_, printer := run(t, `
		def fact(n: number) -> number {
			if n <= 1 {
				return 1;
			}
			return n * fact(n - 1);
		}
		def main() {
			print(fact(5));
		}
	`)
	require.Len(t, printer.values, 1)
	assert.Equal(t, float64(120), printer.values[0].Number)
}

func TestRunShortCircuitAndSkipsSecondCall(t *testing.T) {
	_, printer := run(t, `
		def sideEffect() -> bool {
			print(99);
			return true;
		}
		def main() {
			x: bool = false and sideEffect();
			print(x);
		}
	`)
	// sideEffect must never run since the left operand is false.
	require.Len(t, printer.values, 1)
	assert.Equal(t, false, printer.values[0].Boolean)
}

func TestRunDivisionByZeroProducesInf(t *testing.T) {
	_, printer := run(t, `
		def main() {
			print(1 / 0);
			print(0 - 1 / 0);
			print(0 / 0);
		}
	`)
	require.Len(t, printer.values, 3)
	assert.True(t, math.IsInf(printer.values[0].Number, 1))
	assert.True(t, math.IsInf(printer.values[1].Number, -1))
	assert.True(t, math.IsNaN(printer.values[2].Number))
}

func TestRunModuloByZeroProducesNaN(t *testing.T) {
	_, printer := run(t, `
		def main() {
			print(5 % 0);
		}
	`)
	require.Len(t, printer.values, 1)
	assert.True(t, math.IsNaN(printer.values[0].Number))
}

func TestRunRegisterExhaustionIsFatal(t *testing.T) {
	bc := compile(t, `
		def main() {
			x: number = 1;
			y: number = 2;
		}
	`)
	m := vm.New(bc, &capturePrinter{}, 1, 1)
	_, err := m.Run()
	require.ErrorIs(t, err, vm.ErrRegistersExhausted)
}

func TestRunTraceCallsTracerForEveryInstruction(t *testing.T) {
	bc := compile(t, `
		def main() {
			x: number = 1 + 2;
			print(x);
		}
	`)
	m := vm.New(bc, &capturePrinter{}, 0, 0)
	var steps int
	m.SetTrace(func(fnName string, pc int, instr bytecode.Instruction) {
		steps++
		assert.Equal(t, "main", fnName)
	})
	_, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, len(bc.Functions[0].Code)/bytecode.Stride, steps)
}

func TestRunReturnsMainResultToCaller(t *testing.T) {
	bc := compile(t, `
		def main() -> number {
			return 42;
		}
	`)
	m := vm.New(bc, &capturePrinter{}, 0, 0)
	result, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, float64(42), result.Number)
}
