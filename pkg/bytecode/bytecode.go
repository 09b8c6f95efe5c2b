// Package bytecode flattens a *cfgbuild.Program into the flat register
// bytecode consumed by pkg/vm: a uint16 instruction stream per function,
// plus a per-function constant pool of pkg/bytecode.Value. See §4.3.
//
// Each instruction occupies a fixed four-word stride
// [opcode, a, b, c], opcode-specialized by operand kind (Register vs.
// Konstant) the way the teacher's RRR/RRI/RI instruction formats are
// specialized by field width rather than by a tag byte. The fixed
// stride means a jump target is just an instruction index, and
// backpatching a forward jump is one store.
package bytecode

import (
	"errors"
	"fmt"

	"github.com/kaori-lang/kaori/pkg/cfgbuild"
	"github.com/kaori-lang/kaori/pkg/cfgir"
)

// ErrStringsNotSupported is returned by Emit when a function's constant
// pool contains a string literal: the language accepts and type-checks
// string expressions, but the register bytecode backend does not yet
// have a string representation to emit them against. This is the
// resolved scope decision recorded in the specification's open
// questions, not a todo.
var ErrStringsNotSupported = errors.New("bytecode: string literals are not supported by this backend")

// Opcode is the instruction tag occupying word 0 of every instruction.
type Opcode uint16

const (
	OpHalt Opcode = iota

	OpAddRR
	OpAddRK
	OpAddKR
	OpAddKK
	OpSubRR
	OpSubRK
	OpSubKR
	OpSubKK
	OpMulRR
	OpMulRK
	OpMulKR
	OpMulKK
	OpDivRR
	OpDivRK
	OpDivKR
	OpDivKK
	OpModRR
	OpModRK
	OpModKR
	OpModKK
	OpEqRR
	OpEqRK
	OpEqKR
	OpEqKK
	OpNeRR
	OpNeRK
	OpNeKR
	OpNeKK
	OpGtRR
	OpGtRK
	OpGtKR
	OpGtKK
	OpGeRR
	OpGeRK
	OpGeKR
	OpGeKK
	OpLtRR
	OpLtRK
	OpLtKR
	OpLtKK
	OpLeRR
	OpLeRK
	OpLeKR
	OpLeKK

	OpNegR
	OpNegK
	OpNotR
	OpNotK

	OpMoveR
	OpMoveK
	OpMoveArgR
	OpMoveArgK

	OpCallR
	OpCallK

	OpPrintR
	OpPrintK

	OpGoto
	OpBranchR
	OpBranchK

	OpReturnVoid
	OpReturnR
	OpReturnK
)

// Stride is the fixed number of uint16 words per instruction.
const Stride = 4

// Instruction is one decoded bytecode instruction: [Op, A, B, C].
type Instruction struct {
	Op   Opcode
	A, B, C uint16
}

// ValueKind discriminates the Value union.
type ValueKind int

const (
	ValueNumber ValueKind = iota
	ValueBoolean
	ValueFunction
)

// Value is a constant-pool entry, the runtime counterpart of
// cfgir.PoolConstant once string literals have been rejected.
type Value struct {
	Kind     ValueKind
	Number   float64
	Boolean  bool
	Function int
}

// Function is one compiled function: its flat instruction stream, its
// constant pool, its register count (the frame size pkg/vm reserves for
// a call to it), and its parameter count.
type Function struct {
	Name         string
	Code         []uint16
	Constants    []Value
	NumRegisters int
	NumParams    int
}

// Program is the full compiled unit. Functions[0] is always main, per
// the resolver's hoisting.
type Program struct {
	Functions []Function
}

// pendingJump records a jump operand slot (forward or backward) that
// needs the target block's final pc patched in once every block is emitted.
type pendingJump struct {
	wordOffset int // index into code of the word to patch
	block      int // target cfgir block index
}

type emitter struct {
	fn          *cfgir.Function
	code        []uint16
	blockPC     []int // cfgir block index -> instruction index (pc), once emitted
	pending     []pendingJump
}

// Emit lowers prog into flat bytecode. It assumes prog's cfgir.Functions
// came from a cfgbuild.Build call that already rejected struct values
// (no HIR expression in this subset can construct one, so codegen never
// sees a struct operand) and returns ErrStringsNotSupported if any
// function's constant pool carries a string.
func Emit(prog *cfgbuild.Program) (*Program, error) {
	out := &Program{Functions: make([]Function, len(prog.Functions))}
	for i, fn := range prog.Functions {
		bf, err := emitFunction(fn)
		if err != nil {
			return nil, err
		}
		out.Functions[i] = *bf
	}
	return out, nil
}

func emitFunction(fn *cfgir.Function) (*Function, error) {
	consts := make([]Value, 0, len(fn.Constants.Entries()))
	for _, c := range fn.Constants.Entries() {
		switch c.Kind {
		case cfgir.ConstNumber:
			consts = append(consts, Value{Kind: ValueNumber, Number: c.Number})
		case cfgir.ConstBoolean:
			consts = append(consts, Value{Kind: ValueBoolean, Boolean: c.Boolean})
		case cfgir.ConstFunction:
			consts = append(consts, Value{Kind: ValueFunction, Function: c.Function})
		case cfgir.ConstString:
			return nil, ErrStringsNotSupported
		default:
			return nil, fmt.Errorf("bytecode: unknown constant kind %d", c.Kind)
		}
	}

	e := &emitter{fn: fn, blockPC: make([]int, len(fn.BasicBlocks))}
	for i := range e.blockPC {
		e.blockPC[i] = -1
	}

	rpo := fn.ReversePostOrder()
	for _, bi := range rpo {
		e.blockPC[bi] = len(e.code) / Stride
		e.emitBlock(fn.Block(bi))
	}

	for _, p := range e.pending {
		target := e.blockPC[p.block]
		e.code[p.wordOffset] = uint16(target)
	}

	return &Function{
		Name:         fn.Name,
		Code:         e.code,
		Constants:    consts,
		NumRegisters: fn.AllocatedVariables,
		NumParams:    fn.ParamCount,
	}, nil
}

func (e *emitter) emitWord(w uint16) int {
	e.code = append(e.code, w)
	return len(e.code) - 1
}

func (e *emitter) emitInstr(op Opcode, a, b, c uint16) {
	e.emitWord(uint16(op))
	e.emitWord(a)
	e.emitWord(b)
	e.emitWord(c)
}

// recordPatch notes that the word at the given absolute offset must be
// overwritten with block's final pc once every block has been emitted.
func (e *emitter) recordPatch(wordOffset int, block int) {
	e.pending = append(e.pending, pendingJump{wordOffset: wordOffset, block: block})
}

func (e *emitter) emitBlock(b *cfgir.BasicBlock) {
	for _, instr := range b.Instructions {
		e.emitInstruction(instr)
	}
	e.emitTerminator(b.Terminator)
}

func (e *emitter) emitInstruction(instr cfgir.Instruction) {
	switch instr.Op {
	case cfgir.Move:
		if instr.Src1.IsConstant() {
			e.emitInstr(OpMoveK, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
		} else {
			e.emitInstr(OpMoveR, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
		}
	case cfgir.MoveArg:
		if instr.Src1.IsConstant() {
			e.emitInstr(OpMoveArgK, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
		} else {
			e.emitInstr(OpMoveArgR, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
		}
	case cfgir.Call:
		if instr.Src1.IsConstant() {
			e.emitInstr(OpCallK, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
		} else {
			e.emitInstr(OpCallR, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
		}
	case cfgir.Print:
		if instr.Src1.IsConstant() {
			e.emitInstr(OpPrintK, uint16(instr.Src1.Index()), 0, 0)
		} else {
			e.emitInstr(OpPrintR, uint16(instr.Src1.Index()), 0, 0)
		}
	case cfgir.Neg, cfgir.Not:
		op := unaryOp(instr.Op, instr.Src1.IsConstant())
		e.emitInstr(op, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), 0)
	default:
		op := binaryOp(instr.Op, instr.Src1.IsConstant(), instr.Src2.IsConstant())
		e.emitInstr(op, uint16(instr.Dest.Index()), uint16(instr.Src1.Index()), uint16(instr.Src2.Index()))
	}
}

func unaryOp(op cfgir.Op, kSrc bool) Opcode {
	switch op {
	case cfgir.Neg:
		if kSrc {
			return OpNegK
		}
		return OpNegR
	case cfgir.Not:
		if kSrc {
			return OpNotK
		}
		return OpNotR
	default:
		panic("bytecode: not a unary op")
	}
}

func binaryOp(op cfgir.Op, kLeft, kRight bool) Opcode {
	var base Opcode
	switch op {
	case cfgir.Add:
		base = OpAddRR
	case cfgir.Sub:
		base = OpSubRR
	case cfgir.Mul:
		base = OpMulRR
	case cfgir.Div:
		base = OpDivRR
	case cfgir.Mod:
		base = OpModRR
	case cfgir.Eq:
		base = OpEqRR
	case cfgir.Ne:
		base = OpNeRR
	case cfgir.Gt:
		base = OpGtRR
	case cfgir.Ge:
		base = OpGeRR
	case cfgir.Lt:
		base = OpLtRR
	case cfgir.Le:
		base = OpLeRR
	default:
		panic("bytecode: not a binary op")
	}
	// Each base is the RR variant of a contiguous four-opcode family
	// ordered RR, RK, KR, KK.
	switch {
	case !kLeft && !kRight:
		return base
	case !kLeft && kRight:
		return base + 1
	case kLeft && !kRight:
		return base + 2
	default:
		return base + 3
	}
}

func (e *emitter) emitTerminator(t cfgir.Terminator_) {
	switch t.Kind {
	case cfgir.TermGoto:
		start := len(e.code)
		e.emitInstr(OpGoto, 0, 0, 0)
		e.recordPatch(start+1, t.Target)
	case cfgir.TermBranch:
		op := OpBranchR
		if t.Cond.IsConstant() {
			op = OpBranchK
		}
		start := len(e.code)
		e.emitInstr(op, uint16(t.Cond.Index()), 0, 0)
		e.recordPatch(start+2, t.TrueTarget)
		e.recordPatch(start+3, t.FalseTarget)
	case cfgir.TermReturn:
		if !t.HasSrc {
			e.emitInstr(OpReturnVoid, 0, 0, 0)
		} else if t.Src.IsConstant() {
			e.emitInstr(OpReturnK, uint16(t.Src.Index()), 0, 0)
		} else {
			e.emitInstr(OpReturnR, uint16(t.Src.Index()), 0, 0)
		}
	case cfgir.TermNone:
		e.emitInstr(OpReturnVoid, 0, 0, 0)
	}
}

// Decode reads the instruction at pc (in instruction units, not word
// units) out of code, mirroring the teacher's Decode/DecodeOpcode split
// for a fixed-width instruction format.
func Decode(code []uint16, pc int) Instruction {
	off := pc * Stride
	return Instruction{Op: Opcode(code[off]), A: code[off+1], B: code[off+2], C: code[off+3]}
}

// DisassembleInstruction renders a single decoded instruction the same
// way Disassemble renders each line of a function dump; the VM's
// instruction tracer uses this to log one line per executed step.
func DisassembleInstruction(instr Instruction) string {
	return disassembleOne(instr.Op, instr.A, instr.B, instr.C)
}

// Disassemble renders fn's instruction stream as one line per
// instruction, in the style of the teacher's Disassemble function.
func Disassemble(fn Function) []string {
	lines := make([]string, 0, len(fn.Code)/Stride)
	for pc := 0; pc*Stride < len(fn.Code); pc++ {
		off := pc * Stride
		op := Opcode(fn.Code[off])
		a, b, c := fn.Code[off+1], fn.Code[off+2], fn.Code[off+3]
		lines = append(lines, fmt.Sprintf("%04d  %s", pc, disassembleOne(op, a, b, c)))
	}
	return lines
}

func disassembleOne(op Opcode, a, b, c uint16) string {
	switch op {
	case OpHalt:
		return "halt"
	case OpMoveR:
		return fmt.Sprintf("move r%d, r%d", a, b)
	case OpMoveK:
		return fmt.Sprintf("move r%d, k%d", a, b)
	case OpMoveArgR:
		return fmt.Sprintf("movearg a%d, r%d", a, b)
	case OpMoveArgK:
		return fmt.Sprintf("movearg a%d, k%d", a, b)
	case OpCallR:
		return fmt.Sprintf("call r%d, r%d", a, b)
	case OpCallK:
		return fmt.Sprintf("call r%d, k%d", a, b)
	case OpPrintR:
		return fmt.Sprintf("print r%d", a)
	case OpPrintK:
		return fmt.Sprintf("print k%d", a)
	case OpGoto:
		return fmt.Sprintf("goto %d", a)
	case OpBranchR:
		return fmt.Sprintf("branch r%d, %d, %d", a, b, c)
	case OpBranchK:
		return fmt.Sprintf("branch k%d, %d, %d", a, b, c)
	case OpReturnVoid:
		return "return"
	case OpReturnR:
		return fmt.Sprintf("return r%d", a)
	case OpReturnK:
		return fmt.Sprintf("return k%d", a)
	case OpNegR:
		return fmt.Sprintf("neg r%d, r%d", a, b)
	case OpNegK:
		return fmt.Sprintf("neg r%d, k%d", a, b)
	case OpNotR:
		return fmt.Sprintf("not r%d, r%d", a, b)
	case OpNotK:
		return fmt.Sprintf("not r%d, k%d", a, b)
	default:
		name, kind, ok := binaryMnemonic(op)
		if !ok {
			return fmt.Sprintf("<unknown opcode %d>", op)
		}
		return fmt.Sprintf("%s r%d, %s%d, %s%d", name, a, kind[0], b, kind[1], c)
	}
}

func binaryMnemonic(op Opcode) (string, [2]string, bool) {
	families := []struct {
		base Opcode
		name string
	}{
		{OpAddRR, "add"}, {OpSubRR, "sub"}, {OpMulRR, "mul"}, {OpDivRR, "div"}, {OpModRR, "mod"},
		{OpEqRR, "eq"}, {OpNeRR, "ne"}, {OpGtRR, "gt"}, {OpGeRR, "ge"}, {OpLtRR, "lt"}, {OpLeRR, "le"},
	}
	variants := [][2]string{{"r", "r"}, {"r", "k"}, {"k", "r"}, {"k", "k"}}
	for _, fam := range families {
		if op >= fam.base && op < fam.base+4 {
			return fam.name, variants[op-fam.base], true
		}
	}
	return "", [2]string{}, false
}
