// Package cfgbuild lowers a resolved, typed *hir.Program into the
// control-flow-graph form defined by pkg/cfgir. See §4.1.
package cfgbuild

import (
	"errors"

	"github.com/kaori-lang/kaori/internal/diag"
	"github.com/kaori-lang/kaori/pkg/cfgir"
	"github.com/kaori-lang/kaori/pkg/hir"
	"github.com/kaori-lang/kaori/pkg/token"
)

// ErrStructNotSupported is wrapped into every diagnostic raised when a
// struct-typed value reaches codegen: the bytecode backend has no
// representation for an aggregate value in a register.
var ErrStructNotSupported = errors.New("cfgbuild: struct-typed values are not supported by the bytecode backend")

// ErrMissingReturn is wrapped into the diagnostic raised when a non-void
// function has a reachable exit without a return terminator.
var ErrMissingReturn = errors.New("cfgbuild: function does not return a value on every path")

// Program is the compiled output: one cfgir.Function per source function,
// in the same order as hir.Program.Decls (main first, per the resolver's
// hoisting).
type Program struct {
	Functions []*cfgir.Function
}

// Build lowers prog into CFG form. It assumes prog has already passed
// pkg/resolver and pkg/typecheck; a non-void function whose final block is
// reachable and has no return is still reported here, wrapping
// ErrMissingReturn.
func Build(prog *hir.Program) (*Program, error) {
	b := &builder{prog: prog, fnIndex: make(map[hir.Id]int)}

	var fnDecls []*hir.FunctionDecl
	for _, d := range prog.Decls {
		if fn, ok := d.(*hir.FunctionDecl); ok {
			b.fnIndex[fn.Id] = len(fnDecls)
			fnDecls = append(fnDecls, fn)
		}
	}

	out := &Program{Functions: make([]*cfgir.Function, len(fnDecls))}
	for i, fn := range fnDecls {
		cf, err := b.buildFunction(fn)
		if err != nil {
			return nil, err
		}
		out.Functions[i] = cf
	}
	return out, nil
}

type loopTargets struct {
	continueBlock int
	breakBlock    int
}

type builder struct {
	prog    *hir.Program
	fnIndex map[hir.Id]int

	fn     *cfgir.Function
	cur    *cfgir.BasicBlock
	slots  map[hir.Id]int
	loops  []loopTargets
}

func (b *builder) freshSlot() int {
	s := b.fn.AllocatedVariables
	b.fn.AllocatedVariables++
	return s
}

func (b *builder) slotFor(id hir.Id) int {
	if s, ok := b.slots[id]; ok {
		return s
	}
	s := b.freshSlot()
	b.slots[id] = s
	return s
}

func (b *builder) buildFunction(fn *hir.FunctionDecl) (*cfgir.Function, error) {
	b.fn = cfgir.NewFunction(fn.Name)
	b.slots = make(map[hir.Id]int)
	b.loops = nil

	for _, pid := range fn.Parameters {
		b.slotFor(pid)
	}
	b.fn.ParamCount = len(fn.Parameters)

	b.cur = b.fn.NewBlock()
	if err := b.buildBlock(fn.Body); err != nil {
		return nil, err
	}

	if fn.ReturnTy.Kind == hir.VoidType {
		b.cur.SetTerminator(cfgir.ReturnTerm(cfgir.Operand{}, false))
	} else if b.cur.Terminator.Kind == cfgir.TermNone {
		// an unterminated final block is only a missing return if control
		// reaches it (after an if/else whose arms both return, it does not).
		seen := make([]bool, len(b.fn.BasicBlocks))
		var visit func(i int)
		visit = func(i int) {
			if seen[i] {
				return
			}
			seen[i] = true
			switch t := b.fn.Block(i).Terminator; t.Kind {
			case cfgir.TermGoto:
				visit(t.Target)
			case cfgir.TermBranch:
				visit(t.TrueTarget)
				visit(t.FalseTarget)
			}
		}
		visit(0)
		if seen[b.cur.Index] {
			return nil, diag.NewWrap(diag.CFG, fn.Span, ErrMissingReturn,
				"function %q does not return a value on every path", fn.Name)
		}
	}

	threadJumps(b.fn)
	return b.fn, nil
}

// threadJumps collapses jumps-to-jumps, per §4.2: if a Goto or Branch
// target is an empty block whose own terminator is an unconditional
// Goto, retarget the original jump straight to that Goto's eventual
// destination instead of bouncing through the pass-through block at
// run time. buildBlock/buildBranch/buildLoop routinely emit such
// pass-through blocks at join points (e.g. an `if` with no `else`
// still allocates a join block reached by two Gotos).
func threadJumps(fn *cfgir.Function) {
	resolve := func(start int) int {
		cur := start
		seen := map[int]bool{}
		for !seen[cur] {
			seen[cur] = true
			b := fn.Block(cur)
			if len(b.Instructions) != 0 || b.Terminator.Kind != cfgir.TermGoto {
				return cur
			}
			cur = b.Terminator.Target
		}
		return cur // a Goto cycle with no other exit; leave it be.
	}

	for _, b := range fn.BasicBlocks {
		switch b.Terminator.Kind {
		case cfgir.TermGoto:
			b.Terminator.Target = resolve(b.Terminator.Target)
		case cfgir.TermBranch:
			b.Terminator.TrueTarget = resolve(b.Terminator.TrueTarget)
			b.Terminator.FalseTarget = resolve(b.Terminator.FalseTarget)
		}
	}
}

func (b *builder) buildBlock(block *hir.Block) error {
	for _, s := range block.Nodes {
		if err := b.buildStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildStmt(s hir.Stmt) error {
	switch st := s.(type) {
	case *hir.ExpressionStmt:
		_, err := b.buildExpr(st.Expr)
		return err

	case *hir.PrintStmt:
		v, err := b.buildExpr(st.Value)
		if err != nil {
			return err
		}
		b.cur.Emit(cfgir.NewPrint(v))
		return nil

	case *hir.Block:
		return b.buildBlock(st)

	case *hir.BranchStmt:
		return b.buildBranch(st)

	case *hir.LoopStmt:
		return b.buildLoop(st)

	case *hir.BreakStmt:
		if len(b.loops) == 0 {
			return diag.New(diag.CFG, st.Span, "break outside of loop")
		}
		target := b.loops[len(b.loops)-1].breakBlock
		b.cur.SetTerminator(cfgir.GotoTerm(target))
		return nil

	case *hir.ContinueStmt:
		if len(b.loops) == 0 {
			return diag.New(diag.CFG, st.Span, "continue outside of loop")
		}
		target := b.loops[len(b.loops)-1].continueBlock
		b.cur.SetTerminator(cfgir.GotoTerm(target))
		return nil

	case *hir.ReturnStmt:
		if st.Expr == nil {
			b.cur.SetTerminator(cfgir.ReturnTerm(cfgir.Operand{}, false))
			return nil
		}
		v, err := b.buildExpr(st.Expr)
		if err != nil {
			return err
		}
		b.cur.SetTerminator(cfgir.ReturnTerm(v, true))
		return nil

	default:
		return diag.New(diag.CFG, token.Span{}, "cfgbuild: unsupported statement %T", s)
	}
}

func (b *builder) buildBranch(st *hir.BranchStmt) error {
	cond, err := b.buildExpr(st.Cond)
	if err != nil {
		return err
	}

	thenBlock := b.fn.NewBlock()
	var elseBlock *cfgir.BasicBlock
	joinBlock := b.fn.NewBlock()

	if st.Else != nil {
		elseBlock = b.fn.NewBlock()
		b.cur.SetTerminator(cfgir.BranchTerm(cond, thenBlock.Index, elseBlock.Index))
	} else {
		b.cur.SetTerminator(cfgir.BranchTerm(cond, thenBlock.Index, joinBlock.Index))
	}

	b.cur = thenBlock
	if err := b.buildBlock(st.Then); err != nil {
		return err
	}
	b.cur.SetTerminator(cfgir.GotoTerm(joinBlock.Index))

	if st.Else != nil {
		b.cur = elseBlock
		if err := b.buildBlock(st.Else); err != nil {
			return err
		}
		b.cur.SetTerminator(cfgir.GotoTerm(joinBlock.Index))
	}

	b.cur = joinBlock
	return nil
}

// buildLoop lowers a LoopStmt into: [init] -> headerBlock (cond test) ->
// bodyBlock -> incrementBlock -> headerBlock, with breakBlock as the
// shared exit. continue jumps to incrementBlock (running the for-loop's
// increment before re-testing the condition), matching the desugared
// for/while form of §4.1.
func (b *builder) buildLoop(st *hir.LoopStmt) error {
	if st.Init != nil {
		if err := b.buildStmt(st.Init); err != nil {
			return err
		}
	}

	headerBlock := b.fn.NewBlock()
	bodyBlock := b.fn.NewBlock()
	incrementBlock := b.fn.NewBlock()
	breakBlock := b.fn.NewBlock()

	b.cur.SetTerminator(cfgir.GotoTerm(headerBlock.Index))

	b.cur = headerBlock
	cond, err := b.buildExpr(st.Cond)
	if err != nil {
		return err
	}
	b.cur.SetTerminator(cfgir.BranchTerm(cond, bodyBlock.Index, breakBlock.Index))

	b.loops = append(b.loops, loopTargets{continueBlock: incrementBlock.Index, breakBlock: breakBlock.Index})
	b.cur = bodyBlock
	if err := b.buildBlock(st.Body); err != nil {
		b.loops = b.loops[:len(b.loops)-1]
		return err
	}
	b.loops = b.loops[:len(b.loops)-1]
	b.cur.SetTerminator(cfgir.GotoTerm(incrementBlock.Index))

	b.cur = incrementBlock
	if st.Increment != nil {
		if _, err := b.buildExpr(st.Increment); err != nil {
			return err
		}
	}
	b.cur.SetTerminator(cfgir.GotoTerm(headerBlock.Index))

	b.cur = breakBlock
	return nil
}

func (b *builder) buildExpr(e hir.Expr) (cfgir.Operand, error) {
	switch ex := e.(type) {
	case *hir.NumberExpr:
		return b.fn.Constants.InsertNumber(ex.Value), nil

	case *hir.BooleanExpr:
		return b.fn.Constants.InsertBoolean(ex.Value), nil

	case *hir.StringExpr:
		return cfgir.Operand{}, diag.New(diag.CFG, ex.Span,
			"string literals are not yet supported by the bytecode backend")

	case *hir.VariableExpr:
		res, ok := b.prog.Resolution.Get(ex.Id)
		if !ok {
			return cfgir.Operand{}, diag.New(diag.CFG, ex.Span, "internal: unresolved variable")
		}
		if ty, ok := b.prog.Types.Get(ex.Id); ok && ty.Kind == hir.StructType {
			return cfgir.Operand{}, diag.NewWrap(diag.CFG, ex.Span, ErrStructNotSupported,
				"struct-typed variable reference (type %s) is not supported by the bytecode backend", ty)
		}
		return cfgir.Variable(b.slotFor(res.Target)), nil

	case *hir.FunctionExpr:
		res, ok := b.prog.Resolution.Get(ex.Id)
		if !ok {
			return cfgir.Operand{}, diag.New(diag.CFG, ex.Span, "internal: unresolved function")
		}
		idx, ok := b.fnIndex[res.Target]
		if !ok {
			return cfgir.Operand{}, diag.New(diag.CFG, ex.Span, "internal: unknown function")
		}
		return b.fn.Constants.InsertFunction(idx), nil

	case *hir.UnaryExpr:
		operand, err := b.buildExpr(ex.Operand)
		if err != nil {
			return cfgir.Operand{}, err
		}
		dest := cfgir.Variable(b.freshSlot())
		op := cfgir.Neg
		if ex.Op == hir.OpNot {
			op = cfgir.Not
		}
		b.cur.Emit(cfgir.NewUnary(op, dest, operand))
		return dest, nil

	case *hir.BinaryExpr:
		return b.buildBinary(ex)

	case *hir.AssignExpr:
		v, err := b.buildExpr(ex.Right)
		if err != nil {
			return cfgir.Operand{}, err
		}
		left, ok := ex.Left.(*hir.VariableExpr)
		if !ok {
			return cfgir.Operand{}, diag.New(diag.CFG, ex.Span, "internal: assignment target is not a variable")
		}
		res, ok := b.prog.Resolution.Get(left.Id)
		if !ok {
			return cfgir.Operand{}, diag.New(diag.CFG, ex.Span, "internal: unresolved assignment target")
		}
		dest := cfgir.Variable(b.slotFor(res.Target))
		b.cur.Emit(cfgir.NewMove(dest, v))
		return dest, nil

	case *hir.FunctionCallExpr:
		return b.buildCall(ex)

	default:
		return cfgir.Operand{}, diag.New(diag.CFG, token.Span{}, "cfgbuild: unsupported expression %T", e)
	}
}

// buildBinary lowers and/or with short-circuit control flow (branching
// into a shared join block written via Move, per §4.1) and every other
// binary operator as a plain three-address instruction.
func (b *builder) buildBinary(ex *hir.BinaryExpr) (cfgir.Operand, error) {
	if ex.Op == hir.OpAnd || ex.Op == hir.OpOr {
		return b.buildShortCircuit(ex)
	}

	left, err := b.buildExpr(ex.Left)
	if err != nil {
		return cfgir.Operand{}, err
	}
	right, err := b.buildExpr(ex.Right)
	if err != nil {
		return cfgir.Operand{}, err
	}

	op, ok := binaryOp(ex.Op)
	if !ok {
		return cfgir.Operand{}, diag.New(diag.CFG, ex.Span, "internal: unsupported binary operator")
	}

	dest := cfgir.Variable(b.freshSlot())
	b.cur.Emit(cfgir.NewBinary(op, dest, left, right))
	return dest, nil
}

func binaryOp(op hir.BinaryOp) (cfgir.Op, bool) {
	switch op {
	case hir.OpAdd:
		return cfgir.Add, true
	case hir.OpSub:
		return cfgir.Sub, true
	case hir.OpMul:
		return cfgir.Mul, true
	case hir.OpDiv:
		return cfgir.Div, true
	case hir.OpMod:
		return cfgir.Mod, true
	case hir.OpEq:
		return cfgir.Eq, true
	case hir.OpNe:
		return cfgir.Ne, true
	case hir.OpGt:
		return cfgir.Gt, true
	case hir.OpGe:
		return cfgir.Ge, true
	case hir.OpLt:
		return cfgir.Lt, true
	case hir.OpLe:
		return cfgir.Le, true
	default:
		return 0, false
	}
}

// buildShortCircuit lowers `and`/`or` so the right operand is only
// evaluated when its value can change the result: for `and`, the right
// side runs only if the left is true; for `or`, only if the left is
// false. Both paths Move their result into one shared slot.
func (b *builder) buildShortCircuit(ex *hir.BinaryExpr) (cfgir.Operand, error) {
	left, err := b.buildExpr(ex.Left)
	if err != nil {
		return cfgir.Operand{}, err
	}

	dest := cfgir.Variable(b.freshSlot())

	rightBlock := b.fn.NewBlock()
	joinBlock := b.fn.NewBlock()
	shortBlock := b.fn.NewBlock()

	if ex.Op == hir.OpAnd {
		b.cur.SetTerminator(cfgir.BranchTerm(left, rightBlock.Index, shortBlock.Index))
	} else {
		b.cur.SetTerminator(cfgir.BranchTerm(left, shortBlock.Index, rightBlock.Index))
	}

	b.cur = shortBlock
	b.cur.Emit(cfgir.NewMove(dest, left))
	b.cur.SetTerminator(cfgir.GotoTerm(joinBlock.Index))

	b.cur = rightBlock
	right, err := b.buildExpr(ex.Right)
	if err != nil {
		return cfgir.Operand{}, err
	}
	b.cur.Emit(cfgir.NewMove(dest, right))
	b.cur.SetTerminator(cfgir.GotoTerm(joinBlock.Index))

	b.cur = joinBlock
	return dest, nil
}

func (b *builder) buildCall(ex *hir.FunctionCallExpr) (cfgir.Operand, error) {
	callee, err := b.buildExpr(ex.Callee)
	if err != nil {
		return cfgir.Operand{}, err
	}

	args := make([]cfgir.Operand, len(ex.Args))
	for i, a := range ex.Args {
		v, err := b.buildExpr(a)
		if err != nil {
			return cfgir.Operand{}, err
		}
		args[i] = v
	}
	for i, v := range args {
		b.cur.Emit(cfgir.NewMoveArg(cfgir.Variable(i), v))
	}

	dest := cfgir.Variable(b.freshSlot())
	b.cur.Emit(cfgir.NewCall(dest, callee))
	return dest, nil
}
