// Package typecheck assigns a concrete hir.TypeDef to every expression in
// a resolved *hir.Program, validating operator operand types, assignment
// compatibility, condition types, call arity/type, and presence of a
// return on every exit path of non-void functions. See §4.5.
package typecheck

import (
	"github.com/kaori-lang/kaori/internal/diag"
	"github.com/kaori-lang/kaori/pkg/hir"
	"github.com/kaori-lang/kaori/pkg/token"
)

type checker struct {
	prog *hir.Program
	fns  map[hir.Id]*hir.FunctionDecl
}

// Check type-checks prog in place, filling prog.Types with an entry for
// every expression Id (declared-type entries for variable/parameter/field
// Ids are already present, written by the resolver).
func Check(prog *hir.Program) error {
	c := &checker{prog: prog, fns: make(map[hir.Id]*hir.FunctionDecl)}
	for _, d := range prog.Decls {
		if fn, ok := d.(*hir.FunctionDecl); ok {
			c.fns[fn.Id] = fn
		}
	}
	for _, d := range prog.Decls {
		fn, ok := d.(*hir.FunctionDecl)
		if !ok {
			continue
		}
		if err := c.checkFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

func void() hir.TypeDef    { return hir.TypeDef{Kind: hir.VoidType} }
func boolean() hir.TypeDef { return hir.TypeDef{Kind: hir.BooleanType} }
func number() hir.TypeDef  { return hir.TypeDef{Kind: hir.NumberType} }

func (c *checker) checkFunction(fn *hir.FunctionDecl) error {
	if err := c.checkBlock(fn.Body); err != nil {
		return err
	}
	if fn.ReturnTy.Kind != hir.VoidType && !blockReturnsOnAllPaths(fn.Body) {
		return diag.New(diag.Type, fn.Span,
			"function %q must return a value of type %s on every path", fn.Name, fn.ReturnTy)
	}
	return nil
}

// blockReturnsOnAllPaths is a structural, HIR-level approximation of "does
// every path out of this block end in return": it recognises a trailing
// Return, or an if/else where both arms return. Anything subtler (e.g. an
// infinite loop whose only exit is return) is not recognised, so Check
// reports such a function as a type error.
func blockReturnsOnAllPaths(b *hir.Block) bool {
	if len(b.Nodes) == 0 {
		return false
	}
	last := b.Nodes[len(b.Nodes)-1]
	return stmtReturnsOnAllPaths(last)
}

func stmtReturnsOnAllPaths(s hir.Stmt) bool {
	switch st := s.(type) {
	case *hir.ReturnStmt:
		return true
	case *hir.Block:
		return blockReturnsOnAllPaths(st)
	case *hir.BranchStmt:
		if st.Else == nil {
			return false
		}
		return blockReturnsOnAllPaths(st.Then) && blockReturnsOnAllPaths(st.Else)
	default:
		return false
	}
}

func (c *checker) checkBlock(b *hir.Block) error {
	for _, s := range b.Nodes {
		if err := c.checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkStmt(s hir.Stmt) error {
	switch st := s.(type) {
	case *hir.ExpressionStmt:
		_, err := c.checkExpr(st.Expr)
		return err
	case *hir.PrintStmt:
		_, err := c.checkExpr(st.Value)
		return err
	case *hir.Block:
		return c.checkBlock(st)
	case *hir.BranchStmt:
		ct, err := c.checkExpr(st.Cond)
		if err != nil {
			return err
		}
		if ct.Kind != hir.BooleanType {
			return diag.New(diag.Type, st.Span, "if condition must be bool, found %s", ct)
		}
		if err := c.checkBlock(st.Then); err != nil {
			return err
		}
		if st.Else != nil {
			return c.checkBlock(st.Else)
		}
		return nil
	case *hir.LoopStmt:
		if st.Init != nil {
			if err := c.checkStmt(st.Init); err != nil {
				return err
			}
		}
		ct, err := c.checkExpr(st.Cond)
		if err != nil {
			return err
		}
		if ct.Kind != hir.BooleanType {
			return diag.New(diag.Type, st.Span, "loop condition must be bool, found %s", ct)
		}
		if err := c.checkBlock(st.Body); err != nil {
			return err
		}
		if st.Increment != nil {
			if _, err := c.checkExpr(st.Increment); err != nil {
				return err
			}
		}
		return nil
	case *hir.BreakStmt, *hir.ContinueStmt:
		return nil
	case *hir.ReturnStmt:
		if st.Expr != nil {
			_, err := c.checkExpr(st.Expr)
			return err
		}
		return nil
	default:
		return diag.New(diag.Type, token.Span{}, "unsupported statement kind %T", s)
	}
}

func (c *checker) checkExpr(e hir.Expr) (hir.TypeDef, error) {
	switch ex := e.(type) {
	case *hir.NumberExpr:
		c.prog.Types.Set(ex.Id, number())
		return number(), nil
	case *hir.BooleanExpr:
		c.prog.Types.Set(ex.Id, boolean())
		return boolean(), nil
	case *hir.StringExpr:
		ty := hir.TypeDef{Kind: hir.StringType}
		c.prog.Types.Set(ex.Id, ty)
		return ty, nil
	case *hir.VariableExpr:
		res, ok := c.prog.Resolution.Get(ex.Id)
		if !ok {
			return hir.TypeDef{}, diag.New(diag.Name, ex.Span, "internal: unresolved variable reference")
		}
		ty, ok := c.prog.Types.Get(res.Target)
		if !ok {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "internal: missing declared type for variable")
		}
		c.prog.Types.Set(ex.Id, ty)
		return ty, nil
	case *hir.FunctionExpr:
		res, ok := c.prog.Resolution.Get(ex.Id)
		if !ok {
			return hir.TypeDef{}, diag.New(diag.Name, ex.Span, "internal: unresolved function reference")
		}
		fn, ok := c.fns[res.Target]
		if !ok {
			return hir.TypeDef{}, diag.New(diag.Name, ex.Span, "internal: function declaration missing")
		}
		params := make([]hir.TypeDef, 0, len(fn.Parameters))
		for _, pid := range fn.Parameters {
			pt, _ := c.prog.Types.Get(pid)
			params = append(params, pt)
		}
		ty := hir.TypeDef{Kind: hir.FunctionType, Params: params, Ret: &fn.ReturnTy}
		c.prog.Types.Set(ex.Id, ty)
		return ty, nil
	case *hir.UnaryExpr:
		operand, err := c.checkExpr(ex.Operand)
		if err != nil {
			return hir.TypeDef{}, err
		}
		var result hir.TypeDef
		switch ex.Op {
		case hir.OpNeg:
			if operand.Kind != hir.NumberType {
				return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "unary '-' requires number, found %s", operand)
			}
			result = number()
		case hir.OpNot:
			if operand.Kind != hir.BooleanType {
				return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "unary '!' requires bool, found %s", operand)
			}
			result = boolean()
		}
		c.prog.Types.Set(ex.Id, result)
		return result, nil
	case *hir.BinaryExpr:
		return c.checkBinary(ex)
	case *hir.AssignExpr:
		leftTy, err := c.checkExpr(ex.Left)
		if err != nil {
			return hir.TypeDef{}, err
		}
		rightTy, err := c.checkExpr(ex.Right)
		if err != nil {
			return hir.TypeDef{}, err
		}
		if !leftTy.Equal(rightTy) {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span,
				"cannot assign %s to variable of type %s", rightTy, leftTy)
		}
		c.prog.Types.Set(ex.Id, leftTy)
		return leftTy, nil
	case *hir.FunctionCallExpr:
		calleeTy, err := c.checkExpr(ex.Callee)
		if err != nil {
			return hir.TypeDef{}, err
		}
		if calleeTy.Kind != hir.FunctionType {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "cannot call a value of type %s", calleeTy)
		}
		if len(ex.Args) != len(calleeTy.Params) {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span,
				"wrong number of arguments: expected %d, found %d", len(calleeTy.Params), len(ex.Args))
		}
		for i, arg := range ex.Args {
			at, err := c.checkExpr(arg)
			if err != nil {
				return hir.TypeDef{}, err
			}
			if !at.Equal(calleeTy.Params[i]) {
				return hir.TypeDef{}, diag.New(diag.Type, exprSpan(arg),
					"argument %d: expected %s, found %s", i+1, calleeTy.Params[i], at)
			}
		}
		c.prog.Types.Set(ex.Id, *calleeTy.Ret)
		return *calleeTy.Ret, nil
	default:
		return hir.TypeDef{}, diag.New(diag.Type, token.Span{}, "unsupported expression kind %T", e)
	}
}

// exprSpan extracts the source span carried by any hir.Expr variant.
func exprSpan(e hir.Expr) token.Span {
	switch ex := e.(type) {
	case *hir.BinaryExpr:
		return ex.Span
	case *hir.UnaryExpr:
		return ex.Span
	case *hir.AssignExpr:
		return ex.Span
	case *hir.VariableExpr:
		return ex.Span
	case *hir.FunctionExpr:
		return ex.Span
	case *hir.NumberExpr:
		return ex.Span
	case *hir.BooleanExpr:
		return ex.Span
	case *hir.StringExpr:
		return ex.Span
	case *hir.FunctionCallExpr:
		return ex.Span
	default:
		return token.Span{}
	}
}

func (c *checker) checkBinary(ex *hir.BinaryExpr) (hir.TypeDef, error) {
	left, err := c.checkExpr(ex.Left)
	if err != nil {
		return hir.TypeDef{}, err
	}
	right, err := c.checkExpr(ex.Right)
	if err != nil {
		return hir.TypeDef{}, err
	}
	var result hir.TypeDef
	switch ex.Op {
	case hir.OpAdd, hir.OpSub, hir.OpMul, hir.OpDiv, hir.OpMod:
		if left.Kind != hir.NumberType || right.Kind != hir.NumberType {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "arithmetic requires two numbers, found %s and %s", left, right)
		}
		result = number()
	case hir.OpGt, hir.OpGe, hir.OpLt, hir.OpLe:
		if left.Kind != hir.NumberType || right.Kind != hir.NumberType {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "comparison requires two numbers, found %s and %s", left, right)
		}
		result = boolean()
	case hir.OpEq, hir.OpNe:
		if !left.Equal(right) {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "cannot compare %s with %s", left, right)
		}
		result = boolean()
	case hir.OpAnd, hir.OpOr:
		if left.Kind != hir.BooleanType || right.Kind != hir.BooleanType {
			return hir.TypeDef{}, diag.New(diag.Type, ex.Span, "logical operator requires two bools, found %s and %s", left, right)
		}
		result = boolean()
	}
	c.prog.Types.Set(ex.Id, result)
	return result, nil
}

