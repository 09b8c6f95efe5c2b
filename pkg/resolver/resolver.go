// Package resolver performs name resolution: it walks an *ast.Program and
// produces a *hir.Program whose Variable/Function/Struct occurrences each
// carry the hir.Id of their declaring site. Scoping follows
// original_source's rule: shadowing across nested blocks is allowed,
// redeclaration within the same block is a name error. See §4.5 of the
// specification.
package resolver

import (
	"github.com/kaori-lang/kaori/internal/diag"
	"github.com/kaori-lang/kaori/pkg/ast"
	"github.com/kaori-lang/kaori/pkg/hir"
	"github.com/kaori-lang/kaori/pkg/token"
)

type symbol struct {
	id   hir.Id
	kind hir.ResolutionKind
}

type scope struct {
	parent *scope
	names  map[string]symbol
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]symbol)}
}

func (s *scope) declare(name string, id hir.Id, kind hir.ResolutionKind, span token.Span) error {
	if _, ok := s.names[name]; ok {
		return diag.New(diag.Name, span, "%q is already declared in this scope", name)
	}
	s.names[name] = symbol{id: id, kind: kind}
	return nil
}

func (s *scope) lookup(name string) (symbol, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.names[name]; ok {
			return sym, true
		}
	}
	return symbol{}, false
}

type resolver struct {
	gen         hir.IDGen
	resolution  *hir.ResolutionTable
	types       *hir.TypeTable // pre-seeded with declared types for decl Ids; typecheck adds expression Ids
	global      *scope
	structs     map[string]*hir.StructDecl
	structTypes map[string]hir.TypeDef
	loopDepth   int
}

func (r *resolver) resolveTypeName(tn ast.TypeName) (hir.TypeDef, error) {
	switch tn.Name {
	case "bool":
		return hir.TypeDef{Kind: hir.BooleanType}, nil
	case "number":
		return hir.TypeDef{Kind: hir.NumberType}, nil
	case "string":
		return hir.TypeDef{Kind: hir.StringType}, nil
	default:
		if ty, ok := r.structTypes[tn.Name]; ok {
			return ty, nil
		}
		return hir.TypeDef{}, diag.New(diag.Name, tn.Span, "unknown type %q", tn.Name)
	}
}

// Resolve resolves prog and returns the HIR program, with main hoisted to
// declaration index 0.
func Resolve(prog *ast.Program) (*hir.Program, error) {
	r := &resolver{
		resolution:  hir.NewResolutionTable(),
		types:       hir.NewTypeTable(),
		global:      newScope(nil),
		structs:     make(map[string]*hir.StructDecl),
		structTypes: make(map[string]hir.TypeDef),
	}

	// Pre-pass: collect every Function/Struct declaration's Id so forward
	// references (calls to functions declared later, or structs used as a
	// field type before their own declaration) resolve.
	type pending struct {
		astDecl ast.Decl
		id      hir.Id
	}
	var order []pending
	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *ast.FunctionDecl:
			id := r.gen.Fresh()
			if err := r.global.declare(decl.Name, id, hir.Function, decl.Span); err != nil {
				return nil, err
			}
			order = append(order, pending{astDecl: decl, id: id})
		case *ast.StructDecl:
			id := r.gen.Fresh()
			if err := r.global.declare(decl.Name, id, hir.Struct, decl.Span); err != nil {
				return nil, err
			}
			r.structTypes[decl.Name] = hir.TypeDef{Kind: hir.StructType, Name: decl.Name}
			order = append(order, pending{astDecl: decl, id: id})
		}
	}

	var mainDecl *hir.FunctionDecl
	var decls []hir.Decl
	for _, item := range order {
		switch decl := item.astDecl.(type) {
		case *ast.StructDecl:
			sd, err := r.resolveStructDecl(decl, item.id)
			if err != nil {
				return nil, err
			}
			r.structs[decl.Name] = sd
			decls = append(decls, sd)
		}
	}
	for _, item := range order {
		switch decl := item.astDecl.(type) {
		case *ast.FunctionDecl:
			fd, err := r.resolveFunctionDecl(decl, item.id)
			if err != nil {
				return nil, err
			}
			if decl.Name == "main" {
				mainDecl = fd
				continue
			}
			decls = append(decls, fd)
		}
	}
	if mainDecl == nil {
		return nil, diag.New(diag.Name, token.Span{Line: 1, Column: 1}, "program has no 'main' function")
	}
	decls = append([]hir.Decl{mainDecl}, decls...)

	return &hir.Program{Decls: decls, Resolution: r.resolution, Types: r.types}, nil
}

func (r *resolver) resolveStructDecl(decl *ast.StructDecl, id hir.Id) (*hir.StructDecl, error) {
	sc := newScope(nil)
	var fieldIds []hir.Id
	var fieldDefs []hir.FieldDef
	for _, f := range decl.Fields {
		fid := r.gen.Fresh()
		if err := sc.declare(f.Name, fid, hir.Variable, f.Span); err != nil {
			return nil, err
		}
		ft, err := r.resolveTypeName(f.Type)
		if err != nil {
			return nil, err
		}
		r.types.Set(fid, ft)
		fieldIds = append(fieldIds, fid)
		fieldDefs = append(fieldDefs, hir.FieldDef{Name: f.Name, Type: ft})
	}
	r.structTypes[decl.Name] = hir.TypeDef{Kind: hir.StructType, Name: decl.Name, Fields: fieldDefs}
	return &hir.StructDecl{Id: id, Name: decl.Name, Fields: fieldIds, Span: decl.Span}, nil
}

func (r *resolver) resolveFunctionDecl(decl *ast.FunctionDecl, id hir.Id) (*hir.FunctionDecl, error) {
	fnScope := newScope(r.global)
	var paramIds []hir.Id
	for _, p := range decl.Params {
		pid := r.gen.Fresh()
		if err := fnScope.declare(p.Name, pid, hir.Variable, p.Span); err != nil {
			return nil, err
		}
		pt, err := r.resolveTypeName(p.Type)
		if err != nil {
			return nil, err
		}
		r.types.Set(pid, pt)
		paramIds = append(paramIds, pid)
	}
	retTy := hir.TypeDef{Kind: hir.VoidType}
	if decl.RetType != nil {
		var err error
		retTy, err = r.resolveTypeName(*decl.RetType)
		if err != nil {
			return nil, err
		}
	}
	body, err := r.resolveBlock(decl.Body, fnScope)
	if err != nil {
		return nil, err
	}
	return &hir.FunctionDecl{
		Id:         id,
		Name:       decl.Name,
		Parameters: paramIds,
		Body:       body,
		ReturnTy:   retTy,
		Span:       decl.Span,
	}, nil
}

func (r *resolver) resolveBlock(b *ast.Block, parent *scope) (*hir.Block, error) {
	sc := newScope(parent)
	var out []hir.Stmt
	for _, s := range b.Stmts {
		hs, err := r.resolveStmt(s, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, hs)
	}
	return &hir.Block{Nodes: out, Span: b.Span}, nil
}

func (r *resolver) resolveStmt(s ast.Stmt, sc *scope) (hir.Stmt, error) {
	switch st := s.(type) {
	case *ast.LocalDecl:
		expr, err := r.resolveExpr(st.Init, sc)
		if err != nil {
			return nil, err
		}
		id := r.gen.Fresh()
		if err := sc.declare(st.Name, id, hir.Variable, st.Span); err != nil {
			return nil, err
		}
		declTy, err := r.resolveTypeName(st.Type)
		if err != nil {
			return nil, err
		}
		r.types.Set(id, declTy)
		r.resolution.Set(id, id, hir.Variable)
		return &hir.ExpressionStmt{
			Expr: &hir.AssignExpr{Id: r.gen.Fresh(), Left: &hir.VariableExpr{Id: id, Span: st.Span}, Right: expr, Span: st.Span},
			Span: st.Span,
		}, nil
	case *ast.PrintStmt:
		v, err := r.resolveExpr(st.Value, sc)
		if err != nil {
			return nil, err
		}
		return &hir.PrintStmt{Value: v, Span: st.Span}, nil
	case *ast.Block:
		return r.resolveBlock(st, sc)
	case *ast.IfStmt:
		cond, err := r.resolveExpr(st.Cond, sc)
		if err != nil {
			return nil, err
		}
		then, err := r.resolveBlock(st.Then, sc)
		if err != nil {
			return nil, err
		}
		var elseBlock *hir.Block
		if st.Else != nil {
			switch e := st.Else.(type) {
			case *ast.Block:
				elseBlock, err = r.resolveBlock(e, sc)
			case *ast.IfStmt:
				var nested hir.Stmt
				nested, err = r.resolveStmt(e, sc)
				if err == nil {
					elseBlock = &hir.Block{Nodes: []hir.Stmt{nested}, Span: e.Span}
				}
			}
			if err != nil {
				return nil, err
			}
		}
		return &hir.BranchStmt{Cond: cond, Then: then, Else: elseBlock, Span: st.Span}, nil
	case *ast.WhileStmt:
		cond, err := r.resolveExpr(st.Cond, sc)
		if err != nil {
			return nil, err
		}
		r.loopDepth++
		body, err := r.resolveBlock(st.Body, sc)
		r.loopDepth--
		if err != nil {
			return nil, err
		}
		return &hir.LoopStmt{Cond: cond, Body: body, Span: st.Span}, nil
	case *ast.ForStmt:
		forScope := newScope(sc)
		initExpr, err := r.resolveExpr(st.Init.Init, forScope)
		if err != nil {
			return nil, err
		}
		initId := r.gen.Fresh()
		if err := forScope.declare(st.Init.Name, initId, hir.Variable, st.Init.Span); err != nil {
			return nil, err
		}
		initDeclTy, err := r.resolveTypeName(st.Init.Type)
		if err != nil {
			return nil, err
		}
		r.types.Set(initId, initDeclTy)
		r.resolution.Set(initId, initId, hir.Variable)
		initStmt := &hir.ExpressionStmt{
			Expr: &hir.AssignExpr{Id: r.gen.Fresh(), Left: &hir.VariableExpr{Id: initId, Span: st.Init.Span}, Right: initExpr, Span: st.Init.Span},
			Span: st.Init.Span,
		}
		cond, err := r.resolveExpr(st.Cond, forScope)
		if err != nil {
			return nil, err
		}
		r.loopDepth++
		body, err := r.resolveBlock(st.Body, forScope)
		if err != nil {
			r.loopDepth--
			return nil, err
		}
		increment, err := r.resolveExpr(st.Increment, forScope)
		r.loopDepth--
		if err != nil {
			return nil, err
		}
		return &hir.LoopStmt{Init: initStmt, Cond: cond, Body: body, Increment: increment, Span: st.Span}, nil
	case *ast.BreakStmt:
		if r.loopDepth == 0 {
			return nil, diag.New(diag.Name, st.Span, "'break' used outside of a loop")
		}
		return &hir.BreakStmt{Span: st.Span}, nil
	case *ast.ContinueStmt:
		if r.loopDepth == 0 {
			return nil, diag.New(diag.Name, st.Span, "'continue' used outside of a loop")
		}
		return &hir.ContinueStmt{Span: st.Span}, nil
	case *ast.ReturnStmt:
		if st.Value == nil {
			return &hir.ReturnStmt{Span: st.Span}, nil
		}
		v, err := r.resolveExpr(st.Value, sc)
		if err != nil {
			return nil, err
		}
		return &hir.ReturnStmt{Expr: v, Span: st.Span}, nil
	case *ast.ExprStmt:
		v, err := r.resolveExpr(st.Value, sc)
		if err != nil {
			return nil, err
		}
		return &hir.ExpressionStmt{Expr: v, Span: st.Span}, nil
	default:
		return nil, diag.New(diag.Name, token.Span{}, "unsupported statement kind %T", s)
	}
}

func (r *resolver) resolveExpr(e ast.Expr, sc *scope) (hir.Expr, error) {
	switch ex := e.(type) {
	case *ast.NumberExpr:
		return &hir.NumberExpr{Id: r.gen.Fresh(), Value: ex.Value, Span: ex.Span}, nil
	case *ast.BoolExpr:
		return &hir.BooleanExpr{Id: r.gen.Fresh(), Value: ex.Value, Span: ex.Span}, nil
	case *ast.StringExpr:
		return &hir.StringExpr{Id: r.gen.Fresh(), Value: ex.Value, Span: ex.Span}, nil
	case *ast.IdentExpr:
		sym, ok := sc.lookup(ex.Name)
		if !ok {
			return nil, diag.New(diag.Name, ex.Span, "undeclared identifier %q", ex.Name)
		}
		id := r.gen.Fresh()
		r.resolution.Set(id, sym.id, sym.kind)
		if sym.kind == hir.Function {
			return &hir.FunctionExpr{Id: id, Span: ex.Span}, nil
		}
		if sym.kind == hir.Struct {
			return nil, diag.New(diag.Name, ex.Span, "%q names a type, not a value", ex.Name)
		}
		return &hir.VariableExpr{Id: id, Span: ex.Span}, nil
	case *ast.UnaryExpr:
		operand, err := r.resolveExpr(ex.Operand, sc)
		if err != nil {
			return nil, err
		}
		return &hir.UnaryExpr{Id: r.gen.Fresh(), Op: hir.UnaryOp(ex.Op), Operand: operand, Span: ex.Span}, nil
	case *ast.BinaryExpr:
		left, err := r.resolveExpr(ex.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := r.resolveExpr(ex.Right, sc)
		if err != nil {
			return nil, err
		}
		return &hir.BinaryExpr{Id: r.gen.Fresh(), Op: hir.BinaryOp(ex.Op), Left: left, Right: right, Span: ex.Span}, nil
	case *ast.AssignExpr:
		ident, ok := ex.Target.(*ast.IdentExpr)
		if !ok {
			return nil, diag.New(diag.Name, ex.Span, "left-hand side of assignment must be a variable")
		}
		sym, ok := sc.lookup(ident.Name)
		if !ok {
			return nil, diag.New(diag.Name, ident.Span, "undeclared identifier %q", ident.Name)
		}
		if sym.kind != hir.Variable {
			return nil, diag.New(diag.Name, ident.Span, "%q is not a variable", ident.Name)
		}
		leftId := r.gen.Fresh()
		r.resolution.Set(leftId, sym.id, sym.kind)
		right, err := r.resolveExpr(ex.Value, sc)
		if err != nil {
			return nil, err
		}
		return &hir.AssignExpr{
			Id:    r.gen.Fresh(),
			Left:  &hir.VariableExpr{Id: leftId, Span: ident.Span},
			Right: right,
			Span:  ex.Span,
		}, nil
	case *ast.CallExpr:
		callee, err := r.resolveExpr(ex.Callee, sc)
		if err != nil {
			return nil, err
		}
		args := make([]hir.Expr, 0, len(ex.Args))
		for _, a := range ex.Args {
			ra, err := r.resolveExpr(a, sc)
			if err != nil {
				return nil, err
			}
			args = append(args, ra)
		}
		return &hir.FunctionCallExpr{Id: r.gen.Fresh(), Callee: callee, Args: args, Span: ex.Span}, nil
	default:
		return nil, diag.New(diag.Name, token.Span{}, "unsupported expression kind %T", e)
	}
}
