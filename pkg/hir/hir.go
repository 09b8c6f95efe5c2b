// Package hir defines the resolved, typed intermediate representation
// that pkg/resolver and pkg/typecheck produce and that pkg/cfgbuild
// consumes. See §3.1 of the specification.
package hir

import "github.com/kaori-lang/kaori/pkg/token"

// Id is a dense integer identity, unique per declaration/expression/type
// node within one compilation. Minted by an IDGen rather than a process
// global, per the specification's design notes.
type Id uint32

// IDGen mints fresh, monotonically increasing Ids scoped to a single
// compilation.
type IDGen struct{ next Id }

func (g *IDGen) Fresh() Id {
	id := g.next
	g.next++
	return id
}

// ResolutionKind tags what an expression-site Id resolves to.
type ResolutionKind int

const (
	Variable ResolutionKind = iota
	Function
	Struct
)

// ResolutionTable maps an expression-site Id to the Id of its declaring
// site, tagged with what kind of thing it resolves to.
type ResolutionTable struct {
	entries map[Id]Resolution
}

type Resolution struct {
	Target Id
	Kind   ResolutionKind
}

func NewResolutionTable() *ResolutionTable {
	return &ResolutionTable{entries: make(map[Id]Resolution)}
}

func (t *ResolutionTable) Set(site Id, target Id, kind ResolutionKind) {
	t.entries[site] = Resolution{Target: target, Kind: kind}
}

func (t *ResolutionTable) Get(site Id) (Resolution, bool) {
	r, ok := t.entries[site]
	return r, ok
}

// TypeTable maps every declaration/expression Id to its TypeDef.
type TypeTable struct {
	entries map[Id]TypeDef
}

func NewTypeTable() *TypeTable { return &TypeTable{entries: make(map[Id]TypeDef)} }

func (t *TypeTable) Set(id Id, ty TypeDef) { t.entries[id] = ty }

func (t *TypeTable) Get(id Id) (TypeDef, bool) {
	ty, ok := t.entries[id]
	return ty, ok
}

func (t *TypeTable) MustGet(id Id) TypeDef {
	ty, ok := t.entries[id]
	if !ok {
		panic("hir: type table missing entry")
	}
	return ty
}

// TypeDef is the type assigned to a declaration or expression.
type TypeDef struct {
	Kind   TypeKind
	Params []TypeDef // Function only
	Ret    *TypeDef  // Function only
	Fields []FieldDef
	Name   string // Struct name, for diagnostics
}

type FieldDef struct {
	Name string
	Type TypeDef
}

type TypeKind int

const (
	Invalid TypeKind = iota
	BooleanType
	NumberType
	StringType
	VoidType
	FunctionType
	StructType
)

func (t TypeDef) String() string {
	switch t.Kind {
	case BooleanType:
		return "bool"
	case NumberType:
		return "number"
	case StringType:
		return "string"
	case VoidType:
		return "void"
	case FunctionType:
		return "function"
	case StructType:
		return "struct " + t.Name
	default:
		return "invalid"
	}
}

func (t TypeDef) Equal(o TypeDef) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == StructType {
		return t.Name == o.Name
	}
	return true
}

// Decl is a top-level or local declaration.
type Decl interface{ declNode() }

type VariableDecl struct {
	Id    Id
	Name  string
	Right Expr
	Span  token.Span
}

type FunctionDecl struct {
	Id         Id
	Name       string
	Parameters []Id
	Body       *Block
	ReturnTy   TypeDef
	Span       token.Span
}

type ParameterDecl struct {
	Id   Id
	Name string
	Span token.Span
}

type StructDecl struct {
	Id     Id
	Name   string
	Fields []Id
	Span   token.Span
}

type FieldDecl struct {
	Id   Id
	Name string
	Span token.Span
}

func (*VariableDecl) declNode()  {}
func (*FunctionDecl) declNode()  {}
func (*ParameterDecl) declNode() {}
func (*StructDecl) declNode()    {}
func (*FieldDecl) declNode()     {}

// Stmt is a resolved, typed statement.
type Stmt interface{ stmtNode() }

type ExpressionStmt struct {
	Expr Expr
	Span token.Span
}

type PrintStmt struct {
	Value Expr
	Span  token.Span
}

type Block struct {
	Nodes []Stmt
	Span  token.Span
}

type BranchStmt struct {
	Cond Expr
	Then *Block
	Else *Block // nil when there is no else branch
	Span token.Span
}

type LoopStmt struct {
	Init      Stmt // *VariableDecl wrapped in ExpressionStmt-like node, or nil
	Cond      Expr
	Body      *Block
	Increment Expr // nil when absent
	Span      token.Span
}

type BreakStmt struct{ Span token.Span }
type ContinueStmt struct{ Span token.Span }

type ReturnStmt struct {
	Expr Expr // nil for void return
	Span token.Span
}

func (*ExpressionStmt) stmtNode() {}
func (*PrintStmt) stmtNode()      {}
func (*Block) stmtNode()          {}
func (*BranchStmt) stmtNode()     {}
func (*LoopStmt) stmtNode()       {}
func (*BreakStmt) stmtNode()      {}
func (*ContinueStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode()     {}

// Expr is a resolved, typed expression. Every Expr carries the Id used
// to look its TypeDef up in the TypeTable.
type Expr interface {
	exprNode()
	ExprId() Id
}

type BinaryExpr struct {
	Id    Id
	Op    BinaryOp
	Left  Expr
	Right Expr
	Span  token.Span
}

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
)

type UnaryExpr struct {
	Id      Id
	Op      UnaryOp
	Operand Expr
	Span    token.Span
}

type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

type AssignExpr struct {
	Id    Id
	Left  Expr // a *VariableExpr
	Right Expr
	Span  token.Span
}

// VariableExpr references a declaration resolved via the ResolutionTable.
type VariableExpr struct {
	Id   Id // this expression site's own Id
	Span token.Span
}

// FunctionExpr names a function as a first-class value site (used before
// a call, or when a function is passed/assigned).
type FunctionExpr struct {
	Id   Id
	Span token.Span
}

type NumberExpr struct {
	Id    Id
	Value float64
	Span  token.Span
}

type BooleanExpr struct {
	Id    Id
	Value bool
	Span  token.Span
}

type StringExpr struct {
	Id    Id
	Value string
	Span  token.Span
}

type FunctionCallExpr struct {
	Id     Id
	Callee Expr
	Args   []Expr
	Span   token.Span
}

func (e *BinaryExpr) exprNode()       {}
func (e *UnaryExpr) exprNode()        {}
func (e *AssignExpr) exprNode()       {}
func (e *VariableExpr) exprNode()     {}
func (e *FunctionExpr) exprNode()     {}
func (e *NumberExpr) exprNode()       {}
func (e *BooleanExpr) exprNode()      {}
func (e *StringExpr) exprNode()       {}
func (e *FunctionCallExpr) exprNode() {}

func (e *BinaryExpr) ExprId() Id       { return e.Id }
func (e *UnaryExpr) ExprId() Id        { return e.Id }
func (e *AssignExpr) ExprId() Id       { return e.Id }
func (e *VariableExpr) ExprId() Id     { return e.Id }
func (e *FunctionExpr) ExprId() Id     { return e.Id }
func (e *NumberExpr) ExprId() Id       { return e.Id }
func (e *BooleanExpr) ExprId() Id      { return e.Id }
func (e *StringExpr) ExprId() Id       { return e.Id }
func (e *FunctionCallExpr) ExprId() Id { return e.Id }

// Program is the root of the HIR: main at index 0, then every struct
// declaration, then every other function, each group in source order.
type Program struct {
	Decls      []Decl
	Resolution *ResolutionTable
	Types      *TypeTable
}
