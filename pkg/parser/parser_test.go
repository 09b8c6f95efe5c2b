package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaori-lang/kaori/pkg/ast"
	"github.com/kaori-lang/kaori/pkg/parser"
)

func TestParseSimpleFunction(t *testing.T) {
	prog, err := parser.Parse(`
		def add(a: number, b: number) -> number {
			return a + b;
		}
	`)
	require.NoError(t, err)
	require.Len(t, prog.Decls, 1)

	fn, ok := prog.Decls[0].(*ast.FunctionDecl)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "a", fn.Params[0].Name)
	require.NotNil(t, fn.RetType)
	assert.Equal(t, "number", fn.RetType.Name)
	require.Len(t, fn.Body.Stmts, 1)
	_, ok = fn.Body.Stmts[0].(*ast.ReturnStmt)
	assert.True(t, ok)
}

func TestParseLocalDeclVsAssignment(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			x: number = 1;
			x = 2;
		}
	`)
	require.NoError(t, err)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	require.Len(t, fn.Body.Stmts, 2)

	_, isDecl := fn.Body.Stmts[0].(*ast.LocalDecl)
	assert.True(t, isDecl)

	exprStmt, isExpr := fn.Body.Stmts[1].(*ast.ExprStmt)
	require.True(t, isExpr)
	_, isAssign := exprStmt.Value.(*ast.AssignExpr)
	assert.True(t, isAssign)
}

func TestParseOperatorPrecedence(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			print(1 + 2 * 3);
		}
	`)
	require.NoError(t, err)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	stmt := fn.Body.Stmts[0].(*ast.PrintStmt)
	bin, ok := stmt.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.Add, bin.Op)

	rhs, ok := bin.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.Mul, rhs.Op)
}

func TestParseAndOrKeywords(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			print(true and false or true);
		}
	`)
	require.NoError(t, err)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	stmt := fn.Body.Stmts[0].(*ast.PrintStmt)
	top, ok := stmt.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.Or, top.Op)

	left, ok := top.Left.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.And, left.Op)
}

func TestParseIfElseIfChain(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			if true {
				print(1);
			} else if false {
				print(2);
			} else {
				print(3);
			}
		}
	`)
	require.NoError(t, err)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	ifStmt := fn.Body.Stmts[0].(*ast.IfStmt)
	elseIf, ok := ifStmt.Else.(*ast.IfStmt)
	require.True(t, ok)
	_, ok = elseIf.Else.(*ast.Block)
	assert.True(t, ok)
}

func TestParseForLoop(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			for i: number = 0; i < 10; i = i + 1 {
				print(i);
			}
		}
	`)
	require.NoError(t, err)
	fn := prog.Decls[0].(*ast.FunctionDecl)
	forStmt, ok := fn.Body.Stmts[0].(*ast.ForStmt)
	require.True(t, ok)
	assert.Equal(t, "i", forStmt.Init.Name)
}

func TestParseRejectsMissingSemicolon(t *testing.T) {
	_, err := parser.Parse(`
		def main() {
			x: number = 1
		}
	`)
	require.Error(t, err)
}

func TestParseStructDecl(t *testing.T) {
	prog, err := parser.Parse(`
		struct Point {
			x: number,
			y: number
		}
		def main() {}
	`)
	require.NoError(t, err)
	require.Len(t, prog.Decls, 2)
	sd, ok := prog.Decls[0].(*ast.StructDecl)
	require.True(t, ok)
	assert.Equal(t, "Point", sd.Name)
	require.Len(t, sd.Fields, 2)
}
