package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaori-lang/kaori/pkg/hir"
	"github.com/kaori-lang/kaori/pkg/parser"
	"github.com/kaori-lang/kaori/pkg/resolver"
)

func mustResolve(t *testing.T, source string) *hir.Program {
	t.Helper()
	prog, err := parser.Parse(source)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(prog)
	require.NoError(t, err)
	return resolved
}

func TestResolveHoistsMainFirst(t *testing.T) {
	resolved := mustResolve(t, `
		def helper() {}
		def main() { helper(); }
	`)
	fn, ok := resolved.Decls[0].(*hir.FunctionDecl)
	require.True(t, ok)
	assert.Equal(t, "main", fn.Name)
}

func TestResolveForwardReferenceToLaterFunction(t *testing.T) {
	_, err := parser.Parse(`
		def main() { later(); }
		def later() {}
	`)
	require.NoError(t, err)
	resolved := mustResolve(t, `
		def main() { later(); }
		def later() {}
	`)
	main := resolved.Decls[0].(*hir.FunctionDecl)
	call := main.Body.Nodes[0].(*hir.ExpressionStmt).Expr.(*hir.FunctionCallExpr)
	callee := call.Callee.(*hir.FunctionExpr)
	res, ok := resolved.Resolution.Get(callee.Id)
	require.True(t, ok)
	assert.Equal(t, hir.Function, res.Kind)
}

func TestResolveRejectsSameScopeRedeclaration(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			x: number = 1;
			x: number = 2;
		}
	`)
	require.NoError(t, err)
	_, err = resolver.Resolve(prog)
	require.Error(t, err)
}

func TestResolveAllowsShadowingAcrossNestedBlocks(t *testing.T) {
	prog, err := parser.Parse(`
		def main() {
			x: number = 1;
			{
				x: number = 2;
				print(x);
			}
		}
	`)
	require.NoError(t, err)
	_, err = resolver.Resolve(prog)
	require.NoError(t, err)
}

func TestResolveRejectsUndeclaredIdentifier(t *testing.T) {
	prog, err := parser.Parse(`
		def main() { print(missing); }
	`)
	require.NoError(t, err)
	_, err = resolver.Resolve(prog)
	require.Error(t, err)
}

func TestResolveRejectsBreakOutsideLoop(t *testing.T) {
	prog, err := parser.Parse(`
		def main() { break; }
	`)
	require.NoError(t, err)
	_, err = resolver.Resolve(prog)
	require.Error(t, err)
}

func TestResolveRejectsMissingMain(t *testing.T) {
	prog, err := parser.Parse(`
		def helper() {}
	`)
	require.NoError(t, err)
	_, err = resolver.Resolve(prog)
	require.Error(t, err)
}

func TestResolveStructFieldTypes(t *testing.T) {
	resolved := mustResolve(t, `
		struct Point { x: number, y: number }
		def main() {}
	`)
	sd, ok := resolved.Decls[1].(*hir.StructDecl)
	require.True(t, ok)
	require.Len(t, sd.Fields, 2)
	ty, ok := resolved.Types.Get(sd.Fields[0])
	require.True(t, ok)
	assert.Equal(t, hir.NumberType, ty.Kind)
}
