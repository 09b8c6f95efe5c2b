package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaori-lang/kaori/pkg/lexer"
	"github.com/kaori-lang/kaori/pkg/token"
)

func TestAllScansKeywordsAndOperators(t *testing.T) {
	toks, err := lexer.All(`def main() { x: number = 1 + 2; return; }`)
	require.NoError(t, err)

	var kinds []token.Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, token.KwDef)
	assert.Contains(t, kinds, token.Ident)
	assert.Contains(t, kinds, token.Colon)
	assert.Contains(t, kinds, token.KwNumber)
	assert.Contains(t, kinds, token.Eq)
	assert.Contains(t, kinds, token.Number)
	assert.Contains(t, kinds, token.Plus)
	assert.Contains(t, kinds, token.KwReturn)
	assert.Equal(t, token.EOF, kinds[len(kinds)-1])
}

func TestAllSkipsLineComments(t *testing.T) {
	toks, err := lexer.All("x // a comment\n1")
	require.NoError(t, err)
	require.Len(t, toks, 3) // Ident, Number, EOF
	assert.Equal(t, token.Ident, toks[0].Kind)
	assert.Equal(t, token.Number, toks[1].Kind)
}

func TestAllReportsUnterminatedString(t *testing.T) {
	_, err := lexer.All(`"never closed`)
	require.Error(t, err)
}

func TestAllReportsUnexpectedCharacter(t *testing.T) {
	_, err := lexer.All("@")
	require.Error(t, err)
}

func TestCompoundOperatorsAndArrow(t *testing.T) {
	toks, err := lexer.All("+= -= *= /= %= -> == != >= <=")
	require.NoError(t, err)
	want := []token.Kind{
		token.PlusEq, token.MinusEq, token.StarEq, token.SlashEq, token.PercentEq,
		token.Arrow, token.EqEq, token.NotEq, token.Ge, token.Le, token.EOF,
	}
	require.Len(t, toks, len(want))
	for i, k := range want {
		assert.Equal(t, k, toks[i].Kind, "token %d", i)
	}
}
