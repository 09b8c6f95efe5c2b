// Package token defines the lexical tokens produced by pkg/lexer and
// consumed by pkg/parser.
package token

import "fmt"

// Span locates a lexeme in the original source text.
type Span struct {
	Line   int // 1-based line number
	Column int // 1-based column of the first byte
	Start  int // byte offset of the first byte
	End    int // byte offset one past the last byte
}

// String renders a span as "line:column", used in diagnostics.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Kind identifies the lexical category of a token.
type Kind int

const (
	Invalid Kind = iota
	EOF

	Ident
	Number
	String

	// Keywords
	KwDef
	KwFor
	KwWhile
	KwBreak
	KwContinue
	KwIf
	KwElse
	KwReturn
	KwStruct
	KwPrint
	KwAnd
	KwOr
	KwTrue
	KwFalse
	KwBool
	KwNumber

	// Operators and punctuation
	Plus
	Minus
	Star
	Slash
	Percent
	EqEq
	NotEq
	Gt
	Ge
	Lt
	Le
	Bang
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	PercentEq
	Colon
	Semi
	Comma
	LParen
	RParen
	LBrace
	RBrace
	Arrow
)

var keywords = map[string]Kind{
	"def":      KwDef,
	"for":      KwFor,
	"while":    KwWhile,
	"break":    KwBreak,
	"continue": KwContinue,
	"if":       KwIf,
	"else":     KwElse,
	"return":   KwReturn,
	"struct":   KwStruct,
	"print":    KwPrint,
	"and":      KwAnd,
	"or":       KwOr,
	"true":     KwTrue,
	"false":    KwFalse,
	"bool":     KwBool,
	"number":   KwNumber,
}

// Lookup returns the keyword kind for ident, or (Ident, false) if ident
// is not a reserved word.
func Lookup(ident string) (Kind, bool) {
	if k, ok := keywords[ident]; ok {
		return k, true
	}
	return Ident, false
}

// Token is a single lexical unit with its source span.
type Token struct {
	Kind   Kind
	Lexeme string
	Span   Span
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%s", t.Kind, t.Lexeme, t.Span)
}

var names = map[Kind]string{
	Invalid: "Invalid", EOF: "EOF", Ident: "Ident", Number: "Number", String: "String",
	KwDef: "def", KwFor: "for", KwWhile: "while", KwBreak: "break", KwContinue: "continue",
	KwIf: "if", KwElse: "else", KwReturn: "return", KwStruct: "struct", KwPrint: "print",
	KwAnd: "and", KwOr: "or", KwTrue: "true", KwFalse: "false", KwBool: "bool", KwNumber: "number",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Percent: "%",
	EqEq: "==", NotEq: "!=", Gt: ">", Ge: ">=", Lt: "<", Le: "<=",
	Bang: "!", Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", PercentEq: "%=",
	Colon: ":", Semi: ";", Comma: ",", LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", Arrow: "->",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}
