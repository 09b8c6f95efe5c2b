// Package parser implements the recursive-descent parser for Kaori,
// turning a token stream into an *ast.Program.
package parser

import (
	"strconv"

	"github.com/kaori-lang/kaori/internal/diag"
	"github.com/kaori-lang/kaori/pkg/ast"
	"github.com/kaori-lang/kaori/pkg/lexer"
	"github.com/kaori-lang/kaori/pkg/token"
)

// Parse lexes and parses source into an *ast.Program, stopping at the
// first lex or parse error.
func Parse(source string) (*ast.Program, error) {
	toks, err := lexer.All(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []token.Token
	pos  int
}

func (p *parser) cur() token.Token  { return p.toks[p.pos] }
func (p *parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, diag.New(diag.Parse, p.cur().Span,
			"expected %s but found %s", k, p.cur().Kind)
	}
	return p.advance(), nil
}

func (p *parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.at(token.EOF) {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, decl)
	}
	return prog, nil
}

func (p *parser) parseDecl() (ast.Decl, error) {
	switch p.cur().Kind {
	case token.KwDef:
		return p.parseFunctionDecl()
	case token.KwStruct:
		return p.parseStructDecl()
	default:
		return nil, diag.New(diag.Parse, p.cur().Span, "expected 'def' or 'struct', found %s", p.cur().Kind)
	}
}

func (p *parser) parseType() (ast.TypeName, error) {
	t := p.cur()
	switch t.Kind {
	case token.KwBool, token.KwNumber, token.Ident:
		p.advance()
		return ast.TypeName{Name: t.Lexeme, Span: t.Span}, nil
	default:
		return ast.TypeName{}, diag.New(diag.Parse, t.Span, "expected type name, found %s", t.Kind)
	}
}

func (p *parser) parseFunctionDecl() (*ast.FunctionDecl, error) {
	start := p.cur().Span
	if _, err := p.expect(token.KwDef); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.at(token.RParen) {
		pname, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		ptype, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: pname.Lexeme, Type: ptype, Span: pname.Span})
		if p.at(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	var ret *ast.TypeName
	if p.at(token.Arrow) {
		p.advance()
		rt, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ret = &rt
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{Name: name.Lexeme, Params: params, RetType: ret, Body: body, Span: start}, nil
}

func (p *parser) parseStructDecl() (*ast.StructDecl, error) {
	start := p.cur().Span
	if _, err := p.expect(token.KwStruct); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var fields []ast.Field
	for !p.at(token.RBrace) {
		fname, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		ftype, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.Field{Name: fname.Lexeme, Type: ftype, Span: fname.Span})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.StructDecl{Name: name.Lexeme, Fields: fields, Span: start}, nil
}

func (p *parser) parseBlock() (*ast.Block, error) {
	start := p.cur().Span
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.at(token.RBrace) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.Block{Stmts: stmts, Span: start}, nil
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	switch p.cur().Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.KwPrint:
		return p.parsePrint()
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwBreak:
		t := p.advance()
		if _, err := p.expect(token.Semi); err != nil {
			return nil, err
		}
		return &ast.BreakStmt{Span: t.Span}, nil
	case token.KwContinue:
		t := p.advance()
		if _, err := p.expect(token.Semi); err != nil {
			return nil, err
		}
		return &ast.ContinueStmt{Span: t.Span}, nil
	case token.KwReturn:
		return p.parseReturn()
	case token.Ident:
		if p.peekIsLocalDecl() {
			return p.parseLocalDecl()
		}
		return p.parseExprStmt()
	default:
		return p.parseExprStmt()
	}
}

// peekIsLocalDecl disambiguates `ident : type = expr ;` from an
// expression statement starting with an identifier (e.g. an assignment
// or call).
func (p *parser) peekIsLocalDecl() bool {
	return p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == token.Colon
}

func (p *parser) parseLocalDecl() (*ast.LocalDecl, error) {
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	ty, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Eq); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi); err != nil {
		return nil, err
	}
	return &ast.LocalDecl{Name: name.Lexeme, Type: ty, Init: value, Span: name.Span}, nil
}

func (p *parser) parsePrint() (*ast.PrintStmt, error) {
	start := p.advance().Span
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi); err != nil {
		return nil, err
	}
	return &ast.PrintStmt{Value: value, Span: start}, nil
}

func (p *parser) parseIf() (*ast.IfStmt, error) {
	start := p.advance().Span
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &ast.IfStmt{Cond: cond, Then: then, Span: start}
	if p.at(token.KwElse) {
		p.advance()
		if p.at(token.KwIf) {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseIf
		} else {
			elseBlock, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseBlock
		}
	}
	return stmt, nil
}

func (p *parser) parseWhile() (*ast.WhileStmt, error) {
	start := p.advance().Span
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Cond: cond, Body: body, Span: start}, nil
}

func (p *parser) parseFor() (*ast.ForStmt, error) {
	start := p.advance().Span
	init, err := p.parseLocalDecl()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi); err != nil {
		return nil, err
	}
	increment, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Init: init, Cond: cond, Increment: increment, Body: body, Span: start}, nil
}

func (p *parser) parseReturn() (*ast.ReturnStmt, error) {
	start := p.advance().Span
	if p.at(token.Semi) {
		p.advance()
		return &ast.ReturnStmt{Span: start}, nil
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi); err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{Value: value, Span: start}, nil
}

func (p *parser) parseExprStmt() (*ast.ExprStmt, error) {
	start := p.cur().Span
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semi); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Value: value, Span: start}, nil
}

// Expression grammar, lowest to highest precedence:
//   assignment > or > and > equality > relational > additive > multiplicative > unary > call > primary

var compoundOps = map[token.Kind]ast.BinaryOp{
	token.PlusEq:    ast.Add,
	token.MinusEq:   ast.Sub,
	token.StarEq:    ast.Mul,
	token.SlashEq:   ast.Div,
	token.PercentEq: ast.Mod,
}

func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseAssign()
}

func (p *parser) parseAssign() (ast.Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.at(token.Eq) {
		span := p.advance().Span
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return &ast.AssignExpr{Target: left, Value: right, Span: span}, nil
	}
	if op, ok := compoundOps[p.cur().Kind]; ok {
		span := p.advance().Span
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		expanded := &ast.BinaryExpr{Op: op, Left: left, Right: right, Span: span}
		return &ast.AssignExpr{Target: left, Value: expanded, Span: span}, nil
	}
	return left, nil
}

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.KwOr) {
		span := p.advance().Span
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.Or, Left: left, Right: right, Span: span}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(token.KwAnd) {
		span := p.advance().Span
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.And, Left: left, Right: right, Span: span}
	}
	return left, nil
}

var equalityOps = map[token.Kind]ast.BinaryOp{token.EqEq: ast.Eq, token.NotEq: ast.Ne}
var relationalOps = map[token.Kind]ast.BinaryOp{
	token.Gt: ast.Gt, token.Ge: ast.Ge, token.Lt: ast.Lt, token.Le: ast.Le,
}
var additiveOps = map[token.Kind]ast.BinaryOp{token.Plus: ast.Add, token.Minus: ast.Sub}
var multiplicativeOps = map[token.Kind]ast.BinaryOp{
	token.Star: ast.Mul, token.Slash: ast.Div, token.Percent: ast.Mod,
}

func (p *parser) parseBinaryLevel(ops map[token.Kind]ast.BinaryOp, next func() (ast.Expr, error)) (ast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.cur().Kind]
		if !ok {
			return left, nil
		}
		span := p.advance().Span
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Span: span}
	}
}

func (p *parser) parseEquality() (ast.Expr, error) {
	return p.parseBinaryLevel(equalityOps, p.parseRelational)
}

func (p *parser) parseRelational() (ast.Expr, error) {
	return p.parseBinaryLevel(relationalOps, p.parseAdditive)
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	return p.parseBinaryLevel(additiveOps, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	return p.parseBinaryLevel(multiplicativeOps, p.parseUnary)
}

func (p *parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.Minus:
		span := p.advance().Span
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.Neg, Operand: operand, Span: span}, nil
	case token.Bang:
		span := p.advance().Span
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.Not, Operand: operand, Span: span}, nil
	default:
		return p.parseCall()
	}
}

func (p *parser) parseCall() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.at(token.LParen) {
		span := p.advance().Span
		var args []ast.Expr
		for !p.at(token.RParen) {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.at(token.Comma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		expr = &ast.CallExpr{Callee: expr, Args: args, Span: span}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Number:
		p.advance()
		v, err := strconv.ParseFloat(t.Lexeme, 64)
		if err != nil {
			return nil, diag.New(diag.Parse, t.Span, "invalid number literal %q", t.Lexeme)
		}
		return &ast.NumberExpr{Value: v, Span: t.Span}, nil
	case token.String:
		p.advance()
		return &ast.StringExpr{Value: t.Lexeme, Span: t.Span}, nil
	case token.KwTrue:
		p.advance()
		return &ast.BoolExpr{Value: true, Span: t.Span}, nil
	case token.KwFalse:
		p.advance()
		return &ast.BoolExpr{Value: false, Span: t.Span}, nil
	case token.Ident:
		p.advance()
		return &ast.IdentExpr{Name: t.Lexeme, Span: t.Span}, nil
	case token.LParen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, diag.New(diag.Parse, t.Span, "unexpected token %s in expression", t.Kind)
	}
}
