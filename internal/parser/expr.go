package parser

import (
	"strings"

	"github.com/Satar07/cyrilcc/grammar"
	"github.com/Satar07/cyrilcc/internal/ast"
	"github.com/Satar07/cyrilcc/internal/errors"
)

func convertExpr(e *grammar.Expr) (ast.Expr, error) {
	return convertAssign(e.Assign)
}

func convertAssign(e *grammar.AssignExpr) (ast.Expr, error) {
	left, err := convertCmp(e.Left)
	if err != nil {
		return nil, err
	}
	if e.Right == nil {
		return left, nil
	}
	right, err := convertAssign(e.Right)
	if err != nil {
		return nil, err
	}
	return &ast.Assignment{Pos: position(e.Pos), LHS: left, RHS: right}, nil
}

func convertCmp(e *grammar.CmpExpr) (ast.Expr, error) {
	left, err := convertAdd(e.Left)
	if err != nil {
		return nil, err
	}
	if e.Op == "" {
		return left, nil
	}
	right, err := convertAdd(e.Right)
	if err != nil {
		return nil, err
	}
	var op ast.BinOp
	switch e.Op {
	case "<":
		op = ast.Lt
	case ">":
		op = ast.Gt
	case "<=":
		op = ast.Le
	case ">=":
		op = ast.Ge
	case "==":
		op = ast.Eq
	case "!=":
		op = ast.Ne
	default:
		return nil, errors.Internalf("parser: unexpected comparison operator %q", e.Op)
	}
	return &ast.BinaryOp{Pos: position(e.Pos), Op: op, L: left, R: right}, nil
}

func convertAdd(e *grammar.AddExpr) (ast.Expr, error) {
	out, err := convertMul(e.Left)
	if err != nil {
		return nil, err
	}
	for _, rhs := range e.Ops {
		term, err := convertMul(rhs.Term)
		if err != nil {
			return nil, err
		}
		op := ast.Add
		if rhs.Op == "-" {
			op = ast.Sub
		}
		out = &ast.BinaryOp{Pos: position(e.Pos), Op: op, L: out, R: term}
	}
	return out, nil
}

func convertMul(e *grammar.MulExpr) (ast.Expr, error) {
	out, err := convertUnary(e.Left)
	if err != nil {
		return nil, err
	}
	for _, rhs := range e.Ops {
		term, err := convertUnary(rhs.Term)
		if err != nil {
			return nil, err
		}
		op := ast.Mul
		if rhs.Op == "/" {
			op = ast.Div
		}
		out = &ast.BinaryOp{Pos: position(e.Pos), Op: op, L: out, R: term}
	}
	return out, nil
}

func convertUnary(e *grammar.UnaryExpr) (ast.Expr, error) {
	if e.Postfix != nil {
		return convertPostfix(e.Postfix)
	}
	x, err := convertUnary(e.X)
	if err != nil {
		return nil, err
	}
	var op ast.UnOp
	switch e.Op {
	case "&":
		op = ast.Addr
	case "*":
		op = ast.Deref
	case "-":
		op = ast.Neg
	default:
		return nil, errors.Internalf("parser: unexpected unary operator %q", e.Op)
	}
	return &ast.UnaryOp{Pos: position(e.Pos), Op: op, X: x}, nil
}

func convertPostfix(e *grammar.PostfixExpr) (ast.Expr, error) {
	out, err := convertPrimary(e.Primary)
	if err != nil {
		return nil, err
	}
	for _, s := range e.Suffixes {
		if s.Index != nil {
			idx, err := convertExpr(s.Index)
			if err != nil {
				return nil, err
			}
			out = &ast.ArrayIndex{Pos: position(s.Pos), Base: out, Index: idx}
			continue
		}
		out = &ast.MemberAccess{Pos: position(s.Pos), Base: out, Field: s.Field}
	}
	return out, nil
}

func convertPrimary(e *grammar.Primary) (ast.Expr, error) {
	switch {
	case e.Call != nil:
		call := &ast.FunctionCall{Pos: position(e.Call.Pos), Name: e.Call.Name}
		for _, a := range e.Call.Args {
			arg, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		return call, nil

	case e.Int != nil:
		return &ast.IntegerLiteral{Pos: position(e.Pos), Value: *e.Int}, nil

	case e.Char != nil:
		v, err := charValue(*e.Char)
		if err != nil {
			return nil, errors.Newf(errors.ErrParse, position(e.Pos),
				"bad character constant %s", *e.Char)
		}
		return &ast.CharacterLiteral{Pos: position(e.Pos), Value: v}, nil

	case e.Str != nil:
		return &ast.StringLiteral{Pos: position(e.Pos), Value: unquoteString(*e.Str)}, nil

	case e.Ident != nil:
		return &ast.VariableReference{Pos: position(e.Pos), Name: *e.Ident}, nil

	case e.Paren != nil:
		return convertExpr(e.Paren)
	}
	return nil, errors.Internalf("parser: empty primary alternative")
}

// charValue evaluates a quoted character constant including its escape
// sequence, returning the byte value.
func charValue(lit string) (int, error) {
	body := lit[1 : len(lit)-1]
	if body == "" {
		return 0, errors.Internalf("empty character constant")
	}
	if body[0] != '\\' {
		return int(body[0]), nil
	}
	return escapeValue(body[1]), nil
}

// unquoteString strips the quotes and expands escape sequences.
func unquoteString(lit string) string {
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' || i+1 == len(body) {
			b.WriteByte(body[i])
			continue
		}
		i++
		b.WriteByte(byte(escapeValue(body[i])))
	}
	return b.String()
}

func escapeValue(c byte) int {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		// \\, \', \" and anything unrecognized map to the character itself.
		return int(c)
	}
}
