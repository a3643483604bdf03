// Package parser turns M source text into the typed AST consumed by the
// middle-end. The surface syntax is handled by the participle grammar in the
// grammar package; this package resolves type tokens to interned types,
// registers struct definitions, expands literal escapes and shapes the
// statement tree.
package parser

import (
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/Satar07/cyrilcc/grammar"
	"github.com/Satar07/cyrilcc/internal/ast"
	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/types"
)

// ParseSource parses a whole translation unit.
func ParseSource(filename, source string) (*ast.Program, error) {
	file, err := grammar.Parser.ParseString(filename, source)
	if err != nil {
		pos := ast.Position{Filename: filename}
		if perr, ok := err.(participleError); ok {
			p := perr.Position()
			pos = ast.Position{Filename: p.Filename, Line: p.Line, Column: p.Column}
		}
		return nil, errors.Newf(errors.ErrParse, pos, "%s", err.Error())
	}
	return convert(file)
}

type participleError interface {
	Position() lexer.Position
}

func position(p lexer.Position) ast.Position {
	return ast.Position{Filename: p.Filename, Line: p.Line, Column: p.Column}
}

func convert(file *grammar.SourceFile) (*ast.Program, error) {
	prog := &ast.Program{}

	// Struct definitions first, so later declarations can name them
	// regardless of interleaving.
	for _, item := range file.Items {
		if item.Struct == nil {
			continue
		}
		if err := registerStruct(item.Struct); err != nil {
			return nil, err
		}
	}

	for _, item := range file.Items {
		if item.Struct != nil {
			continue
		}
		decl := item.Decl
		if decl.Func != nil {
			fn, err := convertFunction(decl)
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
			continue
		}

		list, err := convertDeclList(decl.Type, append([]*grammar.Declarator{decl.First}, decl.Rest...), decl.Pos)
		if err != nil {
			return nil, err
		}
		prog.Globals = append(prog.Globals, list)
	}
	return prog, nil
}

func registerStruct(def *grammar.StructDef) error {
	var fields []types.Field
	for _, f := range def.Fields {
		for _, d := range f.Vars {
			t, err := resolveType(f.Type, d)
			if err != nil {
				return err
			}
			fields = append(fields, types.Field{Name: d.Name, Type: t})
		}
	}
	types.RegisterStruct(def.Name, fields)
	return nil
}

// resolveType builds the interned type for a base type spec plus a
// declarator: pointer stars apply first, then array dimensions outermost
// first, so "int a[2][3]" is [2 x [3 x i32]].
func resolveType(spec *grammar.TypeSpec, d *grammar.Declarator) (*types.Type, error) {
	t, err := baseType(spec)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return t, nil
	}
	for range d.Stars {
		t = types.Pointer(t)
	}
	for i := len(d.Dims) - 1; i >= 0; i-- {
		t = types.Array(t, d.Dims[i])
	}
	return t, nil
}

func baseType(spec *grammar.TypeSpec) (*types.Type, error) {
	switch {
	case spec.Void:
		return types.Void(), nil
	case spec.Int:
		return types.I32(), nil
	case spec.Char:
		return types.I8(), nil
	case spec.StructName != "":
		t, ok := types.LookupStruct(spec.StructName)
		if !ok {
			return nil, errors.Newf(errors.ErrUnknownType, position(spec.Pos),
				"unknown struct type %q", spec.StructName)
		}
		return t, nil
	}
	return nil, errors.Newf(errors.ErrParse, position(spec.Pos), "malformed type specifier")
}

func convertFunction(decl *grammar.TopDecl) (*ast.Function, error) {
	ret, err := resolveType(decl.Type, &grammar.Declarator{Stars: decl.First.Stars})
	if err != nil {
		return nil, err
	}
	if len(decl.First.Dims) > 0 {
		return nil, errors.Newf(errors.ErrParse, position(decl.First.Pos),
			"function %q cannot return an array", decl.First.Name)
	}

	fn := &ast.Function{
		Pos:        position(decl.Pos),
		Name:       decl.First.Name,
		ReturnType: ret,
	}
	for _, p := range decl.Func.Params {
		pt, err := resolveType(p.Type, &grammar.Declarator{Stars: p.Stars})
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, ast.Param{
			Pos:  position(p.Pos),
			Name: p.Name,
			Type: pt,
		})
	}

	body, err := convertStmts(decl.Func.Body.Stmts)
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func convertDeclList(spec *grammar.TypeSpec, vars []*grammar.Declarator, pos lexer.Position) (*ast.VariableDeclarationList, error) {
	list := &ast.VariableDeclarationList{Pos: position(pos)}
	for _, d := range vars {
		t, err := resolveType(spec, d)
		if err != nil {
			return nil, err
		}
		if t.IsVoid() {
			return nil, errors.Newf(errors.ErrTypeMisuse, position(d.Pos),
				"variable %q declared void", d.Name)
		}
		list.Decls = append(list.Decls, ast.VarDecl{
			Pos:  position(d.Pos),
			Name: d.Name,
			Type: t,
		})
	}
	return list, nil
}

func convertStmts(in []*grammar.Stmt) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for _, s := range in {
		converted, err := convertStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

// convertStmt returns a slice because a bare block statement is inlined into
// its parent.
func convertStmt(s *grammar.Stmt) ([]ast.Stmt, error) {
	switch {
	case s.Block != nil:
		return convertStmts(s.Block.Stmts)

	case s.If != nil:
		cond, err := convertExpr(s.If.Cond)
		if err != nil {
			return nil, err
		}
		then, err := convertBody(s.If.Then)
		if err != nil {
			return nil, err
		}
		node := &ast.If{Pos: position(s.If.Pos), Cond: cond, Then: then}
		if s.If.Else != nil {
			node.Else, err = convertBody(s.If.Else)
			if err != nil {
				return nil, err
			}
		}
		return []ast.Stmt{node}, nil

	case s.While != nil:
		cond, err := convertExpr(s.While.Cond)
		if err != nil {
			return nil, err
		}
		body, err := convertBody(s.While.Body)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{&ast.While{Pos: position(s.While.Pos), Cond: cond, Body: body}}, nil

	case s.For != nil:
		return convertFor(s.For)

	case s.Switch != nil:
		return convertSwitch(s.Switch)

	case s.Return != nil:
		node := &ast.Return{Pos: position(s.Return.Pos)}
		if s.Return.Value != nil {
			v, err := convertExpr(s.Return.Value)
			if err != nil {
				return nil, err
			}
			node.Value = v
		}
		return []ast.Stmt{node}, nil

	case s.Break != nil:
		return []ast.Stmt{&ast.Break{Pos: position(s.Break.Pos)}}, nil

	case s.Continue != nil:
		return []ast.Stmt{&ast.Continue{Pos: position(s.Continue.Pos)}}, nil

	case s.Input != nil:
		target, err := convertExpr(s.Input.Target)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{&ast.Input{Pos: position(s.Input.Pos), Target: target}}, nil

	case s.Output != nil:
		value, err := convertExpr(s.Output.Value)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{&ast.Output{Pos: position(s.Output.Pos), Value: value}}, nil

	case s.Decl != nil:
		list, err := convertDeclList(s.Decl.Type, s.Decl.Vars, s.Decl.Pos)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{list}, nil

	case s.Expr != nil:
		x, err := convertExpr(s.Expr.X)
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{&ast.ExprStmt{Pos: position(s.Expr.Pos), X: x}}, nil
	}
	return nil, errors.Internalf("parser: empty statement alternative")
}

// convertBody wraps a single-statement body so if/while/for always carry
// statement lists.
func convertBody(s *grammar.Stmt) ([]ast.Stmt, error) {
	return convertStmt(s)
}

func convertFor(f *grammar.ForStmt) ([]ast.Stmt, error) {
	node := &ast.For{Pos: position(f.Pos)}
	if f.Init != nil {
		x, err := convertExpr(f.Init)
		if err != nil {
			return nil, err
		}
		node.Init = &ast.ExprStmt{Pos: position(f.Pos), X: x}
	}
	if f.Cond != nil {
		cond, err := convertExpr(f.Cond)
		if err != nil {
			return nil, err
		}
		node.Cond = cond
	}
	if f.Post != nil {
		x, err := convertExpr(f.Post)
		if err != nil {
			return nil, err
		}
		node.Post = &ast.ExprStmt{Pos: position(f.Pos), X: x}
	}
	body, err := convertBody(f.Body)
	if err != nil {
		return nil, err
	}
	node.Body = body
	return []ast.Stmt{node}, nil
}

// convertSwitch flattens the item stream into Case/Default labels and
// CaseBlocks: a maximal run of statements forms one block.
func convertSwitch(sw *grammar.SwitchStmt) ([]ast.Stmt, error) {
	value, err := convertExpr(sw.Value)
	if err != nil {
		return nil, err
	}
	node := &ast.Switch{Pos: position(sw.Pos), Value: value}

	var run []ast.Stmt
	flush := func(pos lexer.Position) {
		if len(run) == 0 {
			return
		}
		node.Items = append(node.Items, &ast.CaseBlock{Pos: position(pos), Body: run})
		run = nil
	}

	for _, item := range sw.Items {
		switch {
		case item.Case != nil:
			flush(item.Case.Pos)
			v, err := caseValue(item.Case)
			if err != nil {
				return nil, err
			}
			node.Items = append(node.Items, &ast.Case{Pos: position(item.Case.Pos), Value: v})
		case item.Default != nil:
			flush(item.Default.Pos)
			node.Items = append(node.Items, &ast.Default{Pos: position(item.Default.Pos)})
		case item.Stmt != nil:
			stmts, err := convertStmt(item.Stmt)
			if err != nil {
				return nil, err
			}
			run = append(run, stmts...)
		}
	}
	flush(sw.Pos)
	return []ast.Stmt{node}, nil
}

func caseValue(c *grammar.CaseLabel) (int, error) {
	if c.Value == "" {
		return 0, errors.Newf(errors.ErrParse, position(c.Pos), "empty case value")
	}
	if c.Value[0] == '\'' {
		v, err := charValue(c.Value)
		if err != nil {
			return 0, errors.Newf(errors.ErrParse, position(c.Pos), "bad character constant %s", c.Value)
		}
		return v, nil
	}
	v, err := strconv.Atoi(c.Value)
	if err != nil {
		return 0, errors.Newf(errors.ErrParse, position(c.Pos), "bad case value %s", c.Value)
	}
	return v, nil
}
