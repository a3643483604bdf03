package ast

import (
	"github.com/Satar07/cyrilcc/internal/types"
)

// Position tracks source location for error reporting.
type Position struct {
	Filename string
	Line     int
	Column   int
}

// Node is implemented by every AST node.
type Node interface {
	Position() Position
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Program is the root handed to the IR builder. Struct definitions are
// already interned in the type registry by the frontend; the program keeps
// only globals and functions, in source order.
type Program struct {
	Pos       Position
	Globals   []*VariableDeclarationList
	Functions []*Function
}

func (p *Program) Position() Position { return p.Pos }

// Function is a function definition with resolved parameter and return
// types.
type Function struct {
	Pos        Position
	Name       string
	ReturnType *types.Type
	Params     []Param
	Body       []Stmt
}

type Param struct {
	Pos  Position
	Name string
	Type *types.Type
}

func (f *Function) Position() Position { return f.Pos }

// VariableDeclarationList declares one or more variables of a common base
// type, e.g. "int a, b[4];". It appears at the top level (globals) and as a
// statement (locals).
type VariableDeclarationList struct {
	Pos   Position
	Decls []VarDecl
}

type VarDecl struct {
	Pos  Position
	Name string
	Type *types.Type
}

func (d *VariableDeclarationList) Position() Position { return d.Pos }
func (d *VariableDeclarationList) stmtNode()          {}
