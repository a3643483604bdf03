// Package grammar defines the surface syntax of the M language as a
// participle grammar. The parse tree here is purely syntactic; the parser
// package converts it into the typed AST consumed by the middle-end.
package grammar

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

type SourceFile struct {
	Items []*TopItem `parser:"@@*"`
}

type TopItem struct {
	Struct *StructDef `parser:"  @@"`
	Decl   *TopDecl   `parser:"| @@"`
}

type StructDef struct {
	Pos    lexer.Position
	Name   string       `parser:"\"struct\" @Ident \"{\""`
	Fields []*FieldDecl `parser:"@@* \"}\" \";\""`
}

type FieldDecl struct {
	Pos  lexer.Position
	Type *TypeSpec     `parser:"@@"`
	Vars []*Declarator `parser:"@@ ( \",\" @@ )* \";\""`
}

// TopDecl covers both global variable declarations and function
// definitions; they share the "type declarator" prefix.
type TopDecl struct {
	Pos   lexer.Position
	Type  *TypeSpec     `parser:"@@"`
	First *Declarator   `parser:"@@"`
	Func  *FuncRest     `parser:"( @@"`
	Rest  []*Declarator `parser:"| ( \",\" @@ )* \";\" )"`
}

type FuncRest struct {
	Params []*ParamDecl `parser:"\"(\" [ @@ ( \",\" @@ )* ] \")\""`
	Body   *BlockStmt   `parser:"@@"`
}

type ParamDecl struct {
	Pos   lexer.Position
	Type  *TypeSpec `parser:"@@"`
	Stars []string  `parser:"@( \"*\" )*"`
	Name  string    `parser:"@Ident"`
}

type TypeSpec struct {
	Pos        lexer.Position
	Void       bool   `parser:"  @\"void\""`
	Int        bool   `parser:"| @\"int\""`
	Char       bool   `parser:"| @\"char\""`
	StructName string `parser:"| \"struct\" @Ident"`
}

type Declarator struct {
	Pos   lexer.Position
	Stars []string `parser:"@( \"*\" )*"`
	Name  string   `parser:"@Ident"`
	Dims  []int    `parser:"( \"[\" @Int \"]\" )*"`
}

type BlockStmt struct {
	Stmts []*Stmt `parser:"\"{\" @@* \"}\""`
}

type Stmt struct {
	Block    *BlockStmt    `parser:"  @@"`
	If       *IfStmt       `parser:"| @@"`
	While    *WhileStmt    `parser:"| @@"`
	For      *ForStmt      `parser:"| @@"`
	Switch   *SwitchStmt   `parser:"| @@"`
	Return   *ReturnStmt   `parser:"| @@"`
	Break    *BreakStmt    `parser:"| @@"`
	Continue *ContinueStmt `parser:"| @@"`
	Input    *InputStmt    `parser:"| @@"`
	Output   *OutputStmt   `parser:"| @@"`
	Decl     *VarDeclStmt  `parser:"| @@"`
	Expr     *ExprStmt     `parser:"| @@"`
}

type VarDeclStmt struct {
	Pos  lexer.Position
	Type *TypeSpec     `parser:"@@"`
	Vars []*Declarator `parser:"@@ ( \",\" @@ )* \";\""`
}

type IfStmt struct {
	Pos  lexer.Position
	Cond *Expr `parser:"\"if\" \"(\" @@ \")\""`
	Then *Stmt `parser:"@@"`
	Else *Stmt `parser:"[ \"else\" @@ ]"`
}

type WhileStmt struct {
	Pos  lexer.Position
	Cond *Expr `parser:"\"while\" \"(\" @@ \")\""`
	Body *Stmt `parser:"@@"`
}

type ForStmt struct {
	Pos  lexer.Position
	Init *Expr `parser:"\"for\" \"(\" [ @@ ] \";\""`
	Cond *Expr `parser:"[ @@ ] \";\""`
	Post *Expr `parser:"[ @@ ] \")\""`
	Body *Stmt `parser:"@@"`
}

type SwitchStmt struct {
	Pos   lexer.Position
	Value *Expr         `parser:"\"switch\" \"(\" @@ \")\""`
	Items []*SwitchItem `parser:"\"{\" @@* \"}\""`
}

type SwitchItem struct {
	Case    *CaseLabel    `parser:"  @@"`
	Default *DefaultLabel `parser:"| @@"`
	Stmt    *Stmt         `parser:"| @@"`
}

type CaseLabel struct {
	Pos   lexer.Position
	Value string `parser:"\"case\" @( Int | Char ) \":\""`
}

type DefaultLabel struct {
	Pos lexer.Position
	Kw  string `parser:"@\"default\" \":\""`
}

type ReturnStmt struct {
	Pos   lexer.Position
	Value *Expr `parser:"\"return\" [ @@ ] \";\""`
}

type BreakStmt struct {
	Pos lexer.Position
	Kw  string `parser:"@\"break\" \";\""`
}

type ContinueStmt struct {
	Pos lexer.Position
	Kw  string `parser:"@\"continue\" \";\""`
}

type InputStmt struct {
	Pos    lexer.Position
	Target *Expr `parser:"\"input\" @@ \";\""`
}

type OutputStmt struct {
	Pos   lexer.Position
	Value *Expr `parser:"\"output\" @@ \";\""`
}

type ExprStmt struct {
	Pos lexer.Position
	X   *Expr `parser:"@@ \";\""`
}

// Expressions, C precedence: assignment, comparison, additive,
// multiplicative, unary, postfix, primary.

type Expr struct {
	Assign *AssignExpr `parser:"@@"`
}

type AssignExpr struct {
	Pos   lexer.Position
	Left  *CmpExpr    `parser:"@@"`
	Right *AssignExpr `parser:"[ \"=\" @@ ]"`
}

type CmpExpr struct {
	Pos   lexer.Position
	Left  *AddExpr `parser:"@@"`
	Op    string   `parser:"[ @( \"<\" \"=\" | \">\" \"=\" | \"=\" \"=\" | \"!\" \"=\" | \"<\" | \">\" )"`
	Right *AddExpr `parser:"@@ ]"`
}

type AddExpr struct {
	Pos  lexer.Position
	Left *MulExpr `parser:"@@"`
	Ops  []*AddOp `parser:"@@*"`
}

type AddOp struct {
	Op   string   `parser:"@( \"+\" | \"-\" )"`
	Term *MulExpr `parser:"@@"`
}

type MulExpr struct {
	Pos  lexer.Position
	Left *UnaryExpr `parser:"@@"`
	Ops  []*MulOp   `parser:"@@*"`
}

type MulOp struct {
	Op   string     `parser:"@( \"*\" | \"/\" )"`
	Term *UnaryExpr `parser:"@@"`
}

type UnaryExpr struct {
	Pos     lexer.Position
	Op      string       `parser:"( @( \"&\" | \"*\" | \"-\" )"`
	X       *UnaryExpr   `parser:"@@ )"`
	Postfix *PostfixExpr `parser:"| @@"`
}

type PostfixExpr struct {
	Pos      lexer.Position
	Primary  *Primary  `parser:"@@"`
	Suffixes []*Suffix `parser:"@@*"`
}

type Suffix struct {
	Pos   lexer.Position
	Index *Expr  `parser:"  \"[\" @@ \"]\""`
	Field string `parser:"| \".\" @Ident"`
}

type Primary struct {
	Pos   lexer.Position
	Call  *CallExpr `parser:"  @@"`
	Int   *int      `parser:"| @Int"`
	Char  *string   `parser:"| @Char"`
	Str   *string   `parser:"| @String"`
	Ident *string   `parser:"| @Ident"`
	Paren *Expr     `parser:"| \"(\" @@ \")\""`
}

type CallExpr struct {
	Pos  lexer.Position
	Name string  `parser:"@Ident \"(\""`
	Args []*Expr `parser:"[ @@ ( \",\" @@ )* ] \")\""`
}

var mLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "comment", Pattern: `//[^\n]*|(?s:/\*.*?\*/)`},
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Char", Pattern: `'(\\.|[^'\\])'`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[-+*/<>=!&,;:(){}[\].]`},
})

// Parser is the compiled participle parser for M source files.
var Parser = participle.MustBuild[SourceFile](
	participle.Lexer(mLexer),
	participle.Elide("whitespace", "comment"),
	participle.UseLookahead(64),
)
