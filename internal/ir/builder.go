package ir

import (
	"fmt"

	"github.com/Satar07/cyrilcc/internal/ast"
	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/types"
)

// Builder lowers the typed AST into memory-form IR: every variable lives in
// a stack slot, every use is a LOAD and every assignment a STORE. SSA is
// constructed later by the Mem2Reg pass.
type Builder struct {
	module *Module
	fn     *Function
	block  *Block

	// The label counter is module-wide so block labels stay unique in the
	// emitted assembly.
	labelCounter int

	// String literal dedup: raw bytes to the global that carries them.
	strLits  map[string]string
	strCount int

	// break/continue targets. Loops push onto both stacks; switch pushes
	// only a break target, so continue inside a switch still reaches the
	// enclosing loop.
	contStack  []string
	breakStack []string
}

// NewBuilder creates an IR builder.
func NewBuilder() *Builder {
	return &Builder{
		module:  NewModule(),
		strLits: make(map[string]string),
	}
}

// BuildProgram is the main entry point for converting the AST to IR.
func BuildProgram(prog *ast.Program) (*Module, error) {
	return NewBuilder().Build(prog)
}

// Build lowers the whole program. The globals pass runs first so function
// bodies can reference globals and call functions declared later.
func (b *Builder) Build(prog *ast.Program) (*Module, error) {
	for _, list := range prog.Globals {
		for _, d := range list.Decls {
			name := "@" + d.Name
			b.module.Globals = append(b.module.Globals, Global{Name: name, Type: d.Type})
			b.module.Symbols[d.Name] = GlobalRef(name, types.Pointer(d.Type))
		}
	}
	for _, fn := range prog.Functions {
		b.module.Symbols[fn.Name] = GlobalRef("@"+fn.Name, fn.ReturnType)
	}

	for _, fn := range prog.Functions {
		if err := b.buildFunction(fn); err != nil {
			return nil, err
		}
	}
	return b.module, nil
}

func (b *Builder) buildFunction(node *ast.Function) error {
	b.fn = NewFunction("@"+node.Name, node.ReturnType)
	b.module.Functions = append(b.module.Functions, b.fn)

	b.startBlock(b.newLabel("entry"))

	// Each parameter arrives in an SSA register and is immediately stored
	// into a stack slot; the slot pointer is what the symbol table binds.
	for _, p := range node.Params {
		paramReg := b.fn.NewReg(p.Type)
		b.fn.Params = append(b.fn.Params, paramReg)

		slot := b.fn.NewReg(types.Pointer(p.Type))
		b.emit(NewInstR(OpAlloca, slot))
		b.emit(NewInst(OpStore, paramReg, slot))
		b.fn.Symbols[p.Name] = slot
	}

	for _, stmt := range node.Body {
		if err := b.visitStmt(stmt); err != nil {
			return err
		}
	}

	if !b.block.Terminated() {
		if node.ReturnType.IsVoid() {
			b.emit(NewInst(OpRet))
		} else {
			b.emit(NewInst(OpRet, Imm(0, types.I32())))
		}
	}

	b.fn = nil
	b.block = nil
	return nil
}

// --- block and label plumbing ---

func (b *Builder) newLabel(prefix string) string {
	name := fmt.Sprintf("%s%d", prefix, b.labelCounter)
	b.labelCounter++
	return name
}

// startBlock opens a new current block with the given label.
func (b *Builder) startBlock(label string) {
	blk := &Block{Label: label}
	blk.Append(NewInst(OpLabel, LabelRef(label)))
	b.fn.Blocks = append(b.fn.Blocks, blk)
	b.block = blk
}

func (b *Builder) emit(inst *Instruction) {
	b.block.Append(inst)
}

func (b *Builder) br(label string) {
	b.emit(NewInst(OpBr, LabelRef(label)))
}

// lookupVar returns the slot (or global) pointer bound to a source name.
func (b *Builder) lookupVar(name string, pos ast.Position) (Operand, error) {
	if b.fn != nil {
		if op, ok := b.fn.Symbols[name]; ok {
			return op, nil
		}
	}
	if op, ok := b.module.Symbols[name]; ok {
		return op, nil
	}
	return Operand{}, errors.Newf(errors.ErrUnknownVariable, pos, "unknown variable %q", name)
}

// --- statements ---

func (b *Builder) visitStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.VariableDeclarationList:
		for _, d := range s.Decls {
			slot := b.fn.NewReg(types.Pointer(d.Type))
			b.emit(NewInstR(OpAlloca, slot))
			b.fn.Symbols[d.Name] = slot
		}
		return nil

	case *ast.If:
		return b.visitIf(s)

	case *ast.While:
		return b.visitWhile(s)

	case *ast.For:
		return b.visitFor(s)

	case *ast.Switch:
		return b.visitSwitch(s)

	case *ast.Return:
		if s.Value != nil {
			v, err := b.visitExpr(s.Value)
			if err != nil {
				return err
			}
			b.emit(NewInst(OpRet, v))
		} else {
			b.emit(NewInst(OpRet))
		}
		b.startBlock(b.newLabel("dead"))
		return nil

	case *ast.Break:
		if len(b.breakStack) == 0 {
			return errors.Newf(errors.ErrStrayJump, s.Pos, "break outside of loop or switch")
		}
		b.br(b.breakStack[len(b.breakStack)-1])
		b.startBlock(b.newLabel("dead"))
		return nil

	case *ast.Continue:
		if len(b.contStack) == 0 {
			return errors.Newf(errors.ErrStrayJump, s.Pos, "continue outside of loop")
		}
		b.br(b.contStack[len(b.contStack)-1])
		b.startBlock(b.newLabel("dead"))
		return nil

	case *ast.Input:
		return b.visitInput(s)

	case *ast.Output:
		return b.visitOutput(s)

	case *ast.ExprStmt:
		_, err := b.visitExpr(s.X)
		return err
	}
	return errors.Internalf("ir builder: unhandled statement %T", stmt)
}

func (b *Builder) visitIf(s *ast.If) error {
	thenLbl := b.newLabel("ifthen")
	endLbl := b.newLabel("ifend")
	elseLbl := endLbl
	if s.Else != nil {
		elseLbl = b.newLabel("ifelse")
	}

	if err := b.visitCond(s.Cond, thenLbl, elseLbl); err != nil {
		return err
	}

	b.startBlock(thenLbl)
	for _, stmt := range s.Then {
		if err := b.visitStmt(stmt); err != nil {
			return err
		}
	}
	b.br(endLbl)

	if s.Else != nil {
		b.startBlock(elseLbl)
		for _, stmt := range s.Else {
			if err := b.visitStmt(stmt); err != nil {
				return err
			}
		}
		b.br(endLbl)
	}

	b.startBlock(endLbl)
	return nil
}

func (b *Builder) visitWhile(s *ast.While) error {
	condLbl := b.newLabel("whilecond")
	bodyLbl := b.newLabel("whilebody")
	endLbl := b.newLabel("whileend")

	b.contStack = append(b.contStack, condLbl)
	b.breakStack = append(b.breakStack, endLbl)
	defer func() {
		b.contStack = b.contStack[:len(b.contStack)-1]
		b.breakStack = b.breakStack[:len(b.breakStack)-1]
	}()

	b.br(condLbl)
	b.startBlock(condLbl)
	if err := b.visitCond(s.Cond, bodyLbl, endLbl); err != nil {
		return err
	}

	b.startBlock(bodyLbl)
	for _, stmt := range s.Body {
		if err := b.visitStmt(stmt); err != nil {
			return err
		}
	}
	b.br(condLbl)

	b.startBlock(endLbl)
	return nil
}

func (b *Builder) visitFor(s *ast.For) error {
	if s.Init != nil {
		if err := b.visitStmt(s.Init); err != nil {
			return err
		}
	}

	condLbl := b.newLabel("forcond")
	bodyLbl := b.newLabel("forbody")
	incLbl := b.newLabel("forinc")
	endLbl := b.newLabel("forend")

	b.contStack = append(b.contStack, incLbl)
	b.breakStack = append(b.breakStack, endLbl)
	defer func() {
		b.contStack = b.contStack[:len(b.contStack)-1]
		b.breakStack = b.breakStack[:len(b.breakStack)-1]
	}()

	b.br(condLbl)
	b.startBlock(condLbl)
	if s.Cond != nil {
		if err := b.visitCond(s.Cond, bodyLbl, endLbl); err != nil {
			return err
		}
	} else {
		b.br(bodyLbl)
	}

	b.startBlock(bodyLbl)
	for _, stmt := range s.Body {
		if err := b.visitStmt(stmt); err != nil {
			return err
		}
	}
	b.br(incLbl)

	b.startBlock(incLbl)
	if s.Post != nil {
		if err := b.visitStmt(s.Post); err != nil {
			return err
		}
	}
	b.br(condLbl)

	b.startBlock(endLbl)
	return nil
}

// visitSwitch lowers a switch in two passes: the first assigns a label to
// each case block (fall-through case labels share the immediately following
// block's label), the second emits a linear dispatch table and then the
// blocks themselves. Unterminated case blocks fall through lexically, which
// gives C fall-through semantics.
func (b *Builder) visitSwitch(s *ast.Switch) error {
	val, err := b.visitExpr(s.Value)
	if err != nil {
		return err
	}

	endLbl := b.newLabel("swend")
	b.breakStack = append(b.breakStack, endLbl)
	defer func() { b.breakStack = b.breakStack[:len(b.breakStack)-1] }()

	type caseTarget struct {
		value    int
		blockIdx int
	}
	var (
		blockLabels []string
		cases       []caseTarget
		defaultIdx  = -1
	)
	n := 0
	for _, item := range s.Items {
		switch it := item.(type) {
		case *ast.Case:
			cases = append(cases, caseTarget{value: it.Value, blockIdx: n})
		case *ast.Default:
			if defaultIdx == -1 {
				defaultIdx = n
			}
		case *ast.CaseBlock:
			blockLabels = append(blockLabels, b.newLabel("swblock"))
			n++
		}
	}

	target := func(idx int) string {
		if idx < len(blockLabels) {
			return blockLabels[idx]
		}
		return endLbl
	}

	for _, c := range cases {
		b.emit(NewInst(OpTest, val, Imm(c.value, types.I32())))
		b.emit(NewInst(OpBrz, LabelRef(target(c.blockIdx))))
	}
	if defaultIdx >= 0 {
		b.br(target(defaultIdx))
	} else {
		b.br(endLbl)
	}

	i := 0
	for _, item := range s.Items {
		blk, ok := item.(*ast.CaseBlock)
		if !ok {
			continue
		}
		b.startBlock(blockLabels[i])
		for _, stmt := range blk.Body {
			if err := b.visitStmt(stmt); err != nil {
				return err
			}
		}
		i++
	}

	b.startBlock(endLbl)
	return nil
}

func (b *Builder) visitInput(s *ast.Input) error {
	addr, err := b.lvalue(s.Target)
	if err != nil {
		return err
	}
	pointee := addr.Type.Pointee()

	var op Op
	switch {
	case pointee.IsInt():
		op = OpInputI32
	case pointee.IsChar():
		op = OpInputI8
	default:
		return errors.Newf(errors.ErrInputTarget, s.Pos,
			"input target must be of int or char type, got %s", pointee)
	}

	res := b.fn.NewReg(pointee)
	b.emit(NewInstR(op, res))
	b.emit(NewInst(OpStore, res, addr))
	return nil
}

func (b *Builder) visitOutput(s *ast.Output) error {
	v, err := b.visitExpr(s.Value)
	if err != nil {
		return err
	}

	var op Op
	switch {
	case v.Type.IsInt():
		op = OpOutputI32
	case v.Type.IsChar():
		op = OpOutputI8
	case v.Type.IsPointer() && v.Type.Pointee().IsChar():
		op = OpOutputStr
	default:
		return errors.Newf(errors.ErrOutputOperand, s.Pos,
			"output operand must be int, char or string, got %s", v.Type)
	}
	b.emit(NewInst(op, v))
	return nil
}

// visitCond lowers a condition with explicit targets for both outcomes. The
// VM branches on LT, GT and Z only; LE, GE and NE are realized by branching
// on the negation to the false label and falling to an unconditional branch
// to the true label.
func (b *Builder) visitCond(cond ast.Expr, trueLbl, falseLbl string) error {
	if bin, ok := cond.(*ast.BinaryOp); ok && bin.Op.IsComparison() {
		l, err := b.visitExpr(bin.L)
		if err != nil {
			return err
		}
		r, err := b.visitExpr(bin.R)
		if err != nil {
			return err
		}
		b.emit(NewInst(OpTest, l, r))

		switch bin.Op {
		case ast.Lt:
			b.emit(NewInst(OpBrlt, LabelRef(trueLbl)))
			b.br(falseLbl)
		case ast.Gt:
			b.emit(NewInst(OpBrgt, LabelRef(trueLbl)))
			b.br(falseLbl)
		case ast.Eq:
			b.emit(NewInst(OpBrz, LabelRef(trueLbl)))
			b.br(falseLbl)
		case ast.Le:
			b.emit(NewInst(OpBrgt, LabelRef(falseLbl)))
			b.br(trueLbl)
		case ast.Ge:
			b.emit(NewInst(OpBrlt, LabelRef(falseLbl)))
			b.br(trueLbl)
		case ast.Ne:
			b.emit(NewInst(OpBrz, LabelRef(falseLbl)))
			b.br(trueLbl)
		}
		return nil
	}

	// Any other expression: compare against zero.
	v, err := b.visitExpr(cond)
	if err != nil {
		return err
	}
	b.emit(NewInst(OpTest, v, Imm(0, types.I32())))
	b.emit(NewInst(OpBrz, LabelRef(falseLbl)))
	b.br(trueLbl)
	return nil
}

// --- expressions ---

func (b *Builder) visitExpr(expr ast.Expr) (Operand, error) {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		return Imm(e.Value, types.I32()), nil

	case *ast.CharacterLiteral:
		return Imm(e.Value, types.I8()), nil

	case *ast.StringLiteral:
		return b.stringLiteral(e.Value), nil

	case *ast.VariableReference, *ast.ArrayIndex, *ast.MemberAccess:
		return b.loadLValue(expr)

	case *ast.Assignment:
		return b.visitAssignment(e)

	case *ast.BinaryOp:
		if e.Op.IsComparison() {
			return Operand{}, errors.Newf(errors.ErrComparisonContext, e.Pos,
				"comparison %q can only be used in a condition", e.Op)
		}
		l, err := b.visitExpr(e.L)
		if err != nil {
			return Operand{}, err
		}
		r, err := b.visitExpr(e.R)
		if err != nil {
			return Operand{}, err
		}
		res := b.fn.NewReg(types.I32())
		b.emit(NewInstR(binOpcode(e.Op), res, l, r))
		return res, nil

	case *ast.UnaryOp:
		return b.visitUnary(e)

	case *ast.FunctionCall:
		return b.visitCall(e)
	}
	return Operand{}, errors.Internalf("ir builder: unhandled expression %T", expr)
}

func binOpcode(op ast.BinOp) Op {
	switch op {
	case ast.Add:
		return OpAdd
	case ast.Sub:
		return OpSub
	case ast.Mul:
		return OpMul
	case ast.Div:
		return OpDiv
	}
	return OpAdd
}

func (b *Builder) stringLiteral(value string) Operand {
	if name, ok := b.strLits[value]; ok {
		return GlobalRef(name, types.CharPtr())
	}
	name := fmt.Sprintf("@str%d", b.strCount)
	b.strCount++
	b.strLits[value] = name
	b.module.Globals = append(b.module.Globals, Global{
		Name: name,
		Type: types.CharPtr(),
		Init: value,
	})
	return GlobalRef(name, types.CharPtr())
}

// loadLValue materializes an l-value expression as an r-value: arrays decay
// to a pointer to their first element, scalars are loaded, struct values are
// rejected (no struct copy).
func (b *Builder) loadLValue(expr ast.Expr) (Operand, error) {
	addr, err := b.lvalue(expr)
	if err != nil {
		return Operand{}, err
	}
	pointee := addr.Type.Pointee()

	switch {
	case pointee.IsArray():
		res := b.fn.NewReg(types.Pointer(pointee.Elem()))
		b.emit(NewInstR(OpGep, res, addr, Imm(0, types.I32()), Imm(0, types.I32())))
		return res, nil
	case pointee.IsStruct():
		return Operand{}, errors.Newf(errors.ErrStructValue, expr.Position(),
			"%s cannot be used as a value", pointee)
	default:
		res := b.fn.NewReg(pointee)
		b.emit(NewInstR(OpLoad, res, addr))
		return res, nil
	}
}

func (b *Builder) visitAssignment(e *ast.Assignment) (Operand, error) {
	rv, err := b.visitExpr(e.RHS)
	if err != nil {
		return Operand{}, err
	}
	addr, err := b.lvalue(e.LHS)
	if err != nil {
		return Operand{}, err
	}
	pointee := addr.Type.Pointee()
	if pointee.IsArray() || pointee.IsStruct() {
		return Operand{}, errors.Newf(errors.ErrTypeMisuse, e.Pos,
			"cannot assign to a value of type %s", pointee)
	}

	rv, err = coerceScalar(rv, pointee, e.Pos)
	if err != nil {
		return Operand{}, err
	}
	b.emit(NewInst(OpStore, rv, addr))
	return rv, nil
}

// coerceScalar retypes v to want so the STORE pointee invariant holds. int
// and char interconvert freely (both are one VM word); everything else must
// match exactly.
func coerceScalar(v Operand, want *types.Type, pos ast.Position) (Operand, error) {
	if v.Type == want {
		return v, nil
	}
	vInt := v.Type.IsInt() || v.Type.IsChar() || v.Type.IsBool()
	wInt := want.IsInt() || want.IsChar() || want.IsBool()
	if vInt && wInt {
		v.Type = want
		return v, nil
	}
	return Operand{}, errors.Newf(errors.ErrTypeMisuse, pos,
		"cannot store %s into %s", v.Type, want)
}

func (b *Builder) visitUnary(e *ast.UnaryOp) (Operand, error) {
	switch e.Op {
	case ast.Addr:
		return b.lvalue(e.X)

	case ast.Deref:
		p, err := b.visitExpr(e.X)
		if err != nil {
			return Operand{}, err
		}
		if !p.Type.IsPointer() {
			return Operand{}, errors.Newf(errors.ErrTypeMisuse, e.Pos,
				"cannot dereference non-pointer type %s", p.Type)
		}
		res := b.fn.NewReg(p.Type.Pointee())
		b.emit(NewInstR(OpLoad, res, p))
		return res, nil

	case ast.Neg:
		v, err := b.visitExpr(e.X)
		if err != nil {
			return Operand{}, err
		}
		res := b.fn.NewReg(types.I32())
		b.emit(NewInstR(OpSub, res, Imm(0, types.I32()), v))
		return res, nil
	}
	return Operand{}, errors.Internalf("ir builder: unhandled unary op %d", e.Op)
}

func (b *Builder) visitCall(e *ast.FunctionCall) (Operand, error) {
	callee, ok := b.module.Symbols[e.Name]
	if !ok {
		return Operand{}, errors.Newf(errors.ErrUnknownFunction, e.Pos,
			"call to undefined function %q", e.Name)
	}

	args := make([]Operand, 0, len(e.Args)+1)
	args = append(args, callee)
	for _, a := range e.Args {
		v, err := b.visitExpr(a)
		if err != nil {
			return Operand{}, err
		}
		args = append(args, v)
	}

	if callee.Type.IsVoid() {
		b.emit(NewInst(OpCall, args...))
		return Operand{Kind: KindImm, Type: types.Void()}, nil
	}
	res := b.fn.NewReg(callee.Type)
	b.emit(NewInstR(OpCall, res, args...))
	return res, nil
}

// lvalue computes the address of an assignable expression. The result is
// always pointer-typed.
func (b *Builder) lvalue(expr ast.Expr) (Operand, error) {
	switch e := expr.(type) {
	case *ast.VariableReference:
		return b.lookupVar(e.Name, e.Pos)

	case *ast.UnaryOp:
		if e.Op != ast.Deref {
			return Operand{}, errors.Newf(errors.ErrNotLValue, e.Pos,
				"expression is not assignable")
		}
		p, err := b.visitExpr(e.X)
		if err != nil {
			return Operand{}, err
		}
		if !p.Type.IsPointer() {
			return Operand{}, errors.Newf(errors.ErrTypeMisuse, e.Pos,
				"cannot dereference non-pointer type %s", p.Type)
		}
		return p, nil

	case *ast.ArrayIndex:
		base, err := b.lvalue(e.Base)
		if err != nil {
			return Operand{}, err
		}
		idx, err := b.visitExpr(e.Index)
		if err != nil {
			return Operand{}, err
		}
		idx, err = coerceScalar(idx, types.I32(), e.Pos)
		if err != nil {
			return Operand{}, err
		}

		pointee := base.Type.Pointee()
		switch {
		case pointee.IsArray():
			res := b.fn.NewReg(types.Pointer(pointee.Elem()))
			b.emit(NewInstR(OpGep, res, base, Imm(0, types.I32()), idx))
			return res, nil
		case pointee.IsPointer():
			// Indexing through a pointer variable: load the pointer, then
			// a single-index gep.
			ptr := b.fn.NewReg(pointee)
			b.emit(NewInstR(OpLoad, ptr, base))
			res := b.fn.NewReg(pointee)
			b.emit(NewInstR(OpGep, res, ptr, idx))
			return res, nil
		default:
			return Operand{}, errors.Newf(errors.ErrTypeMisuse, e.Pos,
				"cannot index value of type %s", pointee)
		}

	case *ast.MemberAccess:
		base, err := b.lvalue(e.Base)
		if err != nil {
			return Operand{}, err
		}
		pointee := base.Type.Pointee()
		if !pointee.IsStruct() {
			return Operand{}, errors.Newf(errors.ErrTypeMisuse, e.Pos,
				"member access into non-struct type %s", pointee)
		}
		idx, ok := pointee.FieldIndex(e.Field)
		if !ok {
			return Operand{}, errors.Newf(errors.ErrUnknownType, e.Pos,
				"%s has no field %q", pointee, e.Field)
		}
		res := b.fn.NewReg(types.Pointer(pointee.Field(idx).Type))
		b.emit(NewInstR(OpGep, res, base, Imm(0, types.I32()), Imm(idx, types.I32())))
		return res, nil
	}
	return Operand{}, errors.Newf(errors.ErrNotLValue, expr.Position(),
		"expression is not assignable")
}
