package ir

import (
	"fmt"

	"github.com/Satar07/cyrilcc/internal/types"
)

// OperandKind discriminates the four operand forms.
type OperandKind int

const (
	KindImm OperandKind = iota
	KindReg
	KindLabel
	KindGlobal
)

// Operand is a typed instruction operand. Operands are small values and are
// copied freely; identity lives in the Name for registers, labels and
// globals.
type Operand struct {
	Kind OperandKind
	Imm  int    // immediate value when Kind == KindImm
	Name string // "%n" register, label, or "@name" global
	Type *types.Type
}

// Imm creates an immediate operand.
func Imm(v int, t *types.Type) Operand {
	return Operand{Kind: KindImm, Imm: v, Type: t}
}

// Reg creates a register operand.
func Reg(name string, t *types.Type) Operand {
	return Operand{Kind: KindReg, Name: name, Type: t}
}

// LabelRef creates a label operand. Labels always carry the void type.
func LabelRef(name string) Operand {
	return Operand{Kind: KindLabel, Name: name, Type: types.Void()}
}

// GlobalRef creates a global operand.
func GlobalRef(name string, t *types.Type) Operand {
	return Operand{Kind: KindGlobal, Name: name, Type: t}
}

func (o Operand) IsImm() bool    { return o.Kind == KindImm }
func (o Operand) IsReg() bool    { return o.Kind == KindReg }
func (o Operand) IsLabel() bool  { return o.Kind == KindLabel }
func (o Operand) IsGlobal() bool { return o.Kind == KindGlobal }

func (o Operand) String() string {
	switch o.Kind {
	case KindImm:
		return fmt.Sprintf("%d", o.Imm)
	case KindReg, KindGlobal:
		return o.Name
	case KindLabel:
		return "label " + o.Name
	}
	return "?"
}
