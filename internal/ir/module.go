package ir

import (
	"fmt"

	"github.com/Satar07/cyrilcc/internal/types"
)

// Block is a basic block: a LABEL pseudo-instruction followed by straight
// line code and, after CFG construction, a terminator. The CFG and dominator
// fields are derived state owned by the analysis passes.
type Block struct {
	Label string
	Insts []*Instruction

	// CFG edges, filled by the BuildCFG pass. No duplicates.
	Succs []*Block
	Preds []*Block

	// Dominator tree, filled by the DominatorTree pass.
	Idom        *Block
	DomChildren []*Block

	// Dominance frontier, filled by the DominanceFrontier pass. Ordered and
	// deduplicated so downstream phi insertion is deterministic.
	Frontier []*Block
}

// Append adds an instruction at the end of the block.
func (b *Block) Append(inst *Instruction) {
	b.Insts = append(b.Insts, inst)
}

// Terminated reports whether the block's last instruction ends it.
func (b *Block) Terminated() bool {
	if len(b.Insts) == 0 {
		return false
	}
	return b.Insts[len(b.Insts)-1].IsTerminator()
}

// Function owns its blocks; the first block is the entry. Params hold the
// incoming SSA registers in declaration order. The maps after regCounter are
// derived state rebuilt by the DataFlow pass after structural changes.
type Function struct {
	Name       string // "@name"
	ReturnType *types.Type
	Params     []Operand
	Blocks     []*Block

	// Local symbol table: source name to the slot pointer from its alloca.
	Symbols map[string]Operand

	regCounter int

	// Derived maps, valid between a DataFlow run and the next structural
	// change.
	BlockByLabel map[string]*Block
	BlockOf      map[*Instruction]*Block
	DefOf        map[string]*Instruction
	Uses         map[*Instruction][]*Instruction
}

// NewFunction creates an empty function.
func NewFunction(name string, ret *types.Type) *Function {
	return &Function{
		Name:       name,
		ReturnType: ret,
		Symbols:    make(map[string]Operand),
	}
}

// Entry returns the entry block.
func (f *Function) Entry() *Block { return f.Blocks[0] }

// NewReg mints a fresh SSA register of the given type.
func (f *Function) NewReg(t *types.Type) Operand {
	name := fmt.Sprintf("%%%d", f.regCounter)
	f.regCounter++
	return Reg(name, t)
}

// Global is a module-level variable. Init carries the raw bytes of a string
// literal; it is empty for ordinary globals, which are zero-initialized.
type Global struct {
	Name string // "@name"
	Type *types.Type
	Init string
}

// IsString reports whether the global is a string literal.
func (g *Global) IsString() bool {
	return g.Type.IsPointer() && g.Type.Pointee().IsChar() && g.Init != ""
}

// Module is one translation unit: functions, globals and the symbol table
// mapping source names to their global operands.
type Module struct {
	Functions []*Function
	Globals   []Global
	Symbols   map[string]Operand
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{Symbols: make(map[string]Operand)}
}
