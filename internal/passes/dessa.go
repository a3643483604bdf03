package passes

import (
	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/ir"
)

// DeSSA destructs phi nodes into copies on the predecessor edges. Copies are
// scheduled in two stages: every incoming value is first read into a fresh
// temporary, and only then are the destinations written. This makes parallel
// assignments like a←b, b←a correct without cycle detection.
type DeSSA struct{}

func (p *DeSSA) Name() string { return "dessa" }

type pendingCopy struct {
	dest ir.Operand
	src  ir.Operand
}

func (p *DeSSA) Run(f *ir.Function) (bool, error) {
	byLabel := make(map[string]*ir.Block, len(f.Blocks))
	for _, b := range f.Blocks {
		byLabel[b.Label] = b
	}

	// Collect copies per predecessor. Predecessor order follows block and
	// phi order so the minted temporaries are deterministic.
	pending := make(map[*ir.Block][]pendingCopy)
	var predOrder []*ir.Block
	phisToDelete := make(map[*ir.Instruction]bool)

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpLabel {
				continue
			}
			if inst.Op != ir.OpPhi {
				break
			}
			dest := *inst.Result
			for i := 0; i+1 < len(inst.Args); i += 2 {
				src := inst.Args[i]
				predLabel := inst.Args[i+1].Name
				pred, ok := byLabel[predLabel]
				if !ok {
					return false, errors.Internalf("dessa: phi in %s references unknown block %s",
						b.Label, predLabel)
				}
				if _, seen := pending[pred]; !seen {
					predOrder = append(predOrder, pred)
				}
				pending[pred] = append(pending[pred], pendingCopy{dest: dest, src: src})
			}
			phisToDelete[inst] = true
		}
	}

	if len(phisToDelete) == 0 {
		return false, nil
	}

	for _, pred := range predOrder {
		copies := pending[pred]

		stage1 := make([]*ir.Instruction, 0, len(copies))
		stage2 := make([]*ir.Instruction, 0, len(copies))
		for _, c := range copies {
			tmp := f.NewReg(c.src.Type)
			stage1 = append(stage1, ir.NewInstR(ir.OpMove, tmp, c.src))
			stage2 = append(stage2, ir.NewInstR(ir.OpMove, c.dest, tmp))
		}

		at := terminatorChainStart(pred)
		moved := append(stage1, stage2...)
		pred.Insts = append(pred.Insts[:at], append(moved, pred.Insts[at:]...)...)
	}

	for _, b := range f.Blocks {
		kept := b.Insts[:0]
		for _, inst := range b.Insts {
			if !phisToDelete[inst] {
				kept = append(kept, inst)
			}
		}
		b.Insts = kept
	}
	return true, nil
}

// terminatorChainStart returns the index of the first instruction of the
// block's terminator chain (the first TEST or branch), so inserted copies
// never separate a TEST from its conditional branches. Gutted blocks have no
// terminator; copies then go at the end.
func terminatorChainStart(b *ir.Block) int {
	for i, inst := range b.Insts {
		if inst.Op == ir.OpTest || inst.IsTerminator() {
			return i
		}
	}
	return len(b.Insts)
}
