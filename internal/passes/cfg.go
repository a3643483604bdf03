package passes

import (
	"github.com/Satar07/cyrilcc/internal/ir"
)

// BuildCFG wires successor/predecessor edges from block terminators. A
// conditional branch adds its target; the final unconditional branch
// supplies the remaining successor. A block with no unconditional terminator
// falls through to the next lexical block; the fall-through is materialized
// as an explicit br so every block ends terminated.
type BuildCFG struct{}

func (p *BuildCFG) Name() string { return "build-cfg" }

func (p *BuildCFG) Run(f *ir.Function) (bool, error) {
	byLabel := make(map[string]*ir.Block, len(f.Blocks))
	for _, b := range f.Blocks {
		byLabel[b.Label] = b
		b.Succs = nil
		b.Preds = nil
	}

	changed := false
	for i, b := range f.Blocks {
		unconditional := false
		for _, inst := range b.Insts {
			switch inst.Op {
			case ir.OpRet:
				unconditional = true
			case ir.OpBr:
				if t, ok := byLabel[inst.Args[0].Name]; ok {
					addEdge(b, t)
				}
				unconditional = true
			case ir.OpBrz, ir.OpBrlt, ir.OpBrgt:
				if t, ok := byLabel[inst.Args[0].Name]; ok {
					addEdge(b, t)
				}
			}
		}
		if !unconditional && i+1 < len(f.Blocks) {
			next := f.Blocks[i+1]
			b.Append(ir.NewInst(ir.OpBr, ir.LabelRef(next.Label)))
			addEdge(b, next)
			changed = true
		}
	}
	return changed, nil
}

func addEdge(from, to *ir.Block) {
	if !containsBlock(from.Succs, to) {
		from.Succs = append(from.Succs, to)
	}
	if !containsBlock(to.Preds, from) {
		to.Preds = append(to.Preds, from)
	}
}

func containsBlock(s []*ir.Block, b *ir.Block) bool {
	for _, x := range s {
		if x == b {
			return true
		}
	}
	return false
}

// DeadBlockElim iteratively removes non-entry blocks with no predecessors
// until a fixed point, then prunes phi argument pairs that named a removed
// predecessor. It must run before dominator analysis, and again after SCCP
// to drop the blocks it proved unreachable.
type DeadBlockElim struct{}

func (p *DeadBlockElim) Name() string { return "dead-block-elim" }

func (p *DeadBlockElim) Run(f *ir.Function) (bool, error) {
	if len(f.Blocks) == 0 {
		return false, nil
	}
	changed := false
	removedLabels := make(map[string]bool)

	for {
		dead := make(map[*ir.Block]bool)
		for _, b := range f.Blocks[1:] {
			if len(b.Preds) == 0 {
				dead[b] = true
			}
		}
		if len(dead) == 0 {
			break
		}
		changed = true

		for _, b := range f.Blocks {
			b.Preds = filterBlocks(b.Preds, dead)
		}

		kept := f.Blocks[:1]
		for _, b := range f.Blocks[1:] {
			if dead[b] {
				removedLabels[b.Label] = true
				continue
			}
			kept = append(kept, b)
		}
		f.Blocks = kept
	}

	if len(removedLabels) > 0 {
		prunePhiArgs(f, removedLabels)
	}
	return changed, nil
}

// prunePhiArgs drops (value, label) pairs whose predecessor block no longer
// exists.
func prunePhiArgs(f *ir.Function, removed map[string]bool) {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpLabel {
				continue
			}
			if inst.Op != ir.OpPhi {
				break
			}
			args := inst.Args[:0]
			for i := 0; i+1 < len(inst.Args); i += 2 {
				if removed[inst.Args[i+1].Name] {
					continue
				}
				args = append(args, inst.Args[i], inst.Args[i+1])
			}
			inst.Args = args
		}
	}
}

func filterBlocks(s []*ir.Block, drop map[*ir.Block]bool) []*ir.Block {
	out := s[:0]
	for _, b := range s {
		if !drop[b] {
			out = append(out, b)
		}
	}
	return out
}
