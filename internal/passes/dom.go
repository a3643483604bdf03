package passes

import (
	"github.com/Satar07/cyrilcc/internal/ir"
)

// DominatorTree computes immediate dominators with the classic iterative
// dataflow: Dom(entry) = {entry}, Dom(N) = {N} ∪ ⋂ Dom(P) over preds, with
// non-entry sets initialized to the universe. The immediate dominator of N
// is the element of Dom(N)\{N} dominated by every other element.
type DominatorTree struct{}

func (p *DominatorTree) Name() string { return "dominator-tree" }

func (p *DominatorTree) Run(f *ir.Function) (bool, error) {
	if len(f.Blocks) == 0 {
		return false, nil
	}
	for _, b := range f.Blocks {
		b.Idom = nil
		b.DomChildren = nil
	}

	entry := f.Blocks[0]
	dom := make(map[*ir.Block]map[*ir.Block]bool, len(f.Blocks))
	all := make(map[*ir.Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		all[b] = true
	}
	dom[entry] = map[*ir.Block]bool{entry: true}
	for _, b := range f.Blocks[1:] {
		dom[b] = copySet(all)
	}

	for changed := true; changed; {
		changed = false
		for _, b := range f.Blocks[1:] {
			var next map[*ir.Block]bool
			for _, pred := range b.Preds {
				if next == nil {
					next = copySet(dom[pred])
					continue
				}
				for d := range next {
					if !dom[pred][d] {
						delete(next, d)
					}
				}
			}
			if next == nil {
				next = map[*ir.Block]bool{}
			}
			next[b] = true
			if !sameSet(dom[b], next) {
				dom[b] = next
				changed = true
			}
		}
	}

	// Idom extraction. Iterate candidates in block order so the (unique)
	// answer is found deterministically.
	for _, n := range f.Blocks[1:] {
		for _, d := range f.Blocks {
			if d == n || !dom[n][d] {
				continue
			}
			isIdom := true
			for m := range dom[n] {
				if m == n || m == d {
					continue
				}
				if !dom[d][m] {
					isIdom = false
					break
				}
			}
			if isIdom {
				n.Idom = d
				d.DomChildren = append(d.DomChildren, n)
				break
			}
		}
	}
	return false, nil
}

func copySet(s map[*ir.Block]bool) map[*ir.Block]bool {
	out := make(map[*ir.Block]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func sameSet(a, b map[*ir.Block]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// DominanceFrontier computes DF(n) = DF_local(n) ∪ ⋃ DF_up(c) per Cytron et
// al., by a post-order walk of the dominator tree. Frontier sets are kept as
// ordered slices so phi insertion order is stable.
type DominanceFrontier struct{}

func (p *DominanceFrontier) Name() string { return "dominance-frontier" }

func (p *DominanceFrontier) Run(f *ir.Function) (bool, error) {
	if len(f.Blocks) == 0 {
		return false, nil
	}
	for _, b := range f.Blocks {
		b.Frontier = nil
	}
	computeFrontier(f.Blocks[0])
	return false, nil
}

func computeFrontier(n *ir.Block) {
	for _, s := range n.Succs {
		if s.Idom != n {
			addFrontier(n, s)
		}
	}
	for _, c := range n.DomChildren {
		computeFrontier(c)
		for _, w := range c.Frontier {
			if !strictlyDominates(n, w) {
				addFrontier(n, w)
			}
		}
	}
}

func addFrontier(n, w *ir.Block) {
	if !containsBlock(n.Frontier, w) {
		n.Frontier = append(n.Frontier, w)
	}
}

func strictlyDominates(n, w *ir.Block) bool {
	for d := w.Idom; d != nil; d = d.Idom {
		if d == n {
			return true
		}
		if d == d.Idom {
			break
		}
	}
	return false
}

// DataFlow rebuilds the function's derived maps: label to block, instruction
// to containing block, register name to defining instruction, and def to
// uses. A use is any register operand in an argument list, never the result
// slot. It must rerun after any pass that adds or removes instructions or
// blocks.
type DataFlow struct{}

func (p *DataFlow) Name() string { return "dataflow" }

func (p *DataFlow) Run(f *ir.Function) (bool, error) {
	f.BlockByLabel = make(map[string]*ir.Block, len(f.Blocks))
	f.BlockOf = make(map[*ir.Instruction]*ir.Block)
	f.DefOf = make(map[string]*ir.Instruction)
	f.Uses = make(map[*ir.Instruction][]*ir.Instruction)

	for _, b := range f.Blocks {
		f.BlockByLabel[b.Label] = b
		for _, inst := range b.Insts {
			f.BlockOf[inst] = b
			if inst.Result != nil && inst.Result.IsReg() {
				f.DefOf[inst.Result.Name] = inst
				f.Uses[inst] = nil
			}
		}
	}

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			for _, arg := range inst.Args {
				if !arg.IsReg() {
					continue
				}
				if def, ok := f.DefOf[arg.Name]; ok {
					f.Uses[def] = append(f.Uses[def], inst)
				}
			}
		}
	}
	return false, nil
}
