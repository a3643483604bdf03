package passes

import (
	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/ir"
	"github.com/Satar07/cyrilcc/internal/types"
)

// Mem2Reg promotes eligible stack slots into SSA values. An alloca is
// promotable when its pointee is scalar and its address never escapes: every
// use is the pointer operand of a LOAD or STORE. Phi nodes are placed on the
// dominance frontiers of the store blocks, then a preorder walk of the
// dominator tree renames loads to the reaching definition.
//
// Requires CFG, dominator tree and dominance frontiers to be current.
type Mem2Reg struct {
	promotable  map[string]*types.Type
	order       []string          // promotable alloca names, discovery order
	phiToAlloca map[string]string // phi result name -> alloca name
	stacks      map[string][]ir.Operand
	renameMap   map[string]ir.Operand
	toDelete    map[*ir.Instruction]bool
}

func (p *Mem2Reg) Name() string { return "mem2reg" }

func (p *Mem2Reg) Run(f *ir.Function) (bool, error) {
	if len(f.Blocks) == 0 {
		return false, nil
	}
	p.promotable = make(map[string]*types.Type)
	p.order = nil
	p.phiToAlloca = make(map[string]string)
	p.stacks = make(map[string][]ir.Operand)
	p.renameMap = make(map[string]ir.Operand)
	p.toDelete = make(map[*ir.Instruction]bool)

	p.analyzeAllocas(f)
	if len(p.order) == 0 {
		return false, nil
	}

	p.insertPhis(f)
	p.seedStacks(f)
	if err := p.rename(f.Entry()); err != nil {
		return false, err
	}
	p.cleanup(f)
	return true, nil
}

func (p *Mem2Reg) analyzeAllocas(f *ir.Function) {
	var candidates []*ir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpAlloca {
				candidates = append(candidates, inst)
			}
		}
	}

	for _, alloca := range candidates {
		ptrName := alloca.Result.Name
		pointee := alloca.Result.Type.Pointee()
		if pointee.IsArray() || pointee.IsStruct() {
			continue
		}
		if p.addressEscapes(f, ptrName) {
			continue
		}
		p.promotable[ptrName] = pointee
		p.order = append(p.order, ptrName)
	}
}

func (p *Mem2Reg) addressEscapes(f *ir.Function, ptrName string) bool {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			for i, arg := range inst.Args {
				if !arg.IsReg() || arg.Name != ptrName {
					continue
				}
				if inst.Op == ir.OpLoad && i == 0 {
					continue
				}
				if inst.Op == ir.OpStore && i == 1 {
					continue
				}
				return true
			}
		}
	}
	return false
}

// insertPhis places one phi per alloca at the top of every block in the
// iterated dominance frontier of its store blocks.
func (p *Mem2Reg) insertPhis(f *ir.Function) {
	for _, allocaName := range p.order {
		varType := p.promotable[allocaName]

		var worklist []*ir.Block
		for _, b := range f.Blocks {
			for _, inst := range b.Insts {
				if inst.Op == ir.OpStore && inst.Args[1].IsReg() && inst.Args[1].Name == allocaName {
					if !containsBlock(worklist, b) {
						worklist = append(worklist, b)
					}
					break
				}
			}
		}

		hasPhi := make(map[*ir.Block]bool)
		for len(worklist) > 0 {
			d := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, fb := range d.Frontier {
				if hasPhi[fb] {
					continue
				}
				res := f.NewReg(varType)
				phi := ir.NewInstR(ir.OpPhi, res)
				// Just after the LABEL pseudo-instruction.
				fb.Insts = append(fb.Insts[:1], append([]*ir.Instruction{phi}, fb.Insts[1:]...)...)
				hasPhi[fb] = true
				worklist = append(worklist, fb)
				p.phiToAlloca[res.Name] = allocaName
			}
		}
	}
}

// seedStacks initializes each alloca's definition stack from the first store
// in the entry block, or zero of the alloca's type when there is none.
func (p *Mem2Reg) seedStacks(f *ir.Function) {
	entry := f.Entry()
	for _, allocaName := range p.order {
		seed := ir.Imm(0, p.promotable[allocaName])
		for _, inst := range entry.Insts {
			if inst.Op == ir.OpStore && inst.Args[1].IsReg() && inst.Args[1].Name == allocaName {
				seed = inst.Args[0]
				p.toDelete[inst] = true
				break
			}
		}
		p.stacks[allocaName] = []ir.Operand{seed}
	}
}

func (p *Mem2Reg) rename(b *ir.Block) error {
	pushed := make(map[string]int)
	var renamedHere []string

	for _, inst := range b.Insts {
		if inst.Op != ir.OpPhi {
			for i, arg := range inst.Args {
				if arg.IsReg() {
					if rep, ok := p.renameMap[arg.Name]; ok {
						inst.Args[i] = rep
					}
				}
			}
		}

		switch inst.Op {
		case ir.OpAlloca:
			if _, ok := p.promotable[inst.Result.Name]; ok {
				p.toDelete[inst] = true
			}

		case ir.OpPhi:
			allocaName, ok := p.phiToAlloca[inst.Result.Name]
			if !ok {
				return errors.Internalf("mem2reg: phi %s has no alloca mapping", inst.Result.Name)
			}
			p.stacks[allocaName] = append(p.stacks[allocaName], *inst.Result)
			pushed[allocaName]++

		case ir.OpLoad:
			if !inst.Args[0].IsReg() {
				break
			}
			allocaName := inst.Args[0].Name
			if _, ok := p.promotable[allocaName]; !ok {
				break
			}
			stack := p.stacks[allocaName]
			p.renameMap[inst.Result.Name] = stack[len(stack)-1]
			renamedHere = append(renamedHere, inst.Result.Name)
			p.toDelete[inst] = true

		case ir.OpStore:
			if !inst.Args[1].IsReg() {
				break
			}
			allocaName := inst.Args[1].Name
			if _, ok := p.promotable[allocaName]; !ok {
				break
			}
			p.stacks[allocaName] = append(p.stacks[allocaName], inst.Args[0])
			pushed[allocaName]++
			p.toDelete[inst] = true
		}
	}

	// Fill successor phis with the value reaching them along this edge.
	for _, s := range b.Succs {
		for _, inst := range s.Insts {
			if inst.Op == ir.OpLabel {
				continue
			}
			if inst.Op != ir.OpPhi {
				break
			}
			allocaName := p.phiToAlloca[inst.Result.Name]
			stack := p.stacks[allocaName]
			if len(stack) == 0 {
				return errors.Internalf("mem2reg: empty definition stack for %s filling phi in %s",
					allocaName, s.Label)
			}
			inst.Args = append(inst.Args, stack[len(stack)-1], ir.LabelRef(b.Label))
		}
	}

	for _, c := range b.DomChildren {
		if err := p.rename(c); err != nil {
			return err
		}
	}

	for name, n := range pushed {
		p.stacks[name] = p.stacks[name][:len(p.stacks[name])-n]
	}
	for _, name := range renamedHere {
		delete(p.renameMap, name)
	}
	return nil
}

func (p *Mem2Reg) cleanup(f *ir.Function) {
	for _, b := range f.Blocks {
		kept := b.Insts[:0]
		for _, inst := range b.Insts {
			if !p.toDelete[inst] {
				kept = append(kept, inst)
			}
		}
		b.Insts = kept
	}
}
