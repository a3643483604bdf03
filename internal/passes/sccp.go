package passes

import (
	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/ir"
)

// latticeState is the three-point SCCP lattice: UNKNOWN ⊏ CONST ⊏ NOT_CONST.
type latticeState int

const (
	latUnknown latticeState = iota
	latConst
	latNotConst
)

type latticeValue struct {
	state latticeState
	value int
}

func unknown() latticeValue  { return latticeValue{state: latUnknown} }
func notConst() latticeValue { return latticeValue{state: latNotConst} }

func constant(v int) latticeValue {
	return latticeValue{state: latConst, value: v}
}

func (l latticeValue) isConst() bool    { return l.state == latConst }
func (l latticeValue) isNotConst() bool { return l.state == latNotConst }
func (l latticeValue) isUnknown() bool  { return l.state == latUnknown }

func (l latticeValue) equal(o latticeValue) bool {
	if l.state != o.state {
		return false
	}
	return l.state != latConst || l.value == o.value
}

// meet: NOT_CONST absorbs, UNKNOWN is the identity, equal constants meet to
// themselves and unequal constants to NOT_CONST.
func (l latticeValue) meet(o latticeValue) latticeValue {
	if l.isNotConst() || o.isNotConst() {
		return notConst()
	}
	if l.isUnknown() {
		return o
	}
	if o.isUnknown() {
		return l
	}
	if l.value == o.value {
		return l
	}
	return notConst()
}

// SCCP runs Sparse Conditional Constant Propagation over the SSA form,
// jointly propagating register lattice values and block reachability.
// Requires the DataFlow maps to be current; the IR must be in SSA form.
type SCCP struct {
	fn         *ir.Function
	values     map[string]latticeValue
	executable map[*ir.Block]bool

	// Names with more than one defining instruction. DeSSA output is not in
	// SSA form; pinning such names to NOT_CONST keeps a rerun of the
	// pipeline sound and change-free.
	multiDef map[string]bool

	blockWorklist []*ir.Block
	ssaWorklist   []*ir.Instruction

	changed bool
}

func (p *SCCP) Name() string { return "sccp" }

func (p *SCCP) Run(f *ir.Function) (bool, error) {
	if len(f.Blocks) == 0 {
		return false, nil
	}
	p.fn = f
	p.values = make(map[string]latticeValue)
	p.executable = make(map[*ir.Block]bool)
	p.blockWorklist = nil
	p.ssaWorklist = nil
	p.changed = false

	for _, param := range f.Params {
		p.values[param.Name] = notConst()
	}

	p.multiDef = make(map[string]bool)
	defCount := make(map[string]int)
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Result != nil && inst.Result.IsReg() {
				defCount[inst.Result.Name]++
			}
		}
	}
	for name, n := range defCount {
		if n > 1 {
			p.multiDef[name] = true
			p.values[name] = notConst()
		}
	}

	p.markExecutable(f.Entry())

	for len(p.blockWorklist) > 0 || len(p.ssaWorklist) > 0 {
		for len(p.blockWorklist) > 0 {
			b := p.blockWorklist[0]
			p.blockWorklist = p.blockWorklist[1:]

			for _, inst := range b.Insts {
				if inst.IsTerminator() || inst.Op == ir.OpTest {
					break
				}
				if err := p.visitInst(inst); err != nil {
					return false, err
				}
			}
			if err := p.visitTerminator(b); err != nil {
				return false, err
			}
		}

		for len(p.ssaWorklist) > 0 {
			inst := p.ssaWorklist[0]
			p.ssaWorklist = p.ssaWorklist[1:]
			if p.executable[p.fn.BlockOf[inst]] {
				if err := p.visitInst(inst); err != nil {
					return false, err
				}
			}
		}
	}

	p.transform()
	return p.changed, nil
}

func (p *SCCP) operandValue(op ir.Operand) latticeValue {
	switch op.Kind {
	case ir.KindImm:
		return constant(op.Imm)
	case ir.KindReg:
		if v, ok := p.values[op.Name]; ok {
			return v
		}
		return unknown()
	default:
		// Globals and labels are never constants.
		return notConst()
	}
}

// setValue records a new lattice value for an instruction's result and, if
// it changed, queues the users for re-evaluation. Users that feed branches
// requeue the whole block so the terminator chain is revisited.
func (p *SCCP) setValue(inst *ir.Instruction, v latticeValue) {
	if inst.Result == nil {
		return
	}
	name := inst.Result.Name
	if p.multiDef[name] {
		v = notConst()
	}
	if old, ok := p.values[name]; ok && old.equal(v) {
		return
	}
	p.values[name] = v
	p.changed = true

	for _, user := range p.fn.Uses[inst] {
		userBlock := p.fn.BlockOf[user]
		if !p.executable[userBlock] {
			continue
		}
		if user.Op == ir.OpTest || user.IsTerminator() {
			p.blockWorklist = append(p.blockWorklist, userBlock)
			continue
		}
		p.ssaWorklist = append(p.ssaWorklist, user)
	}
}

// markExecutable marks a block reachable, queues it, and queues its phis and
// its successors' phis, whose meets depend on edge executability.
func (p *SCCP) markExecutable(b *ir.Block) {
	if b == nil || p.executable[b] {
		return
	}
	p.executable[b] = true
	p.blockWorklist = append(p.blockWorklist, b)
	p.changed = true

	queuePhis := func(blk *ir.Block) {
		for _, inst := range blk.Insts {
			if inst.Op == ir.OpLabel {
				continue
			}
			if inst.Op != ir.OpPhi {
				break
			}
			p.ssaWorklist = append(p.ssaWorklist, inst)
		}
	}
	queuePhis(b)
	for _, s := range b.Succs {
		queuePhis(s)
	}
}

func (p *SCCP) visitInst(inst *ir.Instruction) error {
	switch {
	case inst.Op == ir.OpPhi:
		// Meet over executable incoming edges only.
		v := unknown()
		for i := 0; i+1 < len(inst.Args); i += 2 {
			pred, ok := p.fn.BlockByLabel[inst.Args[i+1].Name]
			if !ok {
				return errors.Internalf("sccp: phi references unknown block %s", inst.Args[i+1].Name)
			}
			if p.executable[pred] {
				v = v.meet(p.operandValue(inst.Args[i]))
			}
		}
		p.setValue(inst, v)

	case inst.IsCalc():
		lhs := p.operandValue(inst.Args[0])
		rhs := p.operandValue(inst.Args[1])
		switch {
		case lhs.isUnknown() || rhs.isUnknown():
			p.setValue(inst, unknown())
		case lhs.isConst() && rhs.isConst():
			if inst.Op == ir.OpDiv && rhs.value == 0 {
				p.setValue(inst, notConst())
				return nil
			}
			p.setValue(inst, constant(fold(inst.Op, lhs.value, rhs.value)))
		default:
			p.setValue(inst, notConst())
		}

	case inst.Op == ir.OpMove:
		p.setValue(inst, p.operandValue(inst.Args[0]))

	default:
		// CALL, LOAD, GEP, INPUT and friends are opaque.
		if inst.Result != nil {
			p.setValue(inst, notConst())
		}
	}
	return nil
}

func fold(op ir.Op, a, b int) int {
	switch op {
	case ir.OpAdd:
		return a + b
	case ir.OpSub:
		return a - b
	case ir.OpMul:
		return a * b
	case ir.OpDiv:
		return a / b
	}
	return 0
}

// visitTerminator walks the block's terminator chain: a series of TESTs,
// each supplying operands to the conditional branches that follow it, ended
// by a RET or an unconditional BR. Constant conditions mark only the winning
// target; anything else marks conservatively.
func (p *SCCP) visitTerminator(b *ir.Block) error {
	if len(b.Succs) == 0 {
		return nil
	}
	if len(b.Succs) == 1 {
		p.markExecutable(b.Succs[0])
		return nil
	}

	var lastTest *ir.Instruction
	for _, inst := range b.Insts {
		switch {
		case inst.Op == ir.OpTest:
			lastTest = inst

		case inst.Op == ir.OpRet:
			return nil

		case inst.Op == ir.OpBr:
			p.markExecutable(p.fn.BlockByLabel[inst.Args[0].Name])
			return nil

		case inst.IsCondBranch():
			target := p.fn.BlockByLabel[inst.Args[0].Name]
			if lastTest == nil {
				p.markExecutable(target)
				continue
			}
			lhs := p.operandValue(lastTest.Args[0])
			rhs := p.operandValue(lastTest.Args[1])
			if !lhs.isConst() || !rhs.isConst() {
				p.markExecutable(target)
				continue
			}
			if condHolds(inst.Op, lhs.value, rhs.value) {
				p.markExecutable(target)
				return nil
			}
		}
	}
	return nil
}

func condHolds(op ir.Op, l, r int) bool {
	switch op {
	case ir.OpBrz:
		return l == r
	case ir.OpBrlt:
		return l < r
	case ir.OpBrgt:
		return l > r
	}
	return false
}

// transform rewrites the IR from the fixed point: dead blocks are gutted to
// their LABEL, constant results become MOVE imm, and branches with constant
// conditions fold to BR (taken) or disappear (not taken).
func (p *SCCP) transform() {
	if !p.changed {
		return
	}

	toDelete := make(map[*ir.Instruction]bool)
	type branchRewrite struct{ inst *ir.Instruction }
	var foldToBr []branchRewrite
	type constRewrite struct {
		inst  *ir.Instruction
		value int
	}
	var toConst []constRewrite

	for _, b := range p.fn.Blocks {
		if !p.executable[b] {
			for _, inst := range b.Insts {
				if inst.Op != ir.OpLabel {
					toDelete[inst] = true
				}
			}
			continue
		}

		terminatorFolded := false
		var lastTest *ir.Instruction
		for _, inst := range b.Insts {
			if terminatorFolded {
				toDelete[inst] = true
				continue
			}

			if inst.Result != nil {
				if v, ok := p.values[inst.Result.Name]; ok && v.isConst() {
					toConst = append(toConst, constRewrite{inst, v.value})
				}
			}

			switch {
			case inst.Op == ir.OpTest:
				lastTest = inst

			case inst.Op == ir.OpBr || inst.Op == ir.OpRet:
				terminatorFolded = true

			case inst.IsCondBranch():
				if lastTest == nil {
					continue
				}
				lhs := p.operandValue(lastTest.Args[0])
				rhs := p.operandValue(lastTest.Args[1])
				if !lhs.isConst() || !rhs.isConst() {
					continue
				}
				if condHolds(inst.Op, lhs.value, rhs.value) {
					foldToBr = append(foldToBr, branchRewrite{inst})
					terminatorFolded = true
				} else {
					// Never taken; the following branch stays live.
					toDelete[inst] = true
				}
			}
		}
	}

	for _, c := range toConst {
		if toDelete[c.inst] {
			continue
		}
		c.inst.Op = ir.OpMove
		c.inst.Args = []ir.Operand{ir.Imm(c.value, c.inst.Result.Type)}
	}

	for _, r := range foldToBr {
		if toDelete[r.inst] {
			continue
		}
		r.inst.Op = ir.OpBr
		r.inst.Args = r.inst.Args[:1]
	}

	if len(toDelete) > 0 {
		for _, b := range p.fn.Blocks {
			kept := b.Insts[:0]
			for _, inst := range b.Insts {
				if !toDelete[inst] {
					kept = append(kept, inst)
				}
			}
			b.Insts = kept
		}
	}
}
