package codegen

import (
	"fmt"
	"strconv"

	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/ir"
	"github.com/Satar07/cyrilcc/internal/types"
)

// Generator lowers a post-SSA module to assembly text for the target VM.
//
// Values are kept in registers opportunistically by a greedy cache backed by
// per-value "home" slots in the frame. The cache is local to straight-line
// code: it is written back and emptied at every label, branch and call, so
// across any control-flow boundary values live only in their home slots.
type Generator struct {
	mod *ir.Module
	e   emitter

	globalLabels map[string]string // "@g" -> "VARg", "@str0" -> "STRstr0", "@f" -> "FUNCf"

	// Per-function state.
	allocaOff   map[string]int // alloca result -> FP-relative slot offset
	tempHome    map[string]int // value name -> FP-relative home offset
	tempType    map[string]*types.Type
	regCache    map[string]int // value name -> physical register
	regCacheRev map[int]string
	frameSize   int

	labelCounter int // internal "LL<n>" labels
}

// Generate renders the whole module.
func Generate(mod *ir.Module) ([]byte, error) {
	g := &Generator{mod: mod}
	g.collectSymbols()

	g.e.section("Text Segment")
	g.e.inst(fmt.Sprintf("LOD R%d, %d", regSP, initialSP), "init stack pointer")
	g.e.inst(fmt.Sprintf("LOD R%d, R%d", regFP, regSP), "init frame pointer")
	g.e.inst(fmt.Sprintf("LOD R%d, EXIT", regRA), "main return point")
	g.e.inst("JMP FUNCmain", "")
	g.e.label("EXIT")
	g.e.inst("END", "")

	for _, f := range mod.Functions {
		if err := g.genFunction(f); err != nil {
			return nil, err
		}
	}

	g.genGlobals()
	return g.e.bytes(), nil
}

func (g *Generator) collectSymbols() {
	g.globalLabels = make(map[string]string)
	for i := range g.mod.Globals {
		glob := &g.mod.Globals[i]
		if glob.IsString() {
			g.globalLabels[glob.Name] = "STR" + glob.Name[1:]
		} else {
			g.globalLabels[glob.Name] = "VAR" + glob.Name[1:]
		}
	}
	for _, f := range g.mod.Functions {
		g.globalLabels[f.Name] = "FUNC" + f.Name[1:]
	}
}

func (g *Generator) genGlobals() {
	g.e.section("Data Segment")
	for i := range g.mod.Globals {
		glob := &g.mod.Globals[i]
		g.e.label(g.globalLabels[glob.Name])
		if glob.IsString() {
			dbs := "DBS "
			for _, c := range []byte(glob.Init) {
				dbs += strconv.Itoa(int(c)) + ", "
			}
			dbs += "0"
			g.e.inst(dbs, "string: "+strconv.Quote(glob.Init))
		} else {
			g.e.inst(fmt.Sprintf("DBN 0, %d", glob.Type.Size()), "global: "+glob.Name)
		}
	}
}

// genFunction plans the frame, emits the prologue and lowers every
// instruction in block order.
func (g *Generator) genFunction(f *ir.Function) error {
	g.e.section("Function: " + f.Name)
	g.e.label(g.globalLabels[f.Name])

	g.allocaOff = make(map[string]int)
	g.tempHome = make(map[string]int)
	g.tempType = make(map[string]*types.Type)
	g.regCache = make(map[string]int)
	g.regCacheRev = make(map[int]string)

	localSize := 0
	stackParamOff := 12 // above saved RA (FP+4) and old FP (FP+8)

	for i, param := range f.Params {
		g.tempType[param.Name] = param.Type
		if i < maxRegParams {
			size := 4
			if param.Type.IsChar() {
				size = 1
			}
			localSize += size
			g.tempHome[param.Name] = -localSize
		} else {
			// Stack-passed parameter homes live in the caller's frame.
			g.tempHome[param.Name] = stackParamOff
			stackParamOff += 4
		}
	}

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpAlloca {
				localSize += inst.Result.Type.Pointee().Size()
				g.allocaOff[inst.Result.Name] = -localSize
				continue
			}
			if inst.Result != nil && !inst.Result.Type.IsVoid() {
				localSize += inst.Result.Type.Size()
				g.tempHome[inst.Result.Name] = -localSize
				g.tempType[inst.Result.Name] = inst.Result.Type
			}
		}
	}
	g.frameSize = localSize

	// Prologue.
	g.e.inst(fmt.Sprintf("STO (R%d), R%d", regSP, regFP), "push old FP")
	g.e.inst(fmt.Sprintf("SUB R%d, 4", regSP), "")
	g.e.inst(fmt.Sprintf("STO (R%d), R%d", regSP, regRA), "push return address")
	g.e.inst(fmt.Sprintf("SUB R%d, 4", regSP), "")
	g.e.inst(fmt.Sprintf("LOD R%d, R%d", regFP, regSP), "FP = SP")
	if g.frameSize > 0 {
		g.e.inst(fmt.Sprintf("SUB R%d, %d", regSP, g.frameSize), "allocate frame")
	}

	for i, param := range f.Params {
		if i >= maxRegParams {
			break
		}
		mn := memOpForType(param.Type, false)
		g.e.inst(fmt.Sprintf("%s (R%d%s), R%d", mn, regFP, fmtOffset(g.tempHome[param.Name]), regRetVal+i),
			"store param "+param.Name)
	}

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if err := g.genInst(inst); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Generator) genInst(inst *ir.Instruction) error {
	switch inst.Op {
	case ir.OpLabel:
		if err := g.spillAll("label"); err != nil {
			return err
		}
		g.e.label(inst.Args[0].Name)
		return nil

	case ir.OpRet:
		if len(inst.Args) > 0 {
			if err := g.ensureInReg(inst.Args[0], regRetVal); err != nil {
				return err
			}
		}
		g.e.inst(fmt.Sprintf("LOD R%d, R%d", regSP, regFP), "restore SP")
		g.e.inst(fmt.Sprintf("LOD R%d, (R%d + 4)", regRA, regSP), "pop RA")
		g.e.inst(fmt.Sprintf("LOD R%d, (R%d + 8)", regFP, regSP), "pop old FP")
		g.e.inst(fmt.Sprintf("ADD R%d, 8", regSP), "cleanup stack")
		g.e.inst(fmt.Sprintf("JMP R%d", regRA), "return")
		return nil

	case ir.OpBr:
		if err := g.spillAll("br"); err != nil {
			return err
		}
		target, err := g.asmLabel(inst.Args[0])
		if err != nil {
			return err
		}
		g.e.inst("JMP "+target, "")
		return nil

	case ir.OpTest:
		return g.genTest(inst)

	case ir.OpBrz, ir.OpBrlt, ir.OpBrgt:
		if err := g.spillAll("branch"); err != nil {
			return err
		}
		target, err := g.asmLabel(inst.Args[0])
		if err != nil {
			return err
		}
		mn := map[ir.Op]string{ir.OpBrz: "JEZ", ir.OpBrlt: "JLZ", ir.OpBrgt: "JGZ"}[inst.Op]
		g.e.inst(mn+" "+target, "")
		return nil

	case ir.OpAlloca:
		// Slot reserved during frame planning.
		return nil

	case ir.OpLoad:
		return g.genLoad(inst)

	case ir.OpStore:
		return g.genStore(inst)

	case ir.OpGep:
		return g.genGep(inst)

	case ir.OpMove:
		if err := g.ensureInReg(inst.Args[0], regT0); err != nil {
			return err
		}
		return g.assignToReg(*inst.Result, regT0)

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		return g.genBinary(inst)

	case ir.OpCall:
		return g.genCall(inst)

	case ir.OpInputI32, ir.OpInputI8:
		if err := g.spillReg(regIO, "input"); err != nil {
			return err
		}
		if inst.Op == ir.OpInputI32 {
			g.e.inst("ITI", "")
		} else {
			g.e.inst("ITC", "")
		}
		return g.assignToReg(*inst.Result, regIO)

	case ir.OpOutputI32, ir.OpOutputI8, ir.OpOutputStr:
		if err := g.ensureInReg(inst.Args[0], regIO); err != nil {
			return err
		}
		switch inst.Op {
		case ir.OpOutputI32:
			g.e.inst("OTI", "")
		case ir.OpOutputI8:
			g.e.inst("OTC", "")
		default:
			g.e.inst("OTS", "")
		}
		return nil
	}
	return errors.Internalf("codegen: unhandled opcode %s", inst.Op)
}

// genTest computes lhs-rhs into R10 and sets the VM flags. The cache is
// written back before TST so the conditional branches that follow are
// immediately preceded by it in the output.
func (g *Generator) genTest(inst *ir.Instruction) error {
	if err := g.ensureInReg(inst.Args[0], regT0); err != nil {
		return err
	}
	if err := g.ensureInReg(inst.Args[1], regT1); err != nil {
		return err
	}
	if err := g.spillReg(regT2, "test"); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("LOD R%d, R%d", regT2, regT0), "copy lhs")
	g.e.inst(fmt.Sprintf("SUB R%d, R%d", regT2, regT1), "lhs - rhs")
	if err := g.spillAll("test"); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("TST R%d", regT2), "")
	return nil
}

func (g *Generator) genLoad(inst *ir.Instruction) error {
	src := inst.Args[0]
	mn, err := memOpForPtr(src.Type, true)
	if err != nil {
		return err
	}
	if err := g.assignToReg(*inst.Result, regT0); err != nil {
		return err
	}

	if off, ok := g.allocaOff[src.Name]; ok && src.IsReg() {
		g.e.inst(fmt.Sprintf("%s R%d, (R%d%s)", mn, regT0, regFP, fmtOffset(off)), "load from slot")
		return nil
	}
	if err := g.ensureInReg(src, regT1); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("%s R%d, (R%d)", mn, regT0, regT1), "load through pointer")
	return nil
}

func (g *Generator) genStore(inst *ir.Instruction) error {
	if err := g.ensureInReg(inst.Args[0], regT0); err != nil {
		return err
	}
	dest := inst.Args[1]
	mn, err := memOpForPtr(dest.Type, false)
	if err != nil {
		return err
	}

	if off, ok := g.allocaOff[dest.Name]; ok && dest.IsReg() {
		g.e.inst(fmt.Sprintf("%s (R%d%s), R%d", mn, regFP, fmtOffset(off), regT0), "store to slot")
		return nil
	}
	if err := g.ensureInReg(dest, regT1); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("%s (R%d), R%d", mn, regT1, regT0), "store through pointer")
	return nil
}

// genGep accumulates the address in R8: the base, then one scaled or
// constant offset per index. R8's cache mapping is dropped up front because
// the register is about to be clobbered by the accumulation.
func (g *Generator) genGep(inst *ir.Instruction) error {
	base := inst.Args[0]
	if err := g.ensureInReg(base, regT0); err != nil {
		return err
	}
	if name, ok := g.regCacheRev[regT0]; ok {
		delete(g.regCache, name)
		delete(g.regCacheRev, regT0)
	}

	cur := base.Type.Pointee()
	for i := 1; i < len(inst.Args); i++ {
		idx := inst.Args[i]
		if i == 1 {
			if idx.IsImm() && idx.Imm == 0 {
				g.e.comment("gep: leading index 0")
				continue
			}
			if err := g.genGepScaled(idx, cur.Size()); err != nil {
				return err
			}
			continue
		}

		switch {
		case cur.IsStruct():
			if !idx.IsImm() {
				return errors.Internalf("codegen: struct gep index must be immediate")
			}
			if off := cur.FieldOffset(idx.Imm); off > 0 {
				if err := g.spillReg(regT2, "gep field offset"); err != nil {
					return err
				}
				g.e.inst(fmt.Sprintf("LOD R%d, %d", regT2, off), fmt.Sprintf("field offset %d", off))
				g.e.inst(fmt.Sprintf("ADD R%d, R%d", regT0, regT2), "")
			}
			cur = cur.Field(idx.Imm).Type

		case cur.IsArray():
			elem := cur.Elem()
			if err := g.genGepScaled(idx, elem.Size()); err != nil {
				return err
			}
			cur = elem

		default:
			return errors.Internalf("codegen: gep index into non-aggregate type %s", cur)
		}
	}
	return g.assignToReg(*inst.Result, regT0)
}

func (g *Generator) genGepScaled(idx ir.Operand, size int) error {
	if err := g.spillReg(regT2, "gep scale"); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("LOD R%d, %d", regT2, size), fmt.Sprintf("element size %d", size))
	if err := g.ensureInReg(idx, regT1); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("MUL R%d, R%d", regT2, regT1), "index * size")
	g.e.inst(fmt.Sprintf("ADD R%d, R%d", regT0, regT2), "base + offset")
	return nil
}

func (g *Generator) genBinary(inst *ir.Instruction) error {
	mn := map[ir.Op]string{
		ir.OpAdd: "ADD", ir.OpSub: "SUB", ir.OpMul: "MUL", ir.OpDiv: "DIV",
	}[inst.Op]

	if err := g.ensureInReg(inst.Args[0], regT0); err != nil {
		return err
	}
	if err := g.ensureInReg(inst.Args[1], regT1); err != nil {
		return err
	}
	if err := g.assignToReg(*inst.Result, regT2); err != nil {
		return err
	}
	g.e.inst(fmt.Sprintf("LOD R%d, R%d", regT2, regT0), "copy lhs to dest")
	g.e.inst(fmt.Sprintf("%s R%d, R%d", mn, regT2, regT1), "")
	return nil
}

// genCall loads the first four arguments into R2..R5, pushes the rest on
// the stack rightmost first so the leftmost stack argument lands at the
// callee's FP+12, then links through R14.
func (g *Generator) genCall(inst *ir.Instruction) error {
	if err := g.spillAll("call"); err != nil {
		return err
	}

	regArgs := len(inst.Args) - 1
	if regArgs > maxRegParams {
		regArgs = maxRegParams
	}
	for i := 1; i <= regArgs; i++ {
		if err := g.ensureInReg(inst.Args[i], regRetVal+i-1); err != nil {
			return err
		}
	}

	stackBytes := 0
	for i := len(inst.Args) - 1; i > maxRegParams; i-- {
		if err := g.ensureInReg(inst.Args[i], regT0); err != nil {
			return err
		}
		mn := memOpForType(inst.Args[i].Type, false)
		g.e.inst(fmt.Sprintf("%s (R%d), R%d", mn, regSP, regT0), "push stack arg")
		g.e.inst(fmt.Sprintf("SUB R%d, 4", regSP), "")
		stackBytes += 4
	}

	callee, err := g.asmLabel(inst.Args[0])
	if err != nil {
		return err
	}
	ret := g.newLabel()
	g.e.inst(fmt.Sprintf("LOD R%d, %s", regRA, ret), "set return address")
	g.e.inst("JMP "+callee, "call")
	g.e.label(ret)

	// The callee clobbers the argument and scratch registers. Every value
	// was written back before the call, so the mappings are dropped without
	// spilling; a spill here would store callee garbage over a live home.
	g.regCache = make(map[string]int)
	g.regCacheRev = make(map[int]string)

	if stackBytes > 0 {
		g.e.inst(fmt.Sprintf("ADD R%d, %d", regSP, stackBytes), "cleanup stack args")
	}

	if inst.Result != nil && !inst.Result.Type.IsVoid() {
		return g.assignToReg(*inst.Result, regRetVal)
	}
	return nil
}

// --- register cache ---

// spillReg writes the value cached in reg back to its home slot and drops
// the mapping.
func (g *Generator) spillReg(reg int, reason string) error {
	name, ok := g.regCacheRev[reg]
	if !ok {
		return nil
	}
	home, ok := g.tempHome[name]
	if !ok {
		return errors.Internalf("codegen: no home slot for %s while spilling (%s)", name, reason)
	}
	t, ok := g.tempType[name]
	if !ok {
		return errors.Internalf("codegen: no type for %s while spilling (%s)", name, reason)
	}
	mn := memOpForType(t, false)
	g.e.inst(fmt.Sprintf("%s (R%d%s), R%d", mn, regFP, fmtOffset(home), reg),
		fmt.Sprintf("spill %s (%s)", name, reason))
	delete(g.regCache, name)
	delete(g.regCacheRev, reg)
	return nil
}

// spillAll writes every cached value back and empties the cache. It runs at
// every label, branch, TST and call so values cross control flow only via
// their home slots. Registers are visited in fixed order to keep the output
// deterministic.
func (g *Generator) spillAll(reason string) error {
	if len(g.regCache) == 0 {
		return nil
	}
	g.e.comment("spill all: " + reason)
	for reg := 0; reg < numRegs; reg++ {
		if _, ok := g.regCacheRev[reg]; !ok {
			continue
		}
		if err := g.spillReg(reg, reason); err != nil {
			return err
		}
	}
	return nil
}

// ensureInReg makes op's value live in the target register, spilling
// whatever was there. Register values come from the cache, the alloca slot
// address, or the home slot; immediates and global addresses are loaded
// directly.
func (g *Generator) ensureInReg(op ir.Operand, target int) error {
	switch op.Kind {
	case ir.KindImm:
		if err := g.spillReg(target, "load imm"); err != nil {
			return err
		}
		g.e.inst(fmt.Sprintf("LOD R%d, %d", target, op.Imm), "load immediate")
		return nil

	case ir.KindGlobal, ir.KindLabel:
		if err := g.spillReg(target, "load addr"); err != nil {
			return err
		}
		label := op.Name
		if op.IsGlobal() {
			l, ok := g.globalLabels[op.Name]
			if !ok {
				return errors.Internalf("codegen: unknown global %s", op.Name)
			}
			label = l
		}
		g.e.inst(fmt.Sprintf("LOD R%d, %s", target, label), "load address")
		return nil

	case ir.KindReg:
		// Already in place.
		if g.regCache[op.Name] == target && g.regCacheRev[target] == op.Name {
			return nil
		}

		// In another register: move it over.
		if old, ok := g.regCache[op.Name]; ok {
			if err := g.spillReg(target, "move reg"); err != nil {
				return err
			}
			g.e.inst(fmt.Sprintf("LOD R%d, R%d", target, old), "move "+op.Name)
			delete(g.regCacheRev, old)
			g.regCache[op.Name] = target
			g.regCacheRev[target] = op.Name
			return nil
		}

		// An alloca pointer: its value is the slot address.
		if off, ok := g.allocaOff[op.Name]; ok {
			if err := g.spillReg(target, "load slot addr"); err != nil {
				return err
			}
			g.e.inst(fmt.Sprintf("LOD R%d, R%d", target, regFP), "address of "+op.Name)
			if off < 0 {
				g.e.inst(fmt.Sprintf("SUB R%d, %d", target, -off), "")
			} else if off > 0 {
				g.e.inst(fmt.Sprintf("ADD R%d, %d", target, off), "")
			}
			return nil
		}

		// Reload from the home slot.
		if err := g.spillReg(target, "reload"); err != nil {
			return err
		}
		home, ok := g.tempHome[op.Name]
		if !ok {
			return errors.Internalf("codegen: %s has no home slot", op.Name)
		}
		t, ok := g.tempType[op.Name]
		if !ok {
			return errors.Internalf("codegen: %s has no recorded type", op.Name)
		}
		mn := memOpForType(t, true)
		g.e.inst(fmt.Sprintf("%s R%d, (R%d%s)", mn, target, regFP, fmtOffset(home)),
			"reload "+op.Name)
		g.regCache[op.Name] = target
		g.regCacheRev[target] = op.Name
		return nil
	}
	return errors.Internalf("codegen: cannot materialize operand %s", op)
}

// assignToReg spills the target and records that it now holds the result.
// The caller emits the computing instruction next.
func (g *Generator) assignToReg(result ir.Operand, target int) error {
	if !result.IsReg() {
		return errors.Internalf("codegen: instruction result must be a register, got %s", result)
	}
	if err := g.spillReg(target, "assign"); err != nil {
		return err
	}
	if old, ok := g.regCache[result.Name]; ok && old != target {
		delete(g.regCacheRev, old)
	}
	g.regCache[result.Name] = target
	g.regCacheRev[target] = result.Name
	return nil
}

// --- helpers ---

func (g *Generator) newLabel() string {
	l := fmt.Sprintf("LL%d", g.labelCounter)
	g.labelCounter++
	return l
}

func (g *Generator) asmLabel(op ir.Operand) (string, error) {
	switch op.Kind {
	case ir.KindLabel:
		return op.Name, nil
	case ir.KindGlobal:
		if l, ok := g.globalLabels[op.Name]; ok {
			return l, nil
		}
	}
	return "", errors.Internalf("codegen: no assembly label for %s", op.Name)
}

// memOpForType picks the word or byte memory mnemonic for a value type.
func memOpForType(t *types.Type, load bool) string {
	if t.IsChar() {
		if load {
			return "LDC"
		}
		return "STC"
	}
	if load {
		return "LOD"
	}
	return "STO"
}

// memOpForPtr picks the mnemonic from a pointer operand's pointee.
func memOpForPtr(t *types.Type, load bool) (string, error) {
	if !t.IsPointer() {
		return "", errors.Internalf("codegen: memory operand must be a pointer, got %s", t)
	}
	return memOpForType(t.Pointee(), load), nil
}
