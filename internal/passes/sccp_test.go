package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satar07/cyrilcc/internal/ir"
)

func TestLatticeMeet(t *testing.T) {
	assert.True(t, notConst().meet(constant(1)).isNotConst())
	assert.True(t, constant(1).meet(notConst()).isNotConst())
	assert.Equal(t, constant(3), unknown().meet(constant(3)))
	assert.Equal(t, constant(3), constant(3).meet(unknown()))
	assert.Equal(t, constant(5), constant(5).meet(constant(5)))
	assert.True(t, constant(5).meet(constant(6)).isNotConst())
	assert.True(t, unknown().meet(unknown()).isUnknown())
}

func sccpRun(t *testing.T, src string) (*ir.Module, *SCCP) {
	t.Helper()
	mod := buildIR(t, src)
	analyze(t, mod)
	run(t, mod, &Mem2Reg{}, &DataFlow{})
	p := &SCCP{}
	run(t, mod, p)
	return mod, p
}

func TestArithmeticFolding(t *testing.T) {
	mod, _ := sccpRun(t, `int main() { int a; a = 2 + 3 * 4; output a; return 0; }`)
	f := mod.Functions[0]

	assert.Zero(t, countOp(f, ir.OpAdd))
	assert.Zero(t, countOp(f, ir.OpMul))

	var moved *ir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpMove && inst.Args[0].IsImm() && inst.Args[0].Imm == 14 {
				moved = inst
			}
		}
	}
	require.NotNil(t, moved, "a's value folds to move 14")

	// The output consumes the folded register.
	var output *ir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpOutputI32 {
				output = inst
			}
		}
	}
	require.NotNil(t, output)
	assert.Equal(t, moved.Result.Name, output.Args[0].Name)
}

func TestDivisionByConstantZeroNotFolded(t *testing.T) {
	mod, _ := sccpRun(t, `int main() { int a; a = 7 / 0; output a; return 0; }`)
	f := mod.Functions[0]
	assert.Equal(t, 1, countOp(f, ir.OpDiv), "division by zero stays as-is")
}

func TestDeadBranchGutted(t *testing.T) {
	mod, p := sccpRun(t, `
int main() {
	if (1 < 2) output 'Y';
	else output 'N';
	return 0;
}
`)
	f := mod.Functions[0]
	els := blockByPrefix(f, "ifelse")
	require.NotNil(t, els)

	assert.False(t, p.executable[els], "the else block is unreachable")
	require.Len(t, els.Insts, 1, "non-executable blocks keep only their label")
	assert.Equal(t, ir.OpLabel, els.Insts[0].Op)

	then := blockByPrefix(f, "ifthen")
	assert.True(t, p.executable[then])
	assert.Equal(t, 1, countOp(f, ir.OpOutputI8), "only output 'Y' survives")
}

func TestTakenBranchFoldsToUnconditional(t *testing.T) {
	mod, _ := sccpRun(t, `
int main() {
	if (1 < 2) output 'Y';
	else output 'N';
	return 0;
}
`)
	f := mod.Functions[0]
	entry := f.Entry()

	assert.Zero(t, countOp(f, ir.OpBrlt), "the statically-true branch becomes br")
	term := entry.Insts[len(entry.Insts)-1]
	require.Equal(t, ir.OpBr, term.Op)
	assert.Contains(t, term.Args[0].Name, "ifthen")
}

func TestConservativeOnUnknownInput(t *testing.T) {
	mod, p := sccpRun(t, `
int main() {
	int a;
	input a;
	if (a < 2) output 'Y';
	else output 'N';
	return 0;
}
`)
	f := mod.Functions[0]
	assert.True(t, p.executable[blockByPrefix(f, "ifthen")])
	assert.True(t, p.executable[blockByPrefix(f, "ifelse")])
	assert.Equal(t, 2, countOp(f, ir.OpOutputI8))
}

func TestParamsAreNotConst(t *testing.T) {
	mod := buildIR(t, `
int pick(int n) {
	if (n < 0) return 1;
	return 2;
}
int main() { output pick(5); return 0; }
`)
	analyze(t, mod)
	run(t, mod, &Mem2Reg{}, &DataFlow{})

	pick := mod.Functions[0]
	p := &SCCP{}
	_, err := p.Run(pick)
	require.NoError(t, err)

	for _, b := range pick.Blocks {
		assert.True(t, p.executable[b], "parameter-driven branches stay conservative in %s", b.Label)
	}
}

func TestPhiOverExecutableEdgesOnly(t *testing.T) {
	// The false arm never executes, so the phi at the join folds to the
	// value from the true arm and the multiply disappears.
	mod, _ := sccpRun(t, `
int main() {
	int a;
	if (1 < 2) a = 7;
	else a = 9;
	output a * 2;
	return 0;
}
`)
	f := mod.Functions[0]

	found := false
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpMove && inst.Args[0].IsImm() && inst.Args[0].Imm == 14 {
				found = true
			}
		}
	}
	assert.True(t, found, "phi meets only the executable edge, so a*2 folds to 14")
	assert.Zero(t, countOp(f, ir.OpMul))
}

func TestSwitchDispatchFolds(t *testing.T) {
	mod, _ := sccpRun(t, `
int main() {
	int v;
	v = 2;
	switch (v) {
	case 1:
		output 'a';
		break;
	case 2:
		output 'b';
		break;
	default:
		output 'd';
	}
	return 0;
}
`)
	f := mod.Functions[0]
	// Only the case-2 arm remains executable.
	assert.Equal(t, 1, countOp(f, ir.OpOutputI8))
}
