package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satar07/cyrilcc/internal/errors"
	"github.com/Satar07/cyrilcc/internal/parser"
	"github.com/Satar07/cyrilcc/internal/types"
)

func build(t *testing.T, src string) *Module {
	t.Helper()
	prog, err := parser.ParseSource("test.m", src)
	require.NoError(t, err)
	mod, err := BuildProgram(prog)
	require.NoError(t, err)
	return mod
}

func buildErr(t *testing.T, src string) *errors.CompilerError {
	t.Helper()
	prog, err := parser.ParseSource("test.m", src)
	require.NoError(t, err)
	_, err = BuildProgram(prog)
	require.Error(t, err)
	cerr, ok := err.(*errors.CompilerError)
	require.True(t, ok)
	return cerr
}

func opsOf(f *Function) []Op {
	var ops []Op
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			ops = append(ops, inst.Op)
		}
	}
	return ops
}

func countOp(f *Function, op Op) int {
	n := 0
	for _, o := range opsOf(f) {
		if o == op {
			n++
		}
	}
	return n
}

func TestEveryBlockStartsWithItsLabel(t *testing.T) {
	mod := build(t, `
int main() {
	int a;
	a = 1;
	if (a < 2) output a;
	while (a > 0) a = a - 1;
	return 0;
}
`)
	for _, f := range mod.Functions {
		for _, b := range f.Blocks {
			require.NotEmpty(t, b.Insts)
			first := b.Insts[0]
			assert.Equal(t, OpLabel, first.Op)
			assert.Equal(t, b.Label, first.Args[0].Name)
		}
	}
}

func TestParamsGetSlotAndStore(t *testing.T) {
	mod := build(t, `int id(int x) { return x; }  int main() { return id(3); }`)
	f := mod.Functions[0]
	require.Len(t, f.Params, 1)

	entry := f.Entry()
	// label, alloca, store, then the body.
	require.GreaterOrEqual(t, len(entry.Insts), 3)
	assert.Equal(t, OpAlloca, entry.Insts[1].Op)
	assert.Equal(t, OpStore, entry.Insts[2].Op)
	assert.Equal(t, f.Params[0].Name, entry.Insts[2].Args[0].Name)

	slot, ok := f.Symbols["x"]
	require.True(t, ok)
	assert.True(t, slot.Type.IsPointer())
	assert.Same(t, types.I32(), slot.Type.Pointee())
}

func TestGlobalsPassSupportsForwardCalls(t *testing.T) {
	// odd is called before its definition; the globals pass registers every
	// function symbol up front.
	mod := build(t, `
int g;
int main() { g = odd(1); return 0; }
int odd(int n) { return n; }
`)
	_ = mod
}

func TestLoadStoreTypesMatch(t *testing.T) {
	mod := build(t, `
char c;
int main() { int a; a = 1; c = 'x'; a = c; output a; return 0; }
`)
	for _, f := range mod.Functions {
		for _, b := range f.Blocks {
			for _, inst := range b.Insts {
				switch inst.Op {
				case OpLoad:
					require.True(t, inst.Args[0].Type.IsPointer())
					assert.Same(t, inst.Args[0].Type.Pointee(), inst.Result.Type)
				case OpStore:
					require.True(t, inst.Args[1].Type.IsPointer())
					assert.Same(t, inst.Args[1].Type.Pointee(), inst.Args[0].Type)
				}
			}
		}
	}
}

func TestStringLiteralDedup(t *testing.T) {
	mod := build(t, `int main() { output "hi"; output "hi"; output "other"; return 0; }`)
	strs := 0
	for _, g := range mod.Globals {
		if g.IsString() {
			strs++
		}
	}
	assert.Equal(t, 2, strs, "identical literals share one global")
	assert.Equal(t, "@str0", mod.Globals[0].Name)
}

func TestComparisonOutsideConditionRejected(t *testing.T) {
	cerr := buildErr(t, `int main() { int a; a = 1 < 2; return 0; }`)
	assert.Equal(t, errors.ErrComparisonContext, cerr.Code)
}

func TestStructRValueRejected(t *testing.T) {
	cerr := buildErr(t, `
struct P { int x; int y; };
int main() { struct P p; output p; return 0; }
`)
	assert.Equal(t, errors.ErrStructValue, cerr.Code)
}

func TestUnknownVariableRejected(t *testing.T) {
	cerr := buildErr(t, `int main() { return missing; }`)
	assert.Equal(t, errors.ErrUnknownVariable, cerr.Code)
}

func TestUnknownFunctionRejected(t *testing.T) {
	cerr := buildErr(t, `int main() { return nope(); }`)
	assert.Equal(t, errors.ErrUnknownFunction, cerr.Code)
}

func TestBreakOutsideLoopRejected(t *testing.T) {
	cerr := buildErr(t, `int main() { break; return 0; }`)
	assert.Equal(t, errors.ErrStrayJump, cerr.Code)
}

func TestContinueOutsideLoopRejected(t *testing.T) {
	cerr := buildErr(t, `int main() { continue; return 0; }`)
	assert.Equal(t, errors.ErrStrayJump, cerr.Code)
}

func TestContinueInsideSwitchTargetsLoop(t *testing.T) {
	// continue inside a switch must reach the enclosing loop, while break
	// binds to the switch.
	mod := build(t, `
int main() {
	int i;
	for (i = 0; i < 3; i = i + 1) {
		switch (i) {
		case 0:
			continue;
		default:
			break;
		}
	}
	return 0;
}
`)
	_ = mod
}

func TestInputTargetTypeChecked(t *testing.T) {
	cerr := buildErr(t, `
struct P { int x; };
int main() { struct P p; input p; return 0; }
`)
	assert.Equal(t, errors.ErrInputTarget, cerr.Code)
}

func TestDerefOfNonPointerRejected(t *testing.T) {
	cerr := buildErr(t, `int main() { int a; output *a; return 0; }`)
	assert.Equal(t, errors.ErrTypeMisuse, cerr.Code)
}

func TestMissingReturnGetsSynthesized(t *testing.T) {
	mod := build(t, `int empty() { }  int main() { return 0; }`)
	f := mod.Functions[0]
	last := f.Blocks[len(f.Blocks)-1]
	term := last.Insts[len(last.Insts)-1]
	require.Equal(t, OpRet, term.Op)
	require.Len(t, term.Args, 1)
	assert.Equal(t, 0, term.Args[0].Imm)
}

func TestConditionLowering(t *testing.T) {
	// a <= b branches on the negation (brgt) to the false label and then
	// unconditionally to the true label.
	mod := build(t, `int main() { int a; int b; if (a <= b) output a; return 0; }`)
	f := mod.Functions[0]
	entry := f.Entry()

	var test, brgt, br *Instruction
	for _, inst := range entry.Insts {
		switch inst.Op {
		case OpTest:
			test = inst
		case OpBrgt:
			brgt = inst
		case OpBr:
			br = inst
		}
	}
	require.NotNil(t, test)
	require.NotNil(t, brgt)
	require.NotNil(t, br)
	assert.Contains(t, brgt.Args[0].Name, "ifend")
	assert.Contains(t, br.Args[0].Name, "ifthen")
}

func TestWhileShape(t *testing.T) {
	mod := build(t, `int main() { int a; a = 3; while (a > 0) a = a - 1; output a; return 0; }`)
	f := mod.Functions[0]

	var labels []string
	for _, b := range f.Blocks {
		labels = append(labels, b.Label)
	}
	joined := ""
	for _, l := range labels {
		joined += l + " "
	}
	assert.Contains(t, joined, "whilecond")
	assert.Contains(t, joined, "whilebody")
	assert.Contains(t, joined, "whileend")
}

func TestSwitchDispatch(t *testing.T) {
	mod := build(t, `
int main() {
	int v;
	v = 2;
	switch (v) {
	case 1:
	case 2:
		output v;
		break;
	}
	return 0;
}
`)
	f := mod.Functions[0]
	// Two case labels sharing one block produce two TEST/BRZ pairs against
	// the same target.
	assert.Equal(t, 2, countOp(f, OpTest))
	assert.Equal(t, 2, countOp(f, OpBrz))

	var targets []string
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpBrz {
				targets = append(targets, inst.Args[0].Name)
			}
		}
	}
	require.Len(t, targets, 2)
	assert.Equal(t, targets[0], targets[1])
}

func TestGepForArrayAndStruct(t *testing.T) {
	mod := build(t, `
struct P { int x; int y; };
int main() {
	int arr[4];
	struct P p;
	arr[2] = 5;
	p.y = 7;
	output arr[2] + p.y;
	return 0;
}
`)
	f := mod.Functions[0]
	assert.GreaterOrEqual(t, countOp(f, OpGep), 4)
}

func TestArrayDecayInCall(t *testing.T) {
	mod := build(t, `
int first(int *p) { return *p; }
int main() { int arr[4]; arr[0] = 9; return first(arr); }
`)
	main := mod.Functions[1]
	// The bare array reference decays via gep base, 0, 0.
	found := false
	for _, b := range main.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpGep && len(inst.Args) == 3 &&
				inst.Args[1].IsImm() && inst.Args[1].Imm == 0 &&
				inst.Args[2].IsImm() && inst.Args[2].Imm == 0 {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestAddressOfAndDeref(t *testing.T) {
	mod := build(t, `int main() { int a; int *p; p = &a; *p = 4; output a; return 0; }`)
	f := mod.Functions[0]
	// *p = 4 stores through the loaded pointer, so at least one store's
	// destination is not an alloca result.
	storeThroughPtr := false
	allocas := map[string]bool{}
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpAlloca {
				allocas[inst.Result.Name] = true
			}
		}
	}
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpStore && inst.Args[1].IsReg() && !allocas[inst.Args[1].Name] {
				storeThroughPtr = true
			}
		}
	}
	assert.True(t, storeThroughPtr)
}
