package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satar07/cyrilcc/internal/ir"
	"github.com/Satar07/cyrilcc/internal/parser"
	"github.com/Satar07/cyrilcc/internal/passes"
)

func lower(t *testing.T, src string) string {
	t.Helper()
	prog, err := parser.ParseSource("test.m", src)
	require.NoError(t, err)
	mod, err := ir.BuildProgram(prog)
	require.NoError(t, err)
	require.NoError(t, passes.NewDefaultManager().Run(mod))
	asm, err := Generate(mod)
	require.NoError(t, err)
	return string(asm)
}

func asmLines(asm string) []string {
	var lines []string
	for _, l := range strings.Split(asm, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// instOf strips indentation and the trailing comment.
func instOf(line string) string {
	l := strings.TrimSpace(line)
	if i := strings.Index(l, "#"); i >= 0 {
		l = strings.TrimSpace(l[:i])
	}
	return l
}

func TestSimpleReturnShape(t *testing.T) {
	asm := lower(t, `int main() { return 0; }`)

	// Fixed prologue before everything else.
	assert.Regexp(t, `(?s)LOD R12, 65535.*LOD R11, R12.*LOD R14, EXIT.*JMP FUNCmain.*EXIT:.*END`, asm)

	i := strings.Index(asm, "FUNCmain:")
	require.GreaterOrEqual(t, i, 0)
	body := asm[i:]
	assert.Contains(t, body, "LOD R2, 0")
	assert.Contains(t, body, "JMP R14")

	// Frame setup and teardown around the body.
	assert.Contains(t, body, "STO (R12), R11")
	assert.Contains(t, body, "STO (R12), R14")
	assert.Contains(t, body, "LOD R11, R12")
	assert.Contains(t, body, "ADD R12, 8")
}

func TestSectionsInOrder(t *testing.T) {
	asm := lower(t, `int g; int main() { g = 1; output "hi"; return 0; }`)

	text := strings.Index(asm, "Text Segment")
	fn := strings.Index(asm, "FUNCmain:")
	data := strings.Index(asm, "Data Segment")
	require.GreaterOrEqual(t, text, 0)
	require.Greater(t, fn, text)
	require.Greater(t, data, fn)

	assert.Contains(t, asm, "VARg:")
	assert.Contains(t, asm, "DBN 0, 4")
	assert.Contains(t, asm, "STRstr0:")
	assert.Contains(t, asm, "DBS 104, 105, 0")
	assert.Contains(t, asm, "OTS")
}

func TestConditionalBranchPrecededByTST(t *testing.T) {
	asm := lower(t, `
int main() {
	int a;
	input a;
	if (a < 5) output 'Y';
	else output 'N';
	return 0;
}
`)
	lines := asmLines(asm)
	for i, line := range lines {
		op := instOf(line)
		if strings.HasPrefix(op, "JEZ") || strings.HasPrefix(op, "JLZ") || strings.HasPrefix(op, "JGZ") {
			require.Greater(t, i, 0)
			prev := instOf(lines[i-1])
			assert.True(t, strings.HasPrefix(prev, "TST R"),
				"conditional jump %q preceded by %q, want TST", op, prev)
		}
	}
}

func TestCallSequence(t *testing.T) {
	asm := lower(t, `
int add(int a, int b) { return a + b; }
int main() { output add(1, 2); return 0; }
`)
	// Arguments in R2/R3, linkage through R14 and an internal return label.
	i := strings.Index(asm, "FUNCmain:")
	body := asm[i:]
	assert.Contains(t, body, "LOD R2, 1")
	assert.Contains(t, body, "LOD R3, 2")
	assert.Contains(t, body, "LOD R14, LL0")
	assert.Contains(t, body, "JMP FUNCadd")
	assert.Contains(t, body, "LL0:")
}

func TestStackArgsPushedRightmostFirst(t *testing.T) {
	asm := lower(t, `
int sum6(int a, int b, int c, int d, int e, int f) {
	return a + b + c + d + e + f;
}
int main() { output sum6(1, 2, 3, 4, 5, 6); return 0; }
`)
	i := strings.Index(asm, "FUNCmain:")
	body := asm[i:]

	// The 6th argument is pushed before the 5th, so the 5th ends up at the
	// callee's FP+12.
	load6 := strings.Index(body, "LOD R8, 6")
	load5 := strings.Index(body, "LOD R8, 5")
	require.GreaterOrEqual(t, load6, 0)
	require.GreaterOrEqual(t, load5, 0)
	assert.Less(t, load6, load5)

	assert.Contains(t, body, "ADD R12, 8", "two stack args are cleaned up after the call")
}

func TestValueLiveAcrossCallReloadsFromHome(t *testing.T) {
	asm := lower(t, `
int inc(int x) { return x + 1; }
int main() {
	int a;
	input a;
	output inc(a);
	output a;
	return 0;
}
`)
	// After the call returns, the pre-call register mappings are gone: the
	// return value lands in R2 and nothing stale is written back over a
	// live home slot before it is consumed.
	lines := asmLines(asm)
	start := -1
	for i, l := range lines {
		if strings.HasPrefix(l, "LL0:") {
			start = i
			break
		}
	}
	require.GreaterOrEqual(t, start, 0)
	for _, l := range lines[start:] {
		op := instOf(l)
		if strings.HasPrefix(op, "OTI") {
			break
		}
		assert.False(t, strings.HasPrefix(op, "STO"),
			"stale spill %q between call return and use of the result", op)
	}
}

func TestCharUsesbyteMnemonics(t *testing.T) {
	asm := lower(t, `
char c;
int main() { c = 'x'; output c; return 0; }
`)
	assert.Contains(t, asm, "STC")
	assert.Contains(t, asm, "LDC")
	assert.Contains(t, asm, "OTC")
}

func TestInputOutputUseIORegister(t *testing.T) {
	asm := lower(t, `int main() { int a; input a; output a; return 0; }`)
	assert.Contains(t, asm, "ITI")
	assert.Contains(t, asm, "OTI")
	// The input result stays cached in R15, where the output reads it, so no
	// register move separates ITI from OTI.
	assert.Contains(t, asm, "\tITI\n\tOTI\n")
}

func TestEmptyFunctionStillFramed(t *testing.T) {
	asm := lower(t, `void nop() { }  int main() { nop(); return 0; }`)
	i := strings.Index(asm, "FUNCnop:")
	require.GreaterOrEqual(t, i, 0)
	body := asm[i:strings.Index(asm, "FUNCmain:")]
	assert.Contains(t, body, "STO (R12), R11")
	assert.Contains(t, body, "JMP R14")
}

func TestDeterministicOutput(t *testing.T) {
	src := `
int g;
struct P { int x; int y; };
int main() {
	struct P p;
	int i;
	p.x = 1;
	for (i = 0; i < 3; i = i + 1) g = g + p.x;
	output g;
	return 0;
}
`
	first := lower(t, src)
	second := lower(t, src)
	assert.Equal(t, first, second, "byte-identical input must produce byte-identical assembly")
}

func TestGlobalArrayReservesFullSize(t *testing.T) {
	asm := lower(t, `int arr[10]; int main() { arr[0] = 1; return 0; }`)
	assert.Contains(t, asm, "VARarr:")
	assert.Contains(t, asm, "DBN 0, 40")
}

func TestGepStructOffset(t *testing.T) {
	asm := lower(t, `
struct P { int x; int y; };
int main() { struct P p; p.y = 4; output p.y; return 0; }
`)
	// Field y sits at offset 4.
	assert.Contains(t, asm, "LOD R10, 4")
	assert.Contains(t, asm, "ADD R8, R10")
}
