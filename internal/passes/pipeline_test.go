package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satar07/cyrilcc/internal/ir"
)

var pipelinePrograms = map[string]string{
	"simple":  `int main() { return 0; }`,
	"diamond": diamondSrc,
	"loop":    loopSrc,
	"swap":    swapSrc,
	"recursion": `
int fib(int n) {
	if (n < 2) return n;
	return fib(n - 1) + fib(n - 2);
}
int main() { output fib(10); return 0; }
`,
	"aggregates": `
struct P { int x; int y; };
int g;
int main() {
	struct P p;
	int arr[3];
	p.x = 3;
	p.y = 4;
	arr[1] = p.x + p.y;
	g = arr[1];
	output g;
	return 0;
}
`,
	// A phi that keeps only one live edge after SCCP removes the other.
	"deadpred": `
int main() {
	int a;
	int b;
	input b;
	if (1 < 2) a = b;
	else a = 9;
	output a;
	return 0;
}
`,
	"switch": `
int main() {
	int v;
	input v;
	switch (v) {
	case 1:
	case 2:
		output 'a';
		break;
	default:
		output 'd';
	}
	return 0;
}
`,
}

func TestPipelineFixedPoint(t *testing.T) {
	for name, src := range pipelinePrograms {
		t.Run(name, func(t *testing.T) {
			mod := buildIR(t, src)
			runPipeline(t, mod)
			first := ir.SprintModule(mod)

			runPipeline(t, mod)
			second := ir.SprintModule(mod)
			assert.Equal(t, first, second, "second pipeline run must not change the IR")
		})
	}
}

func TestPipelineInvariants(t *testing.T) {
	for name, src := range pipelinePrograms {
		t.Run(name, func(t *testing.T) {
			mod := buildIR(t, src)
			runPipeline(t, mod)

			for _, f := range mod.Functions {
				for _, b := range f.Blocks {
					require.NotEmpty(t, b.Insts, "block %s", b.Label)
					first := b.Insts[0]
					assert.Equal(t, ir.OpLabel, first.Op)
					assert.Equal(t, b.Label, first.Args[0].Name)
					assert.True(t, b.Terminated(), "block %s must end with a terminator", b.Label)
				}
				assert.Empty(t, phisOf(f), "no phi survives the pipeline")
			}
		})
	}
}

func TestPipelineKeepsEntryFirst(t *testing.T) {
	mod := buildIR(t, loopSrc)
	entry := mod.Functions[0].Entry()
	runPipeline(t, mod)
	assert.Equal(t, entry, mod.Functions[0].Entry())
}

func TestManagerRunsModulePassesFirst(t *testing.T) {
	mod := buildIR(t, `int main() { return 0; }`)

	var order []string
	m := NewManager()
	m.AddModulePass(probeModulePass{record: &order})
	m.AddFunctionPass(probeFunctionPass{record: &order})
	require.NoError(t, m.Run(mod))
	assert.Equal(t, []string{"module", "function"}, order)
}

type probeModulePass struct{ record *[]string }

func (p probeModulePass) Name() string { return "probe-module" }
func (p probeModulePass) Run(*ir.Module) (bool, error) {
	*p.record = append(*p.record, "module")
	return false, nil
}

type probeFunctionPass struct{ record *[]string }

func (p probeFunctionPass) Name() string { return "probe-function" }
func (p probeFunctionPass) Run(*ir.Function) (bool, error) {
	*p.record = append(*p.record, "function")
	return false, nil
}
