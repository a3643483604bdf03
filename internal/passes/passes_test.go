package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Satar07/cyrilcc/internal/ir"
	"github.com/Satar07/cyrilcc/internal/parser"
)

// buildIR parses and lowers a source program without running any passes.
func buildIR(t *testing.T, src string) *ir.Module {
	t.Helper()
	prog, err := parser.ParseSource("test.m", src)
	require.NoError(t, err)
	mod, err := ir.BuildProgram(prog)
	require.NoError(t, err)
	return mod
}

// analyze runs the CFG and dominator analyses on every function.
func analyze(t *testing.T, mod *ir.Module) {
	t.Helper()
	run(t, mod, &BuildCFG{}, &DeadBlockElim{}, &DominatorTree{}, &DominanceFrontier{}, &DataFlow{})
}

func run(t *testing.T, mod *ir.Module, ps ...FunctionPass) {
	t.Helper()
	for _, f := range mod.Functions {
		for _, p := range ps {
			_, err := p.Run(f)
			require.NoError(t, err, "pass %s on %s", p.Name(), f.Name)
		}
	}
}

// runPipeline runs the full default pipeline.
func runPipeline(t *testing.T, mod *ir.Module) {
	t.Helper()
	require.NoError(t, NewDefaultManager().Run(mod))
}

func blockByPrefix(f *ir.Function, prefix string) *ir.Block {
	for _, b := range f.Blocks {
		if len(b.Label) >= len(prefix) && b.Label[:len(prefix)] == prefix {
			return b
		}
	}
	return nil
}

func phisOf(f *ir.Function) []*ir.Instruction {
	var phis []*ir.Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpPhi {
				phis = append(phis, inst)
			}
		}
	}
	return phis
}

func countOp(f *ir.Function, op ir.Op) int {
	n := 0
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == op {
				n++
			}
		}
	}
	return n
}
