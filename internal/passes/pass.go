package passes

import (
	"os"

	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"

	"github.com/Satar07/cyrilcc/internal/ir"
)

// FunctionPass transforms or analyzes a single function. Run reports
// whether it changed the IR.
type FunctionPass interface {
	Name() string
	Run(f *ir.Function) (bool, error)
}

// ModulePass transforms or analyzes the whole module.
type ModulePass interface {
	Name() string
	Run(m *ir.Module) (bool, error)
}

// Manager runs module passes first, then every function pass on each
// function in registration order before moving to the next function. Passes
// are deterministic functions of their input, so a byte-identical input
// module produces byte-identical output across runs.
type Manager struct {
	modulePasses   []ModulePass
	functionPasses []FunctionPass
	log            commonlog.Logger
	dumpIR         bool
}

// NewManager creates an empty pass manager.
func NewManager() *Manager {
	return &Manager{
		log:    commonlog.GetLogger("cyrilcc.passes"),
		dumpIR: env.Bool("CYRILCC_DUMP_IR"),
	}
}

// NewDefaultManager creates a manager with the standard pipeline: CFG and
// dominator analyses, Mem2Reg, a dataflow rebuild, SCCP, a CFG cleanup that
// drops the blocks SCCP proved unreachable, and DeSSA. Running the pipeline
// a second time on its own output produces no further changes.
func NewDefaultManager() *Manager {
	m := NewManager()
	m.AddFunctionPass(&BuildCFG{})
	m.AddFunctionPass(&DeadBlockElim{})
	m.AddFunctionPass(&DominatorTree{})
	m.AddFunctionPass(&DominanceFrontier{})
	m.AddFunctionPass(&DataFlow{})
	m.AddFunctionPass(&Mem2Reg{})
	m.AddFunctionPass(&DataFlow{})
	m.AddFunctionPass(&SCCP{})
	m.AddFunctionPass(&BuildCFG{})
	m.AddFunctionPass(&DeadBlockElim{})
	m.AddFunctionPass(&DataFlow{})
	m.AddFunctionPass(&DeSSA{})
	return m
}

// AddModulePass appends a module pass.
func (m *Manager) AddModulePass(p ModulePass) {
	m.modulePasses = append(m.modulePasses, p)
}

// AddFunctionPass appends a function pass.
func (m *Manager) AddFunctionPass(p FunctionPass) {
	m.functionPasses = append(m.functionPasses, p)
}

// Run executes the registered passes over the module.
func (m *Manager) Run(mod *ir.Module) error {
	for _, p := range m.modulePasses {
		changed, err := p.Run(mod)
		if err != nil {
			return err
		}
		m.log.Debugf("module pass %s: changed=%v", p.Name(), changed)
	}

	for _, f := range mod.Functions {
		for _, p := range m.functionPasses {
			changed, err := p.Run(f)
			if err != nil {
				return err
			}
			m.log.Debugf("pass %s on %s: changed=%v", p.Name(), f.Name, changed)
			if m.dumpIR && changed {
				ir.FprintFunc(os.Stderr, f)
			}
		}
	}
	return nil
}
