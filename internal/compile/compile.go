// Package compile chains the whole pipeline: parse, IR build, pass pipeline
// and assembly emission. It is the single entry point used by the CLI and
// the end-to-end tests.
package compile

import (
	"os"

	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"

	"github.com/Satar07/cyrilcc/internal/codegen"
	"github.com/Satar07/cyrilcc/internal/ir"
	"github.com/Satar07/cyrilcc/internal/parser"
	"github.com/Satar07/cyrilcc/internal/passes"
)

var log = commonlog.GetLogger("cyrilcc.compile")

// File compiles a source file to assembly text.
func File(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Source(path, string(src))
}

// Source compiles source text to assembly text. name labels diagnostics.
func Source(name, source string) ([]byte, error) {
	prog, err := parser.ParseSource(name, source)
	if err != nil {
		return nil, err
	}
	log.Debugf("parsed %s: %d globals, %d functions", name, len(prog.Globals), len(prog.Functions))

	mod, err := ir.BuildProgram(prog)
	if err != nil {
		return nil, err
	}
	if env.Bool("CYRILCC_DUMP_IR") {
		ir.Fprint(os.Stderr, mod)
	}

	if err := passes.NewDefaultManager().Run(mod); err != nil {
		return nil, err
	}
	if env.Bool("CYRILCC_DUMP_IR") {
		ir.Fprint(os.Stderr, mod)
	}

	return codegen.Generate(mod)
}
