package ir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint renders the module in a readable single-assignment form for debug
// dumps. The output is not parsed back; it exists for humans and tests.
func Fprint(w io.Writer, m *Module) {
	for _, g := range m.Globals {
		if g.IsString() {
			fmt.Fprintf(w, "%s = constant %s %q\n", g.Name, g.Type, g.Init)
		} else {
			fmt.Fprintf(w, "%s = global %s\n", g.Name, g.Type)
		}
	}
	if len(m.Globals) > 0 {
		fmt.Fprintln(w)
	}
	for _, f := range m.Functions {
		FprintFunc(w, f)
		fmt.Fprintln(w)
	}
}

// FprintFunc renders one function.
func FprintFunc(w io.Writer, f *Function) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s %s", p.Type, p.Name)
	}
	fmt.Fprintf(w, "func %s(%s) %s {\n", f.Name, strings.Join(params, ", "), f.ReturnType)
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpLabel {
				fmt.Fprintf(w, "%s:\n", b.Label)
				continue
			}
			fmt.Fprintf(w, "\t%s\n", Sprint(inst))
		}
	}
	fmt.Fprintln(w, "}")
}

// Sprint renders one instruction.
func Sprint(inst *Instruction) string {
	var b strings.Builder
	if inst.Result != nil {
		fmt.Fprintf(&b, "%s = ", inst.Result.Name)
	}
	b.WriteString(inst.Op.String())
	for i, a := range inst.Args {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	return b.String()
}

// SprintModule is Fprint into a string.
func SprintModule(m *Module) string {
	var b strings.Builder
	Fprint(&b, m)
	return b.String()
}
