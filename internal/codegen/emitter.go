package codegen

import (
	"fmt"
	"strings"
)

// commentColumn is where trailing "# ..." comments start, counted from the
// beginning of the instruction text.
const commentColumn = 24

// emitter accumulates assembly text. Lines are either "<label>:", a
// tab-indented instruction with an optional aligned comment, or raw text.
type emitter struct {
	b strings.Builder
}

func (e *emitter) inst(text, comment string) {
	e.b.WriteByte('\t')
	e.b.WriteString(text)
	if comment != "" {
		if pad := commentColumn - len(text); pad > 0 {
			e.b.WriteString(strings.Repeat(" ", pad))
		} else {
			e.b.WriteByte(' ')
		}
		e.b.WriteString("# ")
		e.b.WriteString(comment)
	}
	e.b.WriteByte('\n')
}

func (e *emitter) label(name string) {
	e.b.WriteString(name)
	e.b.WriteString(":\n")
}

func (e *emitter) comment(text string) {
	e.b.WriteString("\t# ")
	e.b.WriteString(text)
	e.b.WriteByte('\n')
}

func (e *emitter) section(title string) {
	fmt.Fprintf(&e.b, "\n# --- %s ---\n", title)
}

func (e *emitter) bytes() []byte {
	return []byte(e.b.String())
}

// fmtOffset renders a frame offset as " + k", " - k" or "".
func fmtOffset(off int) string {
	switch {
	case off > 0:
		return fmt.Sprintf(" + %d", off)
	case off < 0:
		return fmt.Sprintf(" - %d", -off)
	}
	return ""
}
