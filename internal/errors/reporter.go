package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats compiler errors against the original source text.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter for a file.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders an error with the source line and a caret marker, in the
// style "error[E0001]: message" followed by the location and context.
func (r *Reporter) Format(err *CompilerError) string {
	var b strings.Builder

	red := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if err.Code != "" {
		fmt.Fprintf(&b, "%s: %s\n", red(fmt.Sprintf("%s[%s]", err.Level, err.Code)), err.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", red(string(err.Level)), err.Message)
	}

	if err.Pos.Line > 0 {
		width := lineNumberWidth(err.Pos.Line)
		indent := strings.Repeat(" ", width)

		fmt.Fprintf(&b, "%s %s %s:%d:%d\n",
			indent, dim("-->"), r.filename, err.Pos.Line, err.Pos.Column)

		if err.Pos.Line-1 < len(r.lines) {
			line := r.lines[err.Pos.Line-1]
			fmt.Fprintf(&b, "%s %s\n", dim(indent+" |"), "")
			fmt.Fprintf(&b, "%s %s\n", dim(fmt.Sprintf("%*d |", width, err.Pos.Line)), line)
			marker := strings.Repeat(" ", max(0, err.Pos.Column-1)) + "^"
			fmt.Fprintf(&b, "%s %s\n", dim(indent+" |"), red(marker))
		}
	}

	for _, note := range err.Notes {
		fmt.Fprintf(&b, "%s: %s\n", dim("note"), note)
	}

	return b.String()
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		w = 3
	}
	return w
}
