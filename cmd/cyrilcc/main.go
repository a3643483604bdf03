// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"

	"github.com/Satar07/cyrilcc/internal/compile"
	cerrors "github.com/Satar07/cyrilcc/internal/errors"
)

func main() {
	if len(os.Args) != 4 || os.Args[2] != "-o" {
		fmt.Fprintf(os.Stderr, "Usage: %s <input.m> -o <output.s>\n", os.Args[0])
		os.Exit(1)
	}
	inputPath := os.Args[1]
	outputPath := os.Args[3]

	verbosity := 0
	if env.Bool("CYRILCC_TRACE_PASSES") {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	start := time.Now()

	source, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", inputPath, err)
		os.Exit(1)
	}

	asm, err := compile.Source(inputPath, string(source))
	if err != nil {
		if cerr, ok := err.(*cerrors.CompilerError); ok {
			reporter := cerrors.NewReporter(inputPath, string(source))
			fmt.Fprint(os.Stderr, reporter.Format(cerr))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		color.Red("Compilation failed after %s", formatDuration(time.Since(start)))
		os.Exit(1)
	}

	if err := os.WriteFile(outputPath, asm, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", outputPath, err)
		os.Exit(1)
	}

	color.Green("Compiled %s to %s in %s", inputPath, outputPath, formatDuration(time.Since(start)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1e3)
	}
}
