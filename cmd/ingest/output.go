package main

import (
	"drone-helpdesk-go/internal/pipeline"
	"drone-helpdesk-go/pkg/vectorstore"
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed, color.Bold)
)

func printResult(w io.Writer, res pipeline.FileResult) {
	switch res.Outcome {
	case pipeline.OutcomeProcessed:
		fmt.Fprintf(w, "  %s %s (%d chunks)\n", okColor.Sprint("✓"), res.Filename, res.Chunks)
	case pipeline.OutcomeSkipped:
		fmt.Fprintf(w, "  %s %s (already processed)\n", warnColor.Sprint("-"), res.Filename)
	case pipeline.OutcomeFailed:
		fmt.Fprintf(w, "  %s %s: %v\n", errorColor.Sprint("✗"), res.Filename, res.Err)
	}
}

func printSummary(w io.Writer, dir string, s pipeline.Summary) {
	fmt.Fprintln(w, headerColor.Sprintf("Ingestion of %s", dir))
	for _, res := range s.Results {
		printResult(w, res)
	}
	fmt.Fprintf(w, "Files found:      %d\n", s.FilesSeen)
	fmt.Fprintf(w, "Processed:        %s\n", okColor.Sprint(s.Processed))
	fmt.Fprintf(w, "Skipped:          %s\n", warnColor.Sprint(s.Skipped))
	if s.Failed > 0 {
		fmt.Fprintf(w, "Failed:           %s\n", errorColor.Sprint(s.Failed))
	} else {
		fmt.Fprintf(w, "Failed:           %d\n", s.Failed)
	}
	fmt.Fprintf(w, "New chunks:       %d\n", s.TotalChunks)
	fmt.Fprintf(w, "Chunks in index:  %d\n", s.IndexCount)
	fmt.Fprintf(w, "Processed rows:   %d\n", s.ProcessedRows)
}

func printStats(w io.Writer, stats vectorstore.Stats) {
	fmt.Fprintln(w, headerColor.Sprint("Vector index"))
	fmt.Fprintf(w, "Backend:     %s\n", stats.Backend)
	fmt.Fprintf(w, "Collection:  %s\n", stats.Collection)
	fmt.Fprintf(w, "Chunks:      %d\n", stats.Count)
}
