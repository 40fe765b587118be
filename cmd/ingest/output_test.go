package main

import (
	"bytes"
	"drone-helpdesk-go/internal/pipeline"
	"drone-helpdesk-go/pkg/vectorstore"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printSummary(&buf, "./docs", pipeline.Summary{
		FilesSeen:     3,
		Processed:     1,
		Skipped:       1,
		Failed:        1,
		TotalChunks:   12,
		IndexCount:    40,
		ProcessedRows: 4,
		Results: []pipeline.FileResult{
			{Filename: "a2.pdf", Outcome: pipeline.OutcomeProcessed, Chunks: 12},
			{Filename: "a1.pdf", Outcome: pipeline.OutcomeSkipped},
			{Filename: "scan.pdf", Outcome: pipeline.OutcomeFailed, Err: errors.New("no extractable text")},
		},
	})
	out := buf.String()
	for _, want := range []string{
		"Ingestion of ./docs",
		"✓ a2.pdf (12 chunks)",
		"- a1.pdf (already processed)",
		"✗ scan.pdf: no extractable text",
		"Failed:           1",
		"Chunks in index:  40",
		"Processed rows:   4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStats(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printStats(&buf, vectorstore.Stats{Backend: "memory", Collection: "in-process", Count: 7})
	if !strings.Contains(buf.String(), "Chunks:      7") || !strings.Contains(buf.String(), "Backend:     memory") {
		t.Errorf("stats output:\n%s", buf.String())
	}
}
