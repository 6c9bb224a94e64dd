// Package report renders test results as JSON, Markdown and HTML
// reports and keeps a JSONL run history.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"digital.vasic.mobileqa/pkg/qa"
)

// Report file names written by Publish.
const (
	FileHistory = "history.jsonl"
	FileHTML    = "report.html"
)

// Reporter defines the interface for generating test reports.
type Reporter interface {
	// GenerateReport creates a report for a single test result.
	GenerateReport(result *qa.TestResult) ([]byte, error)

	// GenerateMasterSummary creates a summary of all test
	// results.
	GenerateMasterSummary(results []*qa.TestResult) ([]byte, error)

	// WriteReport writes a report to the specified writer.
	WriteReport(w io.Writer, result *qa.TestResult) error
}

var (
	_ Reporter = (*JSONReporter)(nil)
	_ Reporter = (*HTMLReporter)(nil)
)

// Publish writes the suite summary, appends every result to the
// history log and renders the HTML report, all under outputDir.
func Publish(
	outputDir, runID string,
	results []*qa.TestResult,
) (*Summary, error) {
	summary := BuildSummary(runID, results)
	if err := SaveSummary(summary, outputDir); err != nil {
		return nil, err
	}

	historyPath := filepath.Join(outputDir, FileHistory)
	for _, r := range results {
		if err := AppendToHistory(historyPath, r); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}
	}

	page, err := NewHTMLReporter(outputDir).GenerateMasterSummary(results)
	if err != nil {
		return nil, err
	}
	htmlPath := filepath.Join(outputDir, FileHTML)
	if err := os.WriteFile(htmlPath, page, 0644); err != nil {
		return nil, fmt.Errorf("failed to write HTML report: %w", err)
	}
	return summary, nil
}
