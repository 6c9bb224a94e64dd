package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/runner"
)

var (
	stylePass  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	styleTitle = lipgloss.NewStyle().Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const rule = "============================================================"

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type painter bool

func (p painter) paint(style lipgloss.Style, s string) string {
	if !p {
		return s
	}
	return style.Render(s)
}

func verdictStyle(v qa.Verdict) lipgloss.Style {
	switch v {
	case qa.VerdictPass:
		return stylePass
	case qa.VerdictFailAction, qa.VerdictFailAssertion:
		return styleFail
	default:
		return styleError
	}
}

// printSummary writes the end-of-run table: one line per test,
// then the verdict counts.
func printSummary(w io.Writer, s *runner.SuiteResult, color bool) {
	p := painter(color)

	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n",
		rule, p.paint(styleTitle, "TEST SUMMARY"), rule)
	for _, r := range s.Results {
		verdict := p.paint(verdictStyle(r.Verdict), string(r.Verdict))
		line := fmt.Sprintf("%s: %s - %s", r.TestName, verdict, r.Reason)
		if !r.MatchedExpect {
			line += p.paint(styleMuted, fmt.Sprintf(" (expected %s)", r.ExpectedResult))
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nTotal: %d tests\n", s.Total())
	fmt.Fprintf(w, "PASS: %d\n", s.Passed)
	fmt.Fprintf(w, "FAIL (Action): %d\n", s.FailedAction)
	fmt.Fprintf(w, "FAIL (Assertion): %d\n", s.FailedAssertion)
	fmt.Fprintf(w, "ERROR: %d\n", s.Errors)
	fmt.Fprintf(w, "Matched expectation: %d/%d\n", s.Matched, s.Total())
	fmt.Fprintln(w, rule)
}
