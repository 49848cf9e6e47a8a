package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/pipeline"
	"github.com/Iron-Ham/montage/internal/resilience"
	"github.com/Iron-Ham/montage/internal/store"
	"github.com/Iron-Ham/montage/internal/util"
)

// styles colors terminal output. Every style is a no-op when the output is
// not a terminal.
type styles struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	success  lipgloss.Style
	degraded lipgloss.Style
	failed   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if !isTerminal(w) {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain}
	}
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		degraded: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or fallback when w is not a
// terminal.
func terminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return fallback
}

func (s styles) status(st resilience.Status) string {
	switch st {
	case resilience.StatusSuccess:
		return s.success.Render(string(st))
	case resilience.StatusDegraded:
		return s.degraded.Render(string(st))
	default:
		return s.failed.Render(string(st))
	}
}

func (s styles) phase(p pipeline.Phase) string {
	switch p {
	case pipeline.PhaseDone:
		return s.success.Render(p.String())
	case pipeline.PhaseFailed:
		return s.failed.Render(p.String())
	default:
		return p.String()
	}
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

// renderReport prints a run report: header, decisions and results.
func renderReport(w io.Writer, rep *pipeline.Report) {
	s := newStyles(w)
	cell := max(24, terminalWidth(w, 120)/3)

	fmt.Fprintf(w, "%s %s\n", s.title.Render("Run"), rep.RunID)
	fmt.Fprintf(w, "%s %s\n", s.muted.Render("Mission:"), util.SingleLine(rep.Request.Mission))
	fmt.Fprintf(w, "%s %s   %s %s\n", s.muted.Render("Phase:"), s.phase(rep.Phase),
		s.muted.Render("Duration:"), rep.Duration().Round(time.Millisecond))
	if rep.Error != "" {
		fmt.Fprintf(w, "%s %s\n", s.failed.Render("Error:"), rep.Error)
	}
	fmt.Fprintln(w)

	if len(rep.Decisions) > 0 {
		fmt.Fprintln(w, s.title.Render("Decisions"))
		renderDecisions(w, rep.Ledger(), rep.Negotiations, cell)
		fmt.Fprintln(w)
	}

	if len(rep.Results) > 0 {
		fmt.Fprintln(w, s.title.Render("Results"))
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Request", "Capability", "Status", "Provider", "Attempts", "Remediations", "Artifact"})
		for _, res := range rep.Results {
			artifact := ""
			if res.Artifact != nil {
				artifact = res.Artifact.URI
			} else if res.Err != nil {
				artifact = res.Error()
			}
			tw.AppendRow(table.Row{res.RequestID, res.Capability, s.status(res.Status), res.Provider,
				res.Attempts, res.Remediations, util.Cell(artifact, cell)})
		}
		tw.Render()
		fmt.Fprintln(w, summaryLine(s, rep.Counts()))
	}
}

func renderDecisions(w io.Writer, view ledger.View, outcomes []pipeline.TopicOutcome, cell int) {
	rounds := make(map[string]pipeline.TopicOutcome, len(outcomes))
	for _, o := range outcomes {
		rounds[o.TopicID] = o
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Topic", "Value", "Source", "Confidence", "Rounds", "Rationale"})
	for _, d := range view.All() {
		r := ""
		if o, ok := rounds[d.TopicID]; ok {
			r = fmt.Sprintf("%d", o.Rounds)
			if !o.Converged {
				r += "*"
			}
		}
		tw.AppendRow(table.Row{d.TopicID, util.Cell(d.Value, cell), d.Source,
			fmt.Sprintf("%.2f", d.Confidence), r, util.Cell(d.Rationale, cell)})
	}
	tw.Render()
}

func summaryLine(s styles, counts map[resilience.Status]int) string {
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, fmt.Sprintf("%s %d", s.status(resilience.Status(st)), counts[resilience.Status(st)]))
	}
	return strings.Join(parts, "  ")
}

// renderRuns prints the run list.
func renderRuns(w io.Writer, runs []store.RunSummary, now time.Time) {
	s := newStyles(w)
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Started", "Phase", "Mission", "Decisions", "OK", "Degraded", "Failed"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, humanize.RelTime(r.StartedAt, now, "ago", "from now"), s.phase(r.Phase),
			util.Cell(r.Mission, 40), r.Decisions, r.Success, r.Degraded, r.Failed + r.Canceled})
	}
	tw.Render()
}
