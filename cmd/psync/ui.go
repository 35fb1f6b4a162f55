package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/projsync/internal/workspace"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFCA28"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#42A5F5"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#616161", Dark: "#9E9E9E"}

	passStyle   = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

func renderPass(s string) string   { return passStyle.Render(s) }
func renderWarn(s string) string   { return warnStyle.Render(s) }
func renderFail(s string) string   { return failStyle.Render(s) }
func renderAccent(s string) string { return accentStyle.Render(s) }
func renderMuted(s string) string  { return mutedStyle.Render(s) }

// projectRow is one line of the solution summary.
type projectRow struct {
	name, language, output       string
	sources, additional, configs int
	metadata, projects, analyzer int
	refNames                     []string
}

func summarizeProjects(sol *workspace.Solution) []projectRow {
	names := make(map[workspace.ProjectID]string, sol.ProjectCount())
	for _, p := range sol.Projects() {
		names[p.ID()] = p.Name()
	}

	rows := make([]projectRow, 0, sol.ProjectCount())
	for _, p := range sol.Projects() {
		row := projectRow{
			name:       p.Name(),
			language:   p.Language(),
			output:     p.OutputFilePath(),
			sources:    len(p.DocumentIDs(workspace.KindSource)),
			additional: len(p.DocumentIDs(workspace.KindAdditional)),
			configs:    len(p.DocumentIDs(workspace.KindAnalyzerConfig)),
			metadata:   len(p.MetadataReferences()),
			projects:   len(p.ProjectReferences()),
			analyzer:   len(p.AnalyzerReferences()),
		}
		for _, ref := range p.ProjectReferences() {
			row.refNames = append(row.refNames, names[ref.ProjectID])
		}
		slices.Sort(row.refNames)
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b projectRow) int { return strings.Compare(a.name, b.name) })
	return rows
}

// renderSolution draws one box per project.
func renderSolution(sol *workspace.Solution) string {
	rows := summarizeProjects(sol)
	if len(rows) == 0 {
		return renderMuted("(no projects)")
	}

	boxes := make([]string, 0, len(rows))
	for _, r := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render(r.name), renderMuted(r.language))
		if r.output != "" {
			fmt.Fprintf(&b, "output      %s\n", r.output)
		}
		fmt.Fprintf(&b, "documents   %d source, %d additional, %d config\n", r.sources, r.additional, r.configs)
		fmt.Fprintf(&b, "references  %d metadata, %d analyzer", r.metadata, r.analyzer)
		if r.projects > 0 {
			fmt.Fprintf(&b, "\nprojects    %s", renderAccent(strings.Join(r.refNames, ", ")))
		}
		boxes = append(boxes, boxStyle.Render(b.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}
