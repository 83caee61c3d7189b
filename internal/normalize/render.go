package normalize

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderText writes a human readable report for the operator.
func RenderText(w io.Writer, r *Report, noColor bool) error {
	var sb strings.Builder

	title := "Image field normalization"
	if r.DryRun {
		title += " (dry run)"
	}
	sb.WriteString(stylize(title, noColor, lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))))
	sb.WriteString("\n")

	summary := fmt.Sprintf("Total: %d  Candidates: %d  Migrated: %d  Skipped: %d  Anomalies: %d  Failed: %d",
		r.Total, r.Candidates, r.Migrated, r.Skipped, r.Anomalies, r.Failed)
	if r.DryRun {
		summary += fmt.Sprintf("  Planned: %d", r.Planned)
	}
	sb.WriteString(stylize(summary, noColor, lipgloss.NewStyle().Foreground(lipgloss.Color("242"))))
	sb.WriteString("\n")

	for _, o := range r.Outcomes {
		if o.Action == ActionSkipped {
			continue
		}
		line := fmt.Sprintf("  %-9s %s", o.Action, o.DocumentID)
		if len(o.Unset) > 0 {
			line += " unset=" + strings.Join(o.Unset, ",")
		}
		if len(o.Set) > 0 {
			line += " set=" + strings.Join(sortedKeys(o.Set), ",")
		}
		if o.Error != "" {
			line += " error=" + o.Error
		}
		sb.WriteString(stylize(line, noColor, actionStyle(o.Action)))
		sb.WriteString("\n")
	}

	v := r.Verification
	sb.WriteString(fmt.Sprintf("Verification: new format %d/%d, old format %d/%d\n",
		v.DocumentsWithNewFormat, r.Total, v.DocumentsWithOldFormat, r.Total))
	if len(v.RemainingOffenders) == 0 {
		sb.WriteString(stylize("All documents are in canonical shape.", noColor, actionStyle(ActionMigrated)))
		sb.WriteString("\n")
	} else {
		sb.WriteString(stylize(fmt.Sprintf("%d documents still need attention:", len(v.RemainingOffenders)), noColor, actionStyle(ActionFailed)))
		sb.WriteString("\n")
		for _, id := range v.RemainingOffenders {
			sb.WriteString("  " + id + "\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func actionStyle(a Action) lipgloss.Style {
	color := lipgloss.Color("244")
	switch a {
	case ActionMigrated:
		color = lipgloss.Color("42")
	case ActionAnomaly, ActionPlanned:
		color = lipgloss.Color("220")
	case ActionFailed:
		color = lipgloss.Color("196")
	case ActionSkipped:
	}
	return lipgloss.NewStyle().Foreground(color)
}

func stylize(text string, noColor bool, style lipgloss.Style) string {
	if noColor {
		return text
	}
	return style.Render(text)
}
