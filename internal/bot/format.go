package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/labelbot/internal/models"
)

// parseLabels splits a comma separated argument list.
func parseLabels(args string) []string {
	var out []string
	for _, part := range strings.Split(args, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return "(none)"
	}
	tags := make([]string, len(labels))
	for i, l := range labels {
		tags[i] = "#" + strings.ReplaceAll(l, " ", "_")
	}
	return strings.Join(tags, " ")
}

func formatPercent(confidence float64) string {
	return fmt.Sprintf("%.0f%%", confidence*100)
}

func formatOutcome(out outcome) string {
	switch out.State {
	case models.StateCategorized:
		if len(out.Labels) > 0 {
			return fmt.Sprintf("Auto-labeled: %s (%s)", formatLabels(out.Labels), formatPercent(out.Confidence))
		}
		return "Already labeled."
	case models.StateSuggested:
		return fmt.Sprintf("Suggested: %s (%s)\n/accept or /dismiss, or /label your own.",
			formatLabels(out.Labels), formatPercent(out.Confidence))
	case models.StateIgnored:
		return "This item is ignored."
	default:
		return "No suggestion yet. Use /label tag1, tag2"
	}
}

func formatDrift(g *models.DriftGroup) string {
	return fmt.Sprintf("You relabeled %q as %s %d time(s) recently. %d item(s) still differ.\n/applydrift to relabel them or /dismissdrift to stop asking.",
		g.Text, formatLabels(g.Labels), g.Frequency, len(g.MismatchedIDs))
}

func formatPatterns(scope string, patterns []models.Pattern) string {
	var sb strings.Builder
	sb.WriteString("*" + escapeMarkdown("Patterns ("+scope+"):") + "*\n")
	for _, p := range patterns {
		line := fmt.Sprintf("%s → %s (%s, used %d)", p.Key, formatLabels(p.Labels), formatPercent(p.Confidence), p.UsageCount)
		sb.WriteString(escapeMarkdown(line) + "\n")
	}
	return sb.String()
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
