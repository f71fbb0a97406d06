package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
	"github.com/sqrtqiezi/diting-analyzer/internal/timeutil"
)

// ChatroomReport is one chatroom's fully-ranked analysis result (spec §4.8
// step 2-3), ready to render.
type ChatroomReport struct {
	Chatroom     string
	MessageTotal int
	Topics       []model.FinalTopic
}

// Render produces the Markdown report for a date's analysis across every
// chatroom (spec §6.4). Rendering is pure and deterministic: given
// identical input reports, the output is byte-identical (spec §8 invariant
// 6), since participants are always serialized sorted and topics already
// arrive rank-ordered.
func Render(date time.Time, generatedAt time.Time, reports []ChatroomReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Chatroom Analysis — %s\n", date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Generated at: %s\n\n", generatedAt.UTC().Format(time.RFC3339))

	for _, r := range reports {
		fmt.Fprintf(&b, "## Chatroom %s\n", r.Chatroom)
		fmt.Fprintf(&b, "- Messages: %d\n", r.MessageTotal)
		fmt.Fprintf(&b, "- Topics: %d\n\n", len(r.Topics))

		b.WriteString("| # | Title | Category | Participants | Msgs | Confidence | Time Range | Summary |\n")
		b.WriteString("|---|-------|----------|--------------|------|------------|-----------|---------|\n")
		for i, t := range r.Topics {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %d | %.2f | %s | %s |\n",
				i+1,
				escapeCell(t.Title),
				escapeCell(t.Category),
				escapeCell(strings.Join(t.SortedParticipants(), ", ")),
				t.MessageCount,
				t.Confidence,
				timeutil.BuildTimeRange(t.TimeStart, t.TimeEnd),
				escapeCell(t.Summary),
			)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// escapeCell neutralizes pipe characters that would otherwise break a
// Markdown table cell.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
