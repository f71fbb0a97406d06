// Package debugwriter implements C2: best-effort human-readable artifact
// dumps of each batch's LLM input/output/parsed topics and the merge
// report, for tuning the pipeline (spec §4.2). Grounded on the teacher's
// posture toward optional, swallowed-error side-channel I/O (the debug/log
// exporters in internal/agentd): never let a write failure abort analysis.
package debugwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sqrtqiezi/diting-analyzer/internal/llmclient"
	"github.com/sqrtqiezi/diting-analyzer/internal/merger"
	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Writer writes per-chatroom debug artifacts under root/{safe_chatroom}/. A
// zero-value Writer (empty root) is a no-op, per spec §4.2. Every artifact is
// timestamped with a "# generated <RFC3339>" header line (SPEC_FULL.md §12).
type Writer struct {
	root string
	now  func() time.Time
}

// New builds a Writer rooted at root. Passing an empty root yields a no-op
// writer.
func New(root string) *Writer {
	return &Writer{root: strings.TrimSpace(root), now: func() time.Time { return time.Now().UTC() }}
}

func (w *Writer) enabled() bool { return w != nil && w.root != "" }

func sanitize(name string) string {
	return unsafeDirChars.ReplaceAllString(name, "_")
}

func (w *Writer) chatroomDir(chatroom string) string {
	return filepath.Join(w.root, sanitize(chatroom))
}

func (w *Writer) write(chatroom, filename, content string) {
	if !w.enabled() {
		return
	}
	dir := w.chatroomDir(chatroom)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("debugwriter: failed to create directory")
		return
	}
	header := "# generated " + w.now().Format(time.RFC3339) + "\n"
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(header+content), 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("debugwriter: failed to write artifact")
	}
}

// BatchInput records the exact text sent to the LLM for batch N.
func (w *Writer) BatchInput(chatroom string, batchIndex int, system, user string) {
	w.write(chatroom, batchFilename(batchIndex, "input"), system+"\n\n---\n\n"+user)
}

// BatchOutput records the raw LLM response for batch N.
func (w *Writer) BatchOutput(chatroom string, batchIndex int, response string) {
	w.write(chatroom, batchFilename(batchIndex, "output"), response)
}

// BatchTopics records the parsed RawTopic list for batch N, pretty-printed.
func (w *Writer) BatchTopics(chatroom string, batchIndex int, topics []model.RawTopic) {
	var b strings.Builder
	for i, t := range topics {
		fmt.Fprintf(&b, "topic %d:\n", i)
		fmt.Fprintf(&b, "  keywords: %s\n", strings.Join(t.Keywords, ", "))
		fmt.Fprintf(&b, "  participants: %s\n", strings.Join(sortedKeys(t.Participants), ", "))
		fmt.Fprintf(&b, "  message_indices: %s\n", llmclient.FormatIndices(t.MessageIndices))
		fmt.Fprintf(&b, "  message_count: %d\n", t.MessageCount)
		fmt.Fprintf(&b, "  confidence: %.2f\n", t.Confidence)
		fmt.Fprintf(&b, "  notes: %s\n\n", t.Notes)
	}
	w.write(chatroom, batchFilename(batchIndex, "topics"), b.String())
}

// MergeReport records, for each cluster, the source topic keywords, the
// pairwise similarities against the representative, and the combined
// keywords (spec §4.2, §4.6.4).
func (w *Writer) MergeReport(chatroom string, report merger.Report) {
	var b strings.Builder
	for _, c := range report.Clusters {
		fmt.Fprintf(&b, "cluster %d:\n", c.Index)
		fmt.Fprintf(&b, "  representative: %s\n", strings.Join(c.RepresentativeKeywords, ", "))
		for i, src := range c.SourceKeywords {
			fmt.Fprintf(&b, "  source %d: %s\n", i, strings.Join(src, ", "))
		}
		fmt.Fprintf(&b, "  combined: %s\n\n", strings.Join(c.CombinedKeywords, ", "))
	}
	b.WriteString("comparisons:\n")
	for _, cmp := range report.Comparisons {
		fmt.Fprintf(&b, "  vs cluster %d (%s): %.4f\n", cmp.ClusterIndex, strings.Join(cmp.RepresentativeKeywords, ", "), cmp.Similarity)
	}
	w.write(chatroom, "merge_report.txt", b.String())
}

// SummaryDraft records a stage-1 per-chunk summary draft for a topic.
func (w *Writer) SummaryDraft(chatroom string, topicIndex, chunkIndex int, draft llmclient.ChunkDraft) {
	content := fmt.Sprintf("title: %s\ncategory: %s\nsummary: %s\nnotes: %s\n", draft.Title, draft.Category, draft.Summary, draft.Notes)
	w.write(chatroom, fmt.Sprintf("topic_%02d_chunk_%02d_draft.txt", topicIndex, chunkIndex), content)
}

// SummaryFinal records the stage-2 consolidated summary for a topic.
func (w *Writer) SummaryFinal(chatroom string, topicIndex int, topic model.FinalTopic) {
	content := fmt.Sprintf("title: %s\ncategory: %s\nsummary: %s\n", topic.Title, topic.Category, topic.Summary)
	w.write(chatroom, fmt.Sprintf("topic_%02d_final.txt", topicIndex), content)
}

func batchFilename(batchIndex int, suffix string) string {
	return fmt.Sprintf("batch_%02d_%s.txt", batchIndex, suffix)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
