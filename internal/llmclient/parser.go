package llmclient

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
	"github.com/sqrtqiezi/diting-analyzer/internal/observability"
)

const (
	resultStart = "<<<RESULT_START>>>"
	resultEnd   = "<<<RESULT_END>>>"
	topicMarker = "<<<TOPIC>>>"
)

// ParseResult is the outcome of parsing one LLM response: the recovered raw
// topics plus any warnings describing what was wrong with the response
// (spec §7 "protocol parse warning" — never fatal, just logged).
type ParseResult struct {
	Topics   []model.RawTopic
	Warnings []string
}

// ParseTopics decodes a raw LLM response into RawTopics per the delimited
// protocol grammar in spec §4.5.3. It never raises: a response missing
// either delimiter falls back to scanning for bare <<<TOPIC>>> markers, and
// a response with no topics at all yields zero topics plus a warning.
func ParseTopics(response string, maxIndex int) ParseResult {
	var result ParseResult

	body, ok := extractResultBody(response)
	if !ok {
		result.Warnings = append(result.Warnings, "response missing RESULT_START/RESULT_END delimiters; attempting best-effort recovery")
		body = response
	}

	blocks := splitTopicBlocks(body)
	if len(blocks) == 0 {
		result.Warnings = append(result.Warnings, "no <<<TOPIC>>> markers found; zero topics produced")
		return result
	}

	for _, block := range blocks {
		topic, warnings := parseTopicBlock(block, maxIndex)
		result.Topics = append(result.Topics, topic)
		result.Warnings = append(result.Warnings, warnings...)
	}
	return result
}

func extractResultBody(response string) (string, bool) {
	startIdx := strings.Index(response, resultStart)
	endIdx := strings.Index(response, resultEnd)
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return "", false
	}
	return response[startIdx+len(resultStart) : endIdx], true
}

// splitTopicBlocks returns the text following each <<<TOPIC>>> marker; any
// text before the first marker is not a topic and is discarded.
func splitTopicBlocks(body string) []string {
	parts := strings.Split(body, topicMarker)
	var blocks []string
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) != "" {
			blocks = append(blocks, p)
		}
	}
	return blocks
}

// parseTopicBlock parses one <<<TOPIC>>> section's fields.
func parseTopicBlock(block string, maxIndex int) (model.RawTopic, []string) {
	topic := model.RawTopic{
		Participants:   map[string]struct{}{},
		MessageIndices: map[int]struct{}{},
		MessageIDs:     map[string]struct{}{},
		Confidence:     0.5,
	}
	var warnings []string

	lines := strings.Split(block, "\n")
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			i++
			continue
		}

		key, rest, hasColon := strings.Cut(trimmed, ":")
		if !hasColon {
			i++
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		rest = strings.TrimSpace(rest)

		switch key {
		case "keywords":
			if rest != "" {
				topic.Keywords = splitTrim(rest, ",")
				i++
			} else {
				var items []string
				items, i = readListField(lines, i+1)
				topic.Keywords = items
			}
		case "participants":
			var items []string
			items, i = readListField(lines, i+1)
			for _, p := range items {
				topic.Participants[p] = struct{}{}
			}
		case "message_indices":
			var raw string
			if rest != "" {
				raw = rest
				i++
			} else {
				var items []string
				items, i = readListField(lines, i+1)
				raw = strings.Join(items, ",")
			}
			indices, badTokens := parseIndices(raw, maxIndex)
			for idx := range indices {
				topic.MessageIndices[idx] = struct{}{}
			}
			for _, tok := range badTokens {
				warnings = append(warnings, "dropped out-of-range message index token: "+tok)
			}
		case "message_count":
			if n, err := strconv.Atoi(rest); err == nil {
				topic.MessageCount = n
			} else {
				warnings = append(warnings, "malformed message_count: "+rest)
			}
			i++
		case "confidence":
			if f, err := strconv.ParseFloat(rest, 64); err == nil && f >= 0 && f <= 1 {
				topic.Confidence = f
			} else if rest != "" {
				warnings = append(warnings, "malformed confidence, defaulting to 0.5: "+rest)
			}
			i++
		case "notes":
			topic.Notes = rest
			i++
		default:
			warnings = append(warnings, "unknown key ignored: "+key)
			i++
		}
	}

	if topic.MessageCount == 0 {
		topic.MessageCount = len(topic.MessageIndices)
	}

	return topic, warnings
}

// readListField consumes "- value" lines starting at idx until a non-list
// line or end of input.
func readListField(lines []string, idx int) ([]string, int) {
	var items []string
	for idx < len(lines) {
		line := strings.TrimRight(lines[idx], "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") {
			items = append(items, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
			idx++
			continue
		}
		if trimmed == "-" {
			idx++
			continue
		}
		break
	}
	return items, idx
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseIndices expands the message_indices grammar: integers ("5") or
// inclusive ranges ("1-5"), comma or list separated, deduplicated, with
// out-of-range tokens dropped and reported (spec §4.5.3, §8).
func parseIndices(raw string, maxIndex int) (map[int]struct{}, []string) {
	out := map[int]struct{}{}
	var bad []string

	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(tok, "-"); ok && lo != "" && hi != "" {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || start > end {
				bad = append(bad, tok)
				continue
			}
			for v := start; v <= end; v++ {
				if v >= 1 && v <= maxIndex {
					out[v] = struct{}{}
				} else {
					bad = append(bad, strconv.Itoa(v))
				}
			}
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			bad = append(bad, tok)
			continue
		}
		if v >= 1 && v <= maxIndex {
			out[v] = struct{}{}
		} else {
			bad = append(bad, tok)
		}
	}
	return out, bad
}

// FormatIndices renders a set of indices back into the comma/range grammar
// parseIndices accepts, range-compressing contiguous runs. Used for the
// round-trip law in spec §8: parse_indices(format_indices(I)) = I.
func FormatIndices(indices map[int]struct{}) string {
	sorted := make([]int, 0, len(indices))
	for idx := range indices {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	var parts []string
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, strconv.Itoa(sorted[i])+"-"+strconv.Itoa(sorted[j]))
		} else {
			parts = append(parts, strconv.Itoa(sorted[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// ResolveMessageIDs translates a RawTopic's batch-local message_indices into
// stable message_ids via the batch's _seq_id -> msg_id table (spec §4.5.3
// "after parsing"). Unresolved indices are dropped. message_count is
// recomputed from the resolved set, which always wins over whatever the
// model reported (spec §3 invariant).
func ResolveMessageIDs(topic model.RawTopic, seqToMsgID map[int]string) model.RawTopic {
	topic.MessageIDs = map[string]struct{}{}
	for idx := range topic.MessageIndices {
		if id, ok := seqToMsgID[idx]; ok && id != "" {
			topic.MessageIDs[id] = struct{}{}
		}
	}
	topic.MessageCount = len(topic.MessageIDs)
	return topic
}

// LogWarnings emits each parse warning as a structured log line with
// chatroom/batch context (spec §7 "warnings emitted on standard error in a
// structured form").
func LogWarnings(chatroom string, batchIndex int, warnings []string) {
	for _, w := range warnings {
		observability.PipelineWarning(chatroom, batchIndex, w)
	}
}
