// Package summarizer implements C7: producing title/category/summary and
// time_range for each MergedTopic via a two-stage LLM summarization,
// grounded on the same delimited-protocol machinery C5 uses (spec §4.7).
package summarizer

import (
	"sort"
	"time"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// minContextMessages is the "small" threshold below which a neighboring
// context window is added (spec §4.7.1: "< ~10 messages").
const minContextMessages = 10

// Selection is the outcome of source-message selection for one topic.
type Selection struct {
	// Matched are the messages whose msg_id belongs to the topic; time_range
	// is computed only from these (spec §4.7.1).
	Matched []model.Message
	// ForSummary is Matched plus any neighboring context, in chronological
	// order, deduplicated by msg_id. This is what gets summarized.
	ForSummary []model.Message
}

// SelectSourceMessages picks the chatroom's messages whose msg_id is in
// topic.MessageIDs, and — if fewer than minContextMessages matched — pads
// with up to contextWindow adjacent messages on each side by time. all must
// already be sorted by CreateTime ascending (spec §4.8 step 1).
func SelectSourceMessages(all []model.Message, topic model.MergedTopic, contextWindow int) Selection {
	var matchedIdx []int
	for i, m := range all {
		if _, ok := topic.MessageIDs[m.MsgID]; ok {
			matchedIdx = append(matchedIdx, i)
		}
	}

	matched := make([]model.Message, len(matchedIdx))
	for i, idx := range matchedIdx {
		matched[i] = all[idx]
	}

	if len(matched) >= minContextMessages || len(matchedIdx) == 0 || contextWindow <= 0 {
		return Selection{Matched: matched, ForSummary: matched}
	}

	included := make(map[int]struct{}, len(matchedIdx))
	for _, idx := range matchedIdx {
		included[idx] = struct{}{}
	}
	lo, hi := matchedIdx[0], matchedIdx[len(matchedIdx)-1]
	for lo > 0 && lo > matchedIdx[0]-contextWindow {
		lo--
		included[lo] = struct{}{}
	}
	for hi < len(all)-1 && hi < matchedIdx[len(matchedIdx)-1]+contextWindow {
		hi++
		included[hi] = struct{}{}
	}

	sortedIdx := make([]int, 0, len(included))
	for idx := range included {
		sortedIdx = append(sortedIdx, idx)
	}
	sort.Ints(sortedIdx)

	forSummary := make([]model.Message, 0, len(sortedIdx))
	for _, idx := range sortedIdx {
		forSummary = append(forSummary, all[idx])
	}

	return Selection{Matched: matched, ForSummary: forSummary}
}

// TimeRange returns the min/max CreateTime of the matched (non-context)
// messages. Returns the zero value twice if matched is empty.
func TimeRange(matched []model.Message) (start, end time.Time) {
	if len(matched) == 0 {
		return
	}
	start, end = matched[0].CreateTime, matched[0].CreateTime
	for _, m := range matched[1:] {
		if m.CreateTime.Before(start) {
			start = m.CreateTime
		}
		if m.CreateTime.After(end) {
			end = m.CreateTime
		}
	}
	return start, end
}
