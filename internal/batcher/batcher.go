// Package batcher implements C4: splitting a chatroom's chronologically
// sorted, enriched messages into LLM-sized batches by a cheap token
// estimate and/or message count, grounded on the teacher's chunker strategy
// (manifold internal/rag/chunker) but driven by a rune-count token estimate
// of each message's raw content rather than raw byte count.
package batcher

import (
	"math"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// Options bounds a single batch. Zero values fall back to the spec defaults
// (§4.4): 6000 tokens, 200 messages.
type Options struct {
	MaxTokensPerBatch   int
	MaxMessagesPerBatch int
}

func (o Options) normalized() Options {
	if o.MaxTokensPerBatch <= 0 {
		o.MaxTokensPerBatch = 6000
	}
	if o.MaxMessagesPerBatch <= 0 {
		o.MaxMessagesPerBatch = 200
	}
	return o
}

// EstimateTokens is the cheap token-count approximation from spec §4.4:
// max(1, ceil(len(rendered_line)/3)).
func EstimateTokens(renderedLine string) int {
	n := int(math.Ceil(float64(len([]rune(renderedLine))) / 3.0))
	if n < 1 {
		return 1
	}
	return n
}

// Split divides messages (already in chronological order) into batches.
// A batch closes when adding the next message would exceed either limit;
// a single message exceeding MaxTokensPerBatch alone still forms its own
// batch (never truncated or dropped, spec §4.4 edge case). Empty input
// produces zero batches.
func Split(messages []model.Message, opt Options) []model.Batch {
	opt = opt.normalized()
	if len(messages) == 0 {
		return nil
	}

	var batches []model.Batch
	var current []model.Message
	tokens := 0

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, model.Batch{Index: len(batches), Messages: current})
			current = nil
			tokens = 0
		}
	}

	for _, m := range messages {
		// Rendering (C3) happens per-batch after splitting, so the estimate
		// here is taken over the raw content — still a cheap approximation
		// per spec §4.4, just not the final rendered line.
		t := EstimateTokens(m.Content)

		wouldExceedTokens := tokens+t > opt.MaxTokensPerBatch
		wouldExceedCount := len(current)+1 > opt.MaxMessagesPerBatch

		if len(current) > 0 && (wouldExceedTokens || wouldExceedCount) {
			flush()
		}
		current = append(current, m)
		tokens += t
	}
	flush()
	return batches
}
