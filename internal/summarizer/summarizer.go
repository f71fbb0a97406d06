package summarizer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sqrtqiezi/diting-analyzer/internal/batcher"
	"github.com/sqrtqiezi/diting-analyzer/internal/config"
	"github.com/sqrtqiezi/diting-analyzer/internal/debugwriter"
	"github.com/sqrtqiezi/diting-analyzer/internal/formatter"
	"github.com/sqrtqiezi/diting-analyzer/internal/llmclient"
	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// maxTitleRunes is the title length constraint from spec §4.7.3.
const maxTitleRunes = 40

// Summarize fills in title/category/summary/time_range for one MergedTopic
// (spec §4.7): select source messages with context, split into chunks,
// draft each chunk, then consolidate. allMessages must be the chatroom's
// full chronologically-sorted, enriched message list so time_range and
// context-window selection have the right universe to search.
//
// On the spec §7 "summarization failure" paths (no source messages to draft
// from, or every chunk draft failed and none survived to consolidate), this
// returns a non-nil error alongside a partial FinalTopic that already
// carries MergedTopic/TimeStart/TimeEnd; the caller (internal/analyzer) is
// responsible for filling in the literal fallback fields
// (title=keywords[0], category="uncategorized", summary=notes).
func Summarize(ctx context.Context, provider llmclient.Provider, cfg *config.Config, ocr formatter.OCRCache, debug *debugwriter.Writer, chatroom string, topicIndex int, topic model.MergedTopic, allMessages []model.Message) (model.FinalTopic, error) {
	sel := SelectSourceMessages(allMessages, topic, cfg.Summary.ContextWindow)
	start, end := TimeRange(sel.Matched)

	final := model.FinalTopic{MergedTopic: topic, TimeStart: start, TimeEnd: end}

	if len(sel.ForSummary) == 0 {
		return final, fmt.Errorf("summarizer: no source messages available for topic %d", topicIndex)
	}

	rendered := formatter.RenderLines(sel.ForSummary, ocr, formatter.ModeSummarize)
	chunks := batcher.Split(sel.ForSummary, batcher.Options{
		MaxTokensPerBatch:   cfg.Batch.MaxTokens,
		MaxMessagesPerBatch: cfg.Summary.ChunkMessages,
	})

	drafts := make([]llmclient.ChunkDraft, 0, len(chunks))
	offset := 0
	for chunkIdx, chunk := range chunks {
		lines := rendered[offset : offset+len(chunk.Messages)]
		offset += len(chunk.Messages)

		system, user := llmclient.SummaryChunkPrompt(lines)
		resp, err := llmclient.InvokeWithRetry(ctx, provider, cfg.LLM, chatroom, topicIndex, system, user)
		if err != nil {
			log.Warn().Str("chatroom", chatroom).Int("topic", topicIndex).Err(err).Msg("summary chunk draft failed, skipping chunk")
			continue
		}
		draft, warnings := llmclient.ParseSummaryFields(resp)
		llmclient.LogWarnings(chatroom, topicIndex, warnings)
		draft.MessageCount = len(chunk.Messages)
		debug.SummaryDraft(chatroom, topicIndex, chunkIdx, draft)
		drafts = append(drafts, draft)
	}

	if len(drafts) == 0 {
		return final, fmt.Errorf("summarizer: all chunk drafts failed for topic %d", topicIndex)
	}

	draft := consolidate(ctx, provider, cfg, chatroom, topicIndex, drafts)
	final.Title = truncateTitle(draft.Title)
	final.Category = draft.Category
	final.Summary = draft.Summary
	return final, nil
}

// consolidate implements stage 2 (spec §4.7.2): a single chunk's draft is
// used directly; multiple drafts are merged by one more LLM call, falling
// back to the largest-by-message-count draft if that call fails.
func consolidate(ctx context.Context, provider llmclient.Provider, cfg *config.Config, chatroom string, topicIndex int, drafts []llmclient.ChunkDraft) llmclient.ChunkDraft {
	if len(drafts) == 1 {
		return drafts[0]
	}

	system, user := llmclient.SummaryMergePrompt(drafts)
	resp, err := llmclient.InvokeWithRetry(ctx, provider, cfg.LLM, chatroom, topicIndex, system, user)
	if err != nil {
		log.Warn().Str("chatroom", chatroom).Int("topic", topicIndex).Err(err).Msg("summary consolidation failed, falling back to largest chunk draft")
		return largestDraft(drafts)
	}

	merged, warnings := llmclient.ParseSummaryFields(resp)
	llmclient.LogWarnings(chatroom, topicIndex, warnings)
	if merged.Title == "" && merged.Summary == "" {
		return largestDraft(drafts)
	}
	return merged
}

func largestDraft(drafts []llmclient.ChunkDraft) llmclient.ChunkDraft {
	best := drafts[0]
	for _, d := range drafts[1:] {
		if d.MessageCount > best.MessageCount {
			best = d
		}
	}
	return best
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleRunes {
		return title
	}
	return string(runes[:maxTitleRunes-1]) + "…"
}
