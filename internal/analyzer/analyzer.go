// Package analyzer implements C8, the coordinator: per-chatroom
// enrich→batch→classify→merge→summarize pipeline, popularity ranking, and
// Markdown report rendering (spec §4.8). Grounded on the teacher's
// request/response orchestration style (internal/agentd/run.go) adapted
// from an HTTP handler loop to a batch pipeline, and on golang.org/x/sync
// errgroup for bounded parallel batch classification.
package analyzer

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sqrtqiezi/diting-analyzer/internal/batcher"
	"github.com/sqrtqiezi/diting-analyzer/internal/config"
	"github.com/sqrtqiezi/diting-analyzer/internal/debugwriter"
	"github.com/sqrtqiezi/diting-analyzer/internal/formatter"
	"github.com/sqrtqiezi/diting-analyzer/internal/llmclient"
	"github.com/sqrtqiezi/diting-analyzer/internal/merger"
	"github.com/sqrtqiezi/diting-analyzer/internal/model"
	"github.com/sqrtqiezi/diting-analyzer/internal/observability"
	"github.com/sqrtqiezi/diting-analyzer/internal/summarizer"
	"github.com/sqrtqiezi/diting-analyzer/internal/timeutil"
)

// maxBatchConcurrency bounds how many batches of one chatroom may be
// classified concurrently (spec §5: "MAY parallelize batch-level LLM
// calls but MUST preserve deterministic ordering when assembling
// results").
const maxBatchConcurrency = 4

// Analyzer coordinates one run of the pipeline over a set of chatrooms.
type Analyzer struct {
	cfg      *config.Config
	provider llmclient.Provider
	ocr      formatter.OCRCache
	debug    *debugwriter.Writer
}

// New builds an Analyzer. ocr and debug may be nil (no OCR enrichment / no
// debug artifacts, respectively).
func New(cfg *config.Config, provider llmclient.Provider, ocr formatter.OCRCache, debug *debugwriter.Writer) *Analyzer {
	if debug == nil {
		debug = debugwriter.New("")
	}
	return &Analyzer{cfg: cfg, provider: provider, ocr: ocr, debug: debug}
}

// AnalyzeChatroom runs the full per-chatroom pipeline (spec §4.8 step 2) over
// messages, which must already be sorted by CreateTime ascending. A batch
// that exhausts its retries is skipped with a warning; the chatroom's
// report still reflects every surviving batch (spec §7, §8 invariant 7).
func (a *Analyzer) AnalyzeChatroom(ctx context.Context, chatroom string, messages []model.Message) ChatroomReport {
	total := len(messages)

	enriched := formatter.Enrich(messages)
	var kept []model.Message
	for _, m := range enriched {
		if !m.ShouldFilter {
			kept = append(kept, m)
		}
	}

	batches := batcher.Split(kept, batcher.Options{
		MaxTokensPerBatch:   a.cfg.Batch.MaxTokens,
		MaxMessagesPerBatch: a.cfg.Batch.MaxMessages,
	})

	rawTopics := a.classifyBatches(ctx, chatroom, batches)

	merged, report := merger.Merge(rawTopics, a.cfg.Merge.Threshold)
	a.debug.MergeReport(chatroom, report)

	finals := make([]model.FinalTopic, 0, len(merged))
	for i, mt := range merged {
		final, err := summarizer.Summarize(ctx, a.provider, a.cfg, a.ocr, a.debug, chatroom, i, mt, kept)
		if err != nil {
			log.Warn().Str("chatroom", chatroom).Int("topic", i).Err(err).Msg("summarization failed, emitting fallback topic")
			final = fallbackTopic(final)
		}
		final.Popularity = popularity(len(final.Participants), final.MessageCount)
		a.debug.SummaryFinal(chatroom, i, final)
		finals = append(finals, final)
	}

	ranked := rank(finals, a.cfg.Report.TopN)

	return ChatroomReport{Chatroom: chatroom, MessageTotal: total, Topics: ranked}
}

// classifyBatches invokes C5 for every batch, each assigned seq IDs and
// rendered just before its own classify call (spec §4.8 step c). Batches
// run with bounded concurrency but are reassembled in original batch
// order for determinism (spec §5).
func (a *Analyzer) classifyBatches(ctx context.Context, chatroom string, batches []model.Batch) []model.RawTopic {
	results := make([][]model.RawTopic, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			results[i] = a.classifyOneBatch(gctx, chatroom, batch)
			return nil
		})
	}
	// classifyOneBatch never returns an error (LLM failures are recorded and
	// swallowed per spec §7), so g.Wait() returns nil; a cancelled ctx shows
	// up as per-batch invocation failures instead.
	if err := g.Wait(); err != nil {
		log.Warn().Str("chatroom", chatroom).Err(err).Msg("batch classification group cancelled")
	}

	var all []model.RawTopic
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (a *Analyzer) classifyOneBatch(ctx context.Context, chatroom string, batch model.Batch) []model.RawTopic {
	assigned := formatter.AssignSeqIDs(batch.Messages)
	lines := formatter.RenderLines(assigned, a.ocr, formatter.ModeClassify)
	seqToMsgID := model.Batch{Messages: assigned}.SeqToMsgID()

	dateRange := ""
	if len(assigned) > 0 {
		dateRange = timeutil.BuildTimeRange(assigned[0].CreateTime, assigned[len(assigned)-1].CreateTime)
	}
	system, user := llmclient.ClassifyPrompt(chatroom, dateRange, lines)
	a.debug.BatchInput(chatroom, batch.Index, system, user)

	resp, err := llmclient.InvokeWithRetry(ctx, a.provider, a.cfg.LLM, chatroom, batch.Index, system, user)
	if err != nil {
		observability.PipelineWarning(chatroom, batch.Index, err.Error())
		return nil
	}
	a.debug.BatchOutput(chatroom, batch.Index, resp)

	parsed := llmclient.ParseTopics(resp, len(assigned))
	llmclient.LogWarnings(chatroom, batch.Index, parsed.Warnings)

	topics := make([]model.RawTopic, 0, len(parsed.Topics))
	for _, t := range parsed.Topics {
		resolved := llmclient.ResolveMessageIDs(t, seqToMsgID)
		resolved.BatchIndex = batch.Index
		topics = append(topics, resolved)
	}
	a.debug.BatchTopics(chatroom, batch.Index, topics)
	return topics
}

// fallbackTopic implements the spec §7 summarization-failure fallback:
// title = keywords[0], category = "uncategorized", summary = notes. final
// already carries MergedTopic/TimeStart/TimeEnd from the failed Summarize
// call; only the fields the LLM would otherwise have filled are overridden.
func fallbackTopic(final model.FinalTopic) model.FinalTopic {
	title := "untitled"
	if len(final.Keywords) > 0 {
		title = final.Keywords[0]
	}
	final.Title = title
	final.Category = "uncategorized"
	final.Summary = final.Notes
	return final
}
