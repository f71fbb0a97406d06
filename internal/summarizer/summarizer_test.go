package summarizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqrtqiezi/diting-analyzer/internal/config"
	"github.com/sqrtqiezi/diting-analyzer/internal/debugwriter"
	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Invoke(ctx context.Context, system, user string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LLM.MaxRetries = 0
	cfg.LLM.BackoffSeconds = 0
	cfg.Summary.ChunkMessages = 40
	cfg.Summary.ContextWindow = 3
	return cfg
}

const draftResponse = `<<<RESULT_START>>>
<<<TOPIC>>>
title: Tesla Q4 Discussion
category: market
summary: Members discussed the quarterly results.
notes:
<<<RESULT_END>>>`

func TestSummarizeSingleChunkUsesDraftDirectly(t *testing.T) {
	messages := []model.Message{
		{MsgID: "m1", CreateTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), Content: "hello", FromUsername: "alice"},
		{MsgID: "m2", CreateTime: time.Date(2026, 7, 31, 9, 5, 0, 0, time.UTC), Content: "world", FromUsername: "bob"},
	}
	topic := model.MergedTopic{
		Keywords:   []string{"tesla"},
		MessageIDs: map[string]struct{}{"m1": {}, "m2": {}},
	}
	p := &scriptedProvider{responses: []string{draftResponse}}

	final, err := Summarize(context.Background(), p, testConfig(), nil, nil, "room1", 0, topic, messages)
	require.NoError(t, err)
	assert.Equal(t, "Tesla Q4 Discussion", final.Title)
	assert.Equal(t, "market", final.Category)
	assert.Equal(t, 1, p.calls)
	assert.False(t, final.TimeStart.IsZero())
}

// TestSummarizeEmptyTopicReturnsErrorForCallerFallback verifies the spec §7
// "summarization failure" contract: with no source messages to draft from,
// Summarize makes no LLM calls and returns an error (rather than inventing
// its own ad-hoc title/summary text) so the caller can apply the literal
// fallback fields (title=keywords[0], category=uncategorized, summary=notes).
func TestSummarizeEmptyTopicReturnsErrorForCallerFallback(t *testing.T) {
	p := &scriptedProvider{}
	topic := model.MergedTopic{Keywords: []string{"weather"}, MessageIDs: map[string]struct{}{}}
	final, err := Summarize(context.Background(), p, testConfig(), nil, nil, "room1", 0, topic, nil)
	require.Error(t, err)
	assert.Equal(t, 0, p.calls)
	assert.Equal(t, topic, final.MergedTopic)
	assert.Empty(t, final.Title)
}

// TestSummarizeAllDraftsFailedReturnsErrorForCallerFallback covers the other
// §7 "summarization failure" path: every stage-1 chunk draft call fails, so
// there is nothing to consolidate.
func TestSummarizeAllDraftsFailedReturnsErrorForCallerFallback(t *testing.T) {
	messages := []model.Message{
		{MsgID: "m1", CreateTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), Content: "hello", FromUsername: "alice"},
	}
	topic := model.MergedTopic{
		Keywords:   []string{"tesla"},
		MessageIDs: map[string]struct{}{"m1": {}},
	}
	p := &scriptedProvider{errs: []error{errors.New("boom")}}

	final, err := Summarize(context.Background(), p, testConfig(), nil, nil, "room1", 0, topic, messages)
	require.Error(t, err)
	assert.Empty(t, final.Title)
	assert.False(t, final.TimeStart.IsZero())
}

func TestSummarizeFallsBackToLargestDraftOnStage2Failure(t *testing.T) {
	cfg := testConfig()
	cfg.Summary.ChunkMessages = 1 // force two chunks -> stage 2 runs

	messages := []model.Message{
		{MsgID: "m1", CreateTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), Content: "hello", FromUsername: "alice"},
		{MsgID: "m2", CreateTime: time.Date(2026, 7, 31, 9, 5, 0, 0, time.UTC), Content: "world", FromUsername: "bob"},
	}
	topic := model.MergedTopic{
		Keywords:   []string{"tesla"},
		MessageIDs: map[string]struct{}{"m1": {}, "m2": {}},
	}

	p := &scriptedProvider{
		responses: []string{draftResponse, draftResponse},
		errs:      []error{nil, nil, errors.New("stage2 boom")},
	}

	final, err := Summarize(context.Background(), p, cfg, nil, nil, "room1", 0, topic, messages)
	require.NoError(t, err)
	assert.Equal(t, "Tesla Q4 Discussion", final.Title)
	assert.Equal(t, 3, p.calls)
}

// TestSummarizeWritesStage1DraftArtifacts locks in that each per-chunk draft
// reaches the debug writer (spec §4.2, §4.7.2), not just the consolidated
// final summary.
func TestSummarizeWritesStage1DraftArtifacts(t *testing.T) {
	cfg := testConfig()
	cfg.Summary.ChunkMessages = 1 // force two chunks, two draft artifacts

	messages := []model.Message{
		{MsgID: "m1", CreateTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), Content: "hello", FromUsername: "alice"},
		{MsgID: "m2", CreateTime: time.Date(2026, 7, 31, 9, 5, 0, 0, time.UTC), Content: "world", FromUsername: "bob"},
	}
	topic := model.MergedTopic{
		Keywords:   []string{"tesla"},
		MessageIDs: map[string]struct{}{"m1": {}, "m2": {}},
	}
	p := &scriptedProvider{responses: []string{draftResponse, draftResponse, draftResponse}}

	dir := t.TempDir()
	debug := debugwriter.New(dir)

	_, err := Summarize(context.Background(), p, cfg, nil, debug, "room1", 2, topic, messages)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "room1", "topic_02_chunk_00_draft.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "room1", "topic_02_chunk_01_draft.txt"))
	assert.NoError(t, err)
}

// TestSummarizeHonorsConfiguredTokenBudget locks in that stage-1 chunking
// uses cfg.Batch.MaxTokens, not a hardcoded default: with ChunkMessages large
// enough to keep both messages in one chunk by count alone, a tiny token
// budget must still force them into separate chunks.
func TestSummarizeHonorsConfiguredTokenBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.MaxTokens = 1
	cfg.Summary.ChunkMessages = 40

	messages := []model.Message{
		{MsgID: "m1", CreateTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), Content: "hello", FromUsername: "alice"},
		{MsgID: "m2", CreateTime: time.Date(2026, 7, 31, 9, 5, 0, 0, time.UTC), Content: "world", FromUsername: "bob"},
	}
	topic := model.MergedTopic{
		Keywords:   []string{"tesla"},
		MessageIDs: map[string]struct{}{"m1": {}, "m2": {}},
	}

	p := &scriptedProvider{responses: []string{draftResponse, draftResponse, draftResponse}}

	final, err := Summarize(context.Background(), p, cfg, nil, nil, "room1", 0, topic, messages)
	require.NoError(t, err)
	assert.Equal(t, "Tesla Q4 Discussion", final.Title)
	// two per-chunk drafts plus one stage-2 consolidation call
	assert.Equal(t, 3, p.calls)
}

func TestTruncateTitleAddsEllipsis(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "x"
	}
	truncated := truncateTitle(long)
	assert.LessOrEqual(t, len([]rune(truncated)), maxTitleRunes)
	assert.Contains(t, truncated, "…")
}
