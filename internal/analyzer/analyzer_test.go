package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqrtqiezi/diting-analyzer/internal/config"
	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

type scriptedProvider struct {
	classifyResponse string
	summaryResponse  string
}

func (p *scriptedProvider) Invoke(ctx context.Context, system, user string) (string, error) {
	if contains(system, "classify") || contains(system, "topic") && contains(system, "message_indices") {
		return p.classifyResponse, nil
	}
	return p.summaryResponse, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LLM.MaxRetries = 0
	cfg.LLM.BackoffSeconds = 0
	cfg.Batch.MaxTokens = 6000
	cfg.Batch.MaxMessages = 200
	cfg.Merge.Threshold = 0.5
	cfg.Summary.ChunkMessages = 40
	cfg.Summary.ContextWindow = 3
	cfg.Report.TopN = 10
	return cfg
}

const classifyResponse = `<<<RESULT_START>>>
<<<TOPIC>>>
keywords: tesla, earnings
participants:
- alice
- bob
message_indices: 1-2
message_count: 2
confidence: 0.9
notes:
<<<RESULT_END>>>`

const summaryResponse = `<<<RESULT_START>>>
<<<TOPIC>>>
title: Tesla Earnings Chat
category: market
summary: Alice and bob discussed Tesla's earnings.
notes:
<<<RESULT_END>>>`

func TestAnalyzeChatroomProducesRankedTopics(t *testing.T) {
	provider := &scriptedProvider{classifyResponse: classifyResponse, summaryResponse: summaryResponse}
	a := New(testConfig(), provider, nil, nil)

	messages := []model.Message{
		{MsgID: "m1", Chatroom: "room1", FromUsername: "alice", Content: "Tesla beat estimates", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)},
		{MsgID: "m2", Chatroom: "room1", FromUsername: "bob", Content: "Great quarter", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 5, 0, 0, time.UTC)},
	}

	report := a.AnalyzeChatroom(context.Background(), "room1", messages)
	assert.Equal(t, "room1", report.Chatroom)
	assert.Equal(t, 2, report.MessageTotal)
	require.Len(t, report.Topics, 1)
	assert.Equal(t, "Tesla Earnings Chat", report.Topics[0].Title)
	assert.Greater(t, report.Topics[0].Popularity, 0.0)
}

func TestAnalyzeChatroomEmptyInput(t *testing.T) {
	provider := &scriptedProvider{}
	a := New(testConfig(), provider, nil, nil)
	report := a.AnalyzeChatroom(context.Background(), "empty-room", nil)
	assert.Equal(t, 0, report.MessageTotal)
	assert.Empty(t, report.Topics)
}

type fakeStore struct {
	data map[string][]model.Message
	err  error
}

func (f *fakeStore) LoadDay(ctx context.Context, date time.Time, chatrooms []string) (map[string][]model.Message, error) {
	return f.data, f.err
}
func (f *fakeStore) Close() error { return nil }

func TestRunAggregatesAcrossChatrooms(t *testing.T) {
	provider := &scriptedProvider{classifyResponse: classifyResponse, summaryResponse: summaryResponse}
	a := New(testConfig(), provider, nil, nil)

	s := &fakeStore{data: map[string][]model.Message{
		"room1": {
			{MsgID: "m1", Chatroom: "room1", FromUsername: "alice", Content: "hi", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)},
		},
	}}

	result, err := a.Run(context.Background(), s, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), nil, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChatroomsOK)
	assert.Equal(t, 0, result.ChatroomsFailed)
	assert.Contains(t, result.Report, "## Chatroom room1")
}

func TestRunFailsWhenAllRequestedChatroomsMissing(t *testing.T) {
	provider := &scriptedProvider{}
	a := New(testConfig(), provider, nil, nil)
	s := &fakeStore{data: map[string][]model.Message{}}

	_, err := a.Run(context.Background(), s, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), []string{"missing-room"}, time.Now().UTC())
	assert.Error(t, err)
}

// TestRunOrdersDiscoveredChatroomsDeterministically covers the default CLI
// path (no -chatrooms flag, so Run discovers rooms from the store's map
// keys): repeated runs over the same input must render chatroom sections in
// the same order every time, not whatever order Go's map iteration happens
// to produce (spec §8 invariant 6).
func TestRunOrdersDiscoveredChatroomsDeterministically(t *testing.T) {
	provider := &scriptedProvider{classifyResponse: classifyResponse, summaryResponse: summaryResponse}
	cfg := testConfig()

	s := &fakeStore{data: map[string][]model.Message{
		"room-z": {
			{MsgID: "z1", Chatroom: "room-z", FromUsername: "alice", Content: "hi", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)},
		},
		"room-a": {
			{MsgID: "a1", Chatroom: "room-a", FromUsername: "bob", Content: "hi", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)},
		},
		"room-m": {
			{MsgID: "m1", Chatroom: "room-m", FromUsername: "carol", Content: "hi", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)},
		},
	}}

	var reports []string
	for i := 0; i < 5; i++ {
		a := New(cfg, provider, nil, nil)
		result, err := a.Run(context.Background(), s, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), nil, time.Now().UTC())
		require.NoError(t, err)
		reports = append(reports, result.Report)
	}

	for i := 1; i < len(reports); i++ {
		assert.Equal(t, reports[0], reports[i])
	}

	idxA := strings.Index(reports[0], "## Chatroom room-a")
	idxM := strings.Index(reports[0], "## Chatroom room-m")
	idxZ := strings.Index(reports[0], "## Chatroom room-z")
	require.NotEqual(t, -1, idxA)
	require.NotEqual(t, -1, idxM)
	require.NotEqual(t, -1, idxZ)
	assert.Less(t, idxA, idxM)
	assert.Less(t, idxM, idxZ)
}

// partialFailureProvider fails every classify call whose rendered input
// contains the FAILBATCH marker, succeeding otherwise; summary calls always
// succeed. Used to verify a single exhausted batch does not sink the report
// (spec §8 invariant 7, Scenario C).
type partialFailureProvider struct{}

const classifyAlpha = `<<<RESULT_START>>>
<<<TOPIC>>>
keywords: alpha
participants:
- alice
message_indices: 1
message_count: 1
confidence: 0.8
notes:
<<<RESULT_END>>>`

const classifyGamma = `<<<RESULT_START>>>
<<<TOPIC>>>
keywords: gamma
participants:
- carol
message_indices: 1
message_count: 1
confidence: 0.8
notes:
<<<RESULT_END>>>`

func (p *partialFailureProvider) Invoke(ctx context.Context, system, user string) (string, error) {
	if !contains(system, "classify") {
		return summaryResponse, nil
	}
	if contains(user, "FAILBATCH") {
		return "", fmt.Errorf("simulated transport failure")
	}
	if contains(user, "alpha seed") {
		return classifyAlpha, nil
	}
	return classifyGamma, nil
}

func TestAnalyzeChatroomSkipsExhaustedBatchButKeepsOthers(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.MaxMessages = 1 // one message per batch, so each message is its own batch

	provider := &partialFailureProvider{}
	a := New(cfg, provider, nil, nil)

	messages := []model.Message{
		{MsgID: "m1", Chatroom: "room1", FromUsername: "alice", Content: "alpha seed", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)},
		{MsgID: "m2", Chatroom: "room1", FromUsername: "bob", Content: "FAILBATCH", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 1, 0, 0, time.UTC)},
		{MsgID: "m3", Chatroom: "room1", FromUsername: "carol", Content: "gamma seed", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 2, 0, 0, time.UTC)},
	}

	report := a.AnalyzeChatroom(context.Background(), "room1", messages)
	assert.Equal(t, 3, report.MessageTotal)
	require.Len(t, report.Topics, 2)

	var gotKeywords []string
	for _, topic := range report.Topics {
		gotKeywords = append(gotKeywords, topic.Keywords...)
	}
	assert.Contains(t, gotKeywords, "alpha")
	assert.Contains(t, gotKeywords, "gamma")
}

// TestAnalyzeChatroomDeterministicAcrossRuns verifies invariant 6: identical
// inputs (records, LLM outputs, config) produce byte-identical reports.
func TestAnalyzeChatroomDeterministicAcrossRuns(t *testing.T) {
	provider := &scriptedProvider{classifyResponse: classifyResponse, summaryResponse: summaryResponse}
	cfg := testConfig()

	messages := []model.Message{
		{MsgID: "m1", Chatroom: "room1", FromUsername: "alice", Content: "Tesla beat estimates", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)},
		{MsgID: "m2", Chatroom: "room1", FromUsername: "bob", Content: "Great quarter", MsgType: 1, IsChatroomMsg: true, CreateTime: time.Date(2026, 1, 20, 10, 5, 0, 0, time.UTC)},
	}

	a1 := New(cfg, provider, nil, nil)
	r1 := a1.AnalyzeChatroom(context.Background(), "room1", messages)

	a2 := New(cfg, provider, nil, nil)
	r2 := a2.AnalyzeChatroom(context.Background(), "room1", messages)

	assert.Equal(t, r1, r2)
}
