package llmclient

import (
	"fmt"
	"strings"
)

// ClassifyPrompt builds the system+user message pair for C5 classification
// calls (spec §4.5.4): a protocol explanation with an example of the
// delimited format, and a user message naming the chatroom, the batch's
// date range, and its rendered lines.
func ClassifyPrompt(chatroom string, dateRange string, lines []string) (system, user string) {
	system = classifySystemPrompt
	var b strings.Builder
	fmt.Fprintf(&b, "Chatroom: %s\n", chatroom)
	fmt.Fprintf(&b, "Date range: %s\n\n", dateRange)
	b.WriteString("Messages:\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\nEnumerate all distinct discussion topics exhaustively.")
	return system, b.String()
}

const classifySystemPrompt = `You classify chatroom messages into discussion topics.

Read the numbered messages below and group them into topics. Respond using
exactly this delimited protocol, nothing else outside it:

<<<RESULT_START>>>
<<<TOPIC>>>
keywords: keyword one, keyword two
participants:
- alice
- bob
message_indices: 1-3, 7
message_count: 4
confidence: 0.8
notes: optional free-form note
<<<TOPIC>>>
...
<<<RESULT_END>>>

Rules:
- keywords is a short ordered list of Chinese or English terms naming the topic.
- participants lists every sender who contributed to the topic.
- message_indices references the "#N" sequence numbers of the messages above,
  as single integers or inclusive ranges, comma-separated.
- confidence is a float between 0 and 1.
- Enumerate topics exhaustively; a message may belong to more than one topic.
- Emit no text before <<<RESULT_START>>> or after <<<RESULT_END>>>.`

// SummaryChunkPrompt builds the per-chunk draft prompt for C7 stage 1: the
// model returns title/category/summary/notes in the same delimited
// protocol.
func SummaryChunkPrompt(lines []string) (system, user string) {
	var b strings.Builder
	b.WriteString("Messages:\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return summarySystemPrompt, b.String()
}

// SummaryMergePrompt builds the stage-2 prompt that consolidates chunk
// drafts into a single title/category/summary/notes.
func SummaryMergePrompt(drafts []ChunkDraft) (system, user string) {
	var b strings.Builder
	b.WriteString("Chunk drafts to consolidate into one topic summary:\n\n")
	for i, d := range drafts {
		fmt.Fprintf(&b, "Draft %d:\ntitle: %s\ncategory: %s\nsummary: %s\nnotes: %s\n\n", i+1, d.Title, d.Category, d.Summary, d.Notes)
	}
	return summarySystemPrompt, b.String()
}

const summarySystemPrompt = `You summarize a chatroom discussion topic from its messages.

Respond using exactly this delimited protocol, nothing else outside it:

<<<RESULT_START>>>
<<<TOPIC>>>
title: short headline, at most 40 characters
category: one of news, tech, life, market, meta
summary: one to three sentences describing the discussion
notes: optional free-form note
<<<RESULT_END>>>

Emit no text before <<<RESULT_START>>> or after <<<RESULT_END>>>.`

// ChunkDraft is a stage-1 per-chunk summarization result (spec §4.7.2).
type ChunkDraft struct {
	Title        string
	Category     string
	Summary      string
	Notes        string
	MessageCount int
}

// ParseSummaryFields extracts title/category/summary/notes from a response
// using the same delimited protocol as ParseTopics, reusing its recovery
// behavior for malformed/partial output.
func ParseSummaryFields(response string) (ChunkDraft, []string) {
	body, ok := extractResultBody(response)
	if !ok {
		body = response
	}
	blocks := splitTopicBlocks(body)
	if len(blocks) == 0 {
		return ChunkDraft{}, []string{"no <<<TOPIC>>> marker found in summary response"}
	}
	return parseSummaryBlock(blocks[0])
}

func parseSummaryBlock(block string) (ChunkDraft, []string) {
	var draft ChunkDraft
	var warnings []string
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if trimmed == "" {
			continue
		}
		key, rest, hasColon := strings.Cut(trimmed, ":")
		if !hasColon {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		rest = strings.TrimSpace(rest)
		switch key {
		case "title":
			draft.Title = rest
		case "category":
			draft.Category = rest
		case "summary":
			draft.Summary = rest
		case "notes":
			draft.Notes = rest
		default:
			warnings = append(warnings, "unknown key ignored: "+key)
		}
	}
	return draft, warnings
}
