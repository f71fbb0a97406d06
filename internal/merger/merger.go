// Package merger implements C6, the topic merger: clustering RawTopics from
// every batch of a chatroom into MergedTopics by weighted keyword Jaccard
// similarity (spec §4.6). Grounded on the teacher's cluster-confidence and
// cosine-distance style helpers in internal/agents/memory.go, adapted from
// embedding-vector similarity to keyword-set similarity.
package merger

import (
	"sort"
	"strings"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// DefaultThreshold is τ_merge from spec §4.6.2.
const DefaultThreshold = 0.5

// MaxKeywords caps a combined topic's keyword list (spec §4.6.3).
const MaxKeywords = 12

// cluster holds a topic group being built during clustering.
type cluster struct {
	representative model.RawTopic
	members        []model.RawTopic
}

// Merge clusters rawTopics by descending message_count against each
// cluster's representative, attaching to the best match at or above
// threshold, else starting a new cluster (spec §4.6.2). It returns the
// combined MergedTopics in cluster-creation order plus a Report describing
// every comparison made, for the debug writer (spec §4.6.4).
func Merge(rawTopics []model.RawTopic, threshold float64) ([]model.MergedTopic, Report) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	df := documentFrequencies(rawTopics)

	sorted := make([]model.RawTopic, len(rawTopics))
	copy(sorted, rawTopics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MessageCount > sorted[j].MessageCount
	})

	var clusters []*cluster
	var report Report

	for _, t := range sorted {
		bestIdx := -1
		bestScore := -1.0
		var comparisons []Comparison
		for idx, c := range clusters {
			score := similarity(t, c.representative, df)
			comparisons = append(comparisons, Comparison{
				ClusterIndex:           idx,
				RepresentativeKeywords: c.representative.Keywords,
				Similarity:             score,
			})
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}

		if bestIdx >= 0 && bestScore >= threshold {
			c := clusters[bestIdx]
			c.members = append(c.members, t)
			if t.MessageCount > c.representative.MessageCount {
				c.representative = t
			}
			report.Comparisons = append(report.Comparisons, comparisons...)
			continue
		}

		clusters = append(clusters, &cluster{representative: t, members: []model.RawTopic{t}})
		report.Comparisons = append(report.Comparisons, comparisons...)
	}

	merged := make([]model.MergedTopic, 0, len(clusters))
	for idx, c := range clusters {
		combined := combine(c.members)
		merged = append(merged, combined)
		report.Clusters = append(report.Clusters, ClusterSummary{
			Index:                  idx,
			RepresentativeKeywords: c.representative.Keywords,
			SourceKeywords:         sourceKeywords(c.members),
			CombinedKeywords:       combined.Keywords,
		})
	}

	return merged, report
}

// Report captures the data the debug writer needs to render a merge report
// (spec §4.6.4): per-cluster representative/source/combined keywords, and
// every pairwise similarity computed during clustering.
type Report struct {
	Comparisons []Comparison
	Clusters    []ClusterSummary
}

// Comparison is one topic-vs-cluster-representative similarity check.
type Comparison struct {
	ClusterIndex           int
	RepresentativeKeywords []string
	Similarity             float64
}

// ClusterSummary describes one final cluster for the merge report.
type ClusterSummary struct {
	Index                  int
	RepresentativeKeywords []string
	SourceKeywords         [][]string
	CombinedKeywords       []string
}

func sourceKeywords(members []model.RawTopic) [][]string {
	out := make([][]string, len(members))
	for i, m := range members {
		out[i] = m.Keywords
	}
	return out
}

// combine implements spec §4.6.3.
func combine(members []model.RawTopic) model.MergedTopic {
	merged := model.MergedTopic{
		Participants: map[string]struct{}{},
		MessageIDs:   map[string]struct{}{},
		SourceCount:  len(members),
	}

	seenKeyword := map[string]struct{}{}
	var notesParts []string
	seenNote := map[string]struct{}{}

	for _, m := range members {
		for _, k := range m.Keywords {
			norm := normalizeKeyword(k)
			if norm == "" {
				continue
			}
			if _, ok := seenKeyword[norm]; ok {
				continue
			}
			seenKeyword[norm] = struct{}{}
			if len(merged.Keywords) < MaxKeywords {
				merged.Keywords = append(merged.Keywords, k)
			}
		}
		for p := range m.Participants {
			merged.Participants[p] = struct{}{}
		}
		for id := range m.MessageIDs {
			merged.MessageIDs[id] = struct{}{}
		}
		if m.Confidence > merged.Confidence {
			merged.Confidence = m.Confidence
		}
		note := strings.TrimSpace(m.Notes)
		if note != "" {
			if _, ok := seenNote[note]; !ok {
				seenNote[note] = struct{}{}
				notesParts = append(notesParts, note)
			}
		}
	}

	merged.MessageCount = len(merged.MessageIDs)
	merged.Notes = strings.Join(notesParts, "; ")
	return merged
}

// normalizeKeyword lowercases and strips surrounding whitespace/punctuation
// (spec §4.6.1).
func normalizeKeyword(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.TrimFunc(k, func(r rune) bool {
		switch r {
		case '.', ',', '!', '?', ';', ':', '"', '\'', '(', ')', '[', ']', '、', '。', '：', '“', '”':
			return true
		}
		return false
	})
}

// documentFrequencies counts, for each normalized keyword, the number of raw
// topics containing it (spec §4.6.1 df(k)).
func documentFrequencies(topics []model.RawTopic) map[string]int {
	df := map[string]int{}
	for _, t := range topics {
		seen := map[string]struct{}{}
		for _, k := range t.Keywords {
			norm := normalizeKeyword(k)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			df[norm]++
		}
	}
	return df
}
