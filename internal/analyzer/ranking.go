package analyzer

import (
	"sort"
	"strings"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// rank sorts topics by descending popularity and returns the top n. Ties
// break by ascending topic_count insertion order (i.e. the original slice
// order, which is cluster-creation order from the merger), then by sorted
// keyword list, per spec §4.8 "Determinism".
func rank(topics []model.FinalTopic, n int) []model.FinalTopic {
	indexed := make([]indexedTopic, len(topics))
	for i, t := range topics {
		indexed[i] = indexedTopic{topic: t, insertionOrder: i}
	}

	sort.SliceStable(indexed, func(i, j int) bool {
		a, b := indexed[i], indexed[j]
		if a.topic.Popularity != b.topic.Popularity {
			return a.topic.Popularity > b.topic.Popularity
		}
		if a.insertionOrder != b.insertionOrder {
			return a.insertionOrder < b.insertionOrder
		}
		return strings.Join(a.topic.Keywords, ",") < strings.Join(b.topic.Keywords, ",")
	})

	if n > 0 && len(indexed) > n {
		indexed = indexed[:n]
	}

	out := make([]model.FinalTopic, len(indexed))
	for i, it := range indexed {
		out[i] = it.topic
	}
	return out
}

type indexedTopic struct {
	topic          model.FinalTopic
	insertionOrder int
}
