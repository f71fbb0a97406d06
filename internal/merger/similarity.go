package merger

import (
	"math"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// similarity implements the weighted Jaccard from spec §4.6.1:
//
//	S(a,b) = Σ_{k∈Ka∩Kb} w(k) / Σ_{k∈Ka∪Kb} w(k), w(k) = 1/log(2+df(k))
//
// When df is empty (no document-frequency data), weights fall back to 1 for
// every keyword, degenerating to plain Jaccard.
func similarity(a, b model.RawTopic, df map[string]int) float64 {
	setA := normalizedSet(a.Keywords)
	setB := normalizedSet(b.Keywords)

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	var inter, union float64
	seen := map[string]struct{}{}
	for k := range setA {
		seen[k] = struct{}{}
	}
	for k := range setB {
		seen[k] = struct{}{}
	}
	for k := range seen {
		w := weight(k, df)
		_, inA := setA[k]
		_, inB := setB[k]
		union += w
		if inA && inB {
			inter += w
		}
	}
	if union == 0 {
		return 0
	}
	return inter / union
}

func weight(k string, df map[string]int) float64 {
	if len(df) == 0 {
		return 1
	}
	return 1 / math.Log(2+float64(df[k]))
}

func normalizedSet(keywords []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		norm := normalizeKeyword(k)
		if norm == "" {
			continue
		}
		out[norm] = struct{}{}
	}
	return out
}
