package vectorstore

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"

	"github.com/xxxsen/docqa/internal/model"
)

// Score returns a similarity where larger always means closer.
// l2 is reported as the negated euclidean distance.
func Score(metric model.Metric, a, b []float32) float64 {
	switch metric {
	case model.MetricDot:
		return dot(a, b)
	case model.MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return -math.Sqrt(sum)
	default:
		var na, nb float64
		for i := range a {
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (math.Sqrt(na) * math.Sqrt(nb))
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func sortScored(items []model.ScoredChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
}

// normalizeMetadata round-trips values through JSON so that in-memory
// metadata compares the same way as JSONB does.
func normalizeMetadata(meta map[string]interface{}) map[string]interface{} {
	if len(meta) == 0 {
		return map[string]interface{}{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return cloneMetadata(meta)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return cloneMetadata(meta)
	}
	return out
}

func cloneMetadata(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func matchFilter(meta, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
