package model

type Chunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Offset     int                    `json:"offset"`
	Position   int                    `json:"position"`
	Embedding  []float32              `json:"-"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricL2     Metric = "l2"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricDot, MetricL2:
		return true
	}
	return false
}
