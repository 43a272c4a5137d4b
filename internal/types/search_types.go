package types

// Fixed candidate pool handed to the semantic reranker.
const RerankCandidatePool = 50

// SearchRequest is one inbound tool call.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// QueryPlan is derived once per request and handed to a backend.
type QueryPlan struct {
	Query                 string
	MaxResults            int
	KNearestNeighbors     int
	Top                   int
	VectorField           string
	Rerank                bool
	SemanticConfiguration string
	RerankerThreshold     float64
}

// RawHit is a backend hit. Missing text fields are empty strings.
type RawHit struct {
	Chunk         string   `json:"chunk"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Score         float64  `json:"score"`
	RerankerScore *float64 `json:"reranker_score,omitempty"`
}

// FormattedResult is the only shape exposed to callers.
type FormattedResult struct {
	Chunk string `json:"chunk" yaml:"chunk"`
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}
