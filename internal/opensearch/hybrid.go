package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/ca-srg/hybridgate/internal/types"
)

const backendName = "opensearch"

var sourceFields = []string{"chunk", "title", "url"}

type hitSource struct {
	Chunk string `json:"chunk"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (c *Client) Name() string {
	return backendName
}

// Search runs one hybrid query: a lexical match on the text field and a
// neural query whose embedding is produced by the model deployed in the
// cluster. When the plan asks for reranking the request runs through the
// search pipeline named by the plan's semantic configuration, whose rerank
// processor reorders hits so that _score carries the reranker score.
func (c *Client) Search(ctx context.Context, plan *types.QueryPlan) ([]types.RawHit, error) {
	if plan == nil {
		return nil, NewSearchError(types.ErrorTypeValidation, "query plan cannot be nil")
	}

	if err := c.WaitForRateLimit(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ClassifyConnectionError(ctxErr)
		}
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	bodyJSON, err := json.Marshal(c.buildHybridSearchBody(plan))
	if err != nil {
		return nil, NewSearchError(types.ErrorTypeValidation, fmt.Sprintf("failed to marshal search body: %v", err))
	}

	req := &opensearchapi.SearchReq{
		Indices: []string{c.config.Index},
		Body:    bytes.NewReader(bodyJSON),
	}
	if plan.Rerank {
		req.Params.SearchPipeline = plan.SemanticConfiguration
	}

	start := time.Now()
	resp, err := c.client.Search(ctx, req)
	c.RecordRequest(time.Since(start), err == nil)
	if err != nil {
		return nil, ClassifyConnectionError(err)
	}
	if resp == nil {
		return nil, NewSearchError(types.ErrorTypeResponse, "received nil response from OpenSearch")
	}

	hits := make([]types.RawHit, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var src hitSource
		if len(hit.Source) > 0 {
			if err := json.Unmarshal(hit.Source, &src); err != nil {
				return nil, NewSearchError(types.ErrorTypeResponse,
					fmt.Sprintf("malformed _source in hit %s: %v", hit.ID, err))
			}
		}

		raw := types.RawHit{
			Chunk: src.Chunk,
			Title: src.Title,
			URL:   src.URL,
			Score: float64(hit.Score),
		}
		if plan.Rerank {
			score := float64(hit.Score)
			raw.RerankerScore = &score
		}
		hits = append(hits, raw)
	}

	c.logger.Printf("Hybrid search completed in %v: hits=%d rerank=%t", time.Since(start), len(hits), plan.Rerank)
	return hits, nil
}

func (c *Client) buildHybridSearchBody(plan *types.QueryPlan) map[string]interface{} {
	lexical := map[string]interface{}{
		"match": map[string]interface{}{
			c.config.TextField: map[string]interface{}{
				"query": plan.Query,
			},
		},
	}

	neural := map[string]interface{}{
		"neural": map[string]interface{}{
			plan.VectorField: map[string]interface{}{
				"query_text": plan.Query,
				"model_id":   c.config.ModelID,
				"k":          plan.KNearestNeighbors,
			},
		},
	}

	body := map[string]interface{}{
		"size":    plan.Top,
		"_source": sourceFields,
		"query": map[string]interface{}{
			"hybrid": map[string]interface{}{
				"queries": []interface{}{lexical, neural},
			},
		},
	}

	if plan.Rerank {
		body["ext"] = map[string]interface{}{
			"rerank": map[string]interface{}{
				"query_context": map[string]interface{}{
					"query_text": plan.Query,
				},
			},
		}
	}

	return body
}
