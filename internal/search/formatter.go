package search

import (
	"strings"

	"github.com/ca-srg/hybridgate/internal/types"
)

const (
	errorResultTitle  = "Search Error"
	errorResultPrefix = "Could not perform a search at this time: "
)

// StripTitleSuffix removes everything from the final "." onward.
func StripTitleSuffix(title string) string {
	if i := strings.LastIndex(title, "."); i >= 0 {
		return title[:i]
	}
	return title
}

// Format projects a backend hit into the caller-facing shape.
func Format(hit types.RawHit) types.FormattedResult {
	return types.FormattedResult{
		Chunk: hit.Chunk,
		Title: StripTitleSuffix(hit.Title),
		URL:   hit.URL,
	}
}

// FormatAll keeps backend order and never returns nil.
func FormatAll(hits []types.RawHit) []types.FormattedResult {
	results := make([]types.FormattedResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Format(hit))
	}
	return results
}

// DegradedResult is the single synthetic entry returned in place of results
// when a call fails.
func DegradedResult(message string) types.FormattedResult {
	return types.FormattedResult{
		Chunk: errorResultPrefix + message,
		Title: errorResultTitle,
		URL:   "",
	}
}

// Results renders an outcome as the caller-facing list: the formatted hits,
// or a single degraded entry when the search failed.
func (o Outcome) Results() []types.FormattedResult {
	if o.Failed() {
		return []types.FormattedResult{DegradedResult(FailureMessage(o.Err))}
	}
	return FormatAll(o.Hits)
}
