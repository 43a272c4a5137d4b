package search

import (
	"context"
	"testing"

	"github.com/ca-srg/hybridgate/internal/types"
	"github.com/stretchr/testify/require"
)

func TestStripTitleSuffix(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Policy-21.pdf", "Policy-21"},
		{"ReadMe", "ReadMe"},
		{"archive.tar.gz", "archive.tar"},
		{"v1.2 release notes.docx", "v1.2 release notes"},
		{".env", ""},
		{"trailing.", "trailing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			require.Equal(t, tt.want, StripTitleSuffix(tt.title))
		})
	}
}

func TestFormatAll(t *testing.T) {
	hits := []types.RawHit{
		{Chunk: "Reset via the portal.", Title: "Password-Reset.md", URL: "https://kb/1", Score: 0.9},
		{Chunk: "Use the VPN client.", Title: "VPN", URL: "https://kb/2", Score: 0.5},
	}

	got := FormatAll(hits)

	require.Equal(t, []types.FormattedResult{
		{Chunk: "Reset via the portal.", Title: "Password-Reset", URL: "https://kb/1"},
		{Chunk: "Use the VPN client.", Title: "VPN", URL: "https://kb/2"},
	}, got)
}

func TestFormatAllEmpty(t *testing.T) {
	got := FormatAll(nil)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestDegradedResult(t *testing.T) {
	got := DegradedResult("timeout")
	require.Equal(t, types.FormattedResult{
		Title: "Search Error",
		URL:   "",
		Chunk: "Could not perform a search at this time: timeout",
	}, got)
}

func TestOutcomeResults(t *testing.T) {
	ok := Outcome{Hits: []types.RawHit{{Chunk: "c", Title: "Doc.txt", URL: "u"}}}
	require.Equal(t, []types.FormattedResult{{Chunk: "c", Title: "Doc", URL: "u"}}, ok.Results())

	failed := Outcome{Err: &BackendQueryError{Backend: "azure", Err: context.DeadlineExceeded}}
	require.Equal(t, []types.FormattedResult{DegradedResult("timeout")}, failed.Results())

	require.Equal(t, []types.FormattedResult{}, Outcome{}.Results())
}
