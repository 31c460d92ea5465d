package prompts

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanExtractor(t *testing.T) {
	blob, err := ScanExtractor{}.Extract(renderPage(alicePageState))
	require.NoError(t, err)

	var state struct {
		Props struct {
			Prompt struct {
				Question    string `json:"question"`
				Description string `json:"description"`
			} `json:"prompt"`
		} `json:"props"`
	}
	require.NoError(t, json.Unmarshal(blob, &state))
	// parentheses, brackets, apostrophes and ampersands do not disturb the scan
	require.Equal(t, "What are the best books you've read (so far)?", state.Props.Prompt.Question)
	require.Equal(t, "Pick [up to] 5 & explain (if you want).", state.Props.Prompt.Description)
}

func TestScanExtractorStopsAtBlobEnd(t *testing.T) {
	// the script after the attribute also has braces, the scan must not reach them
	document := renderPage(`{"props":{"prompt":{"promptBooks":[]}}}`)
	blob, err := ScanExtractor{}.Extract(document)
	require.NoError(t, err)
	require.Equal(t, `{"props":{"prompt":{"promptBooks":[]}}}`, string(blob))
}

func TestScanExtractorMarkerMissing(t *testing.T) {
	document := []byte(`<html><body><div id="app"></div></body></html>`)

	_, err := ScanExtractor{}.Extract(document)
	require.True(t, errors.Is(err, ErrExtraction))

	_, err = DOMExtractor{}.Extract(document)
	require.True(t, errors.Is(err, ErrExtraction))
}

func TestScanExtractorNeverBalances(t *testing.T) {
	document := []byte(`<div data-page="{&quot;props&quot;:{&quot;prompt&quot;:{`)
	_, err := ScanExtractor{}.Extract(document)
	require.True(t, errors.Is(err, ErrExtraction))
}

// A raw closing brace inside a string value ends the scan early, this is the known
// limitation of counting braces without tracking quotes. The dom extractor reads the
// same page correctly.
func TestScanExtractorBraceInsideString(t *testing.T) {
	state := `{"props":{"prompt":{"description":"smile :} then","promptBooks":[` +
		`{"user":{"username":"alice"},"book":{"id":1,"title":"Dune"}}]}}}`
	document := renderPage(state)

	blob, err := ScanExtractor{}.Extract(document)
	require.NoError(t, err)
	require.NotEqual(t, state, string(blob))
	_, _, err = DecodePageState(blob, "alice")
	require.True(t, errors.Is(err, ErrDecode))

	blob, err = DOMExtractor{}.Extract(document)
	require.NoError(t, err)
	books, _, err := DecodePageState(blob, "alice")
	require.NoError(t, err)
	require.Equal(t, []BookRef{{ID: 1, Title: "Dune"}}, books)
}

func TestUnescapeOrderKeepsLiteralEntities(t *testing.T) {
	// the description literally contains the text &quot;
	state := `{"props":{"prompt":{"description":"say &quot;hi&quot;","promptBooks":[]}}}`
	blob, err := ScanExtractor{}.Extract(renderPage(state))
	require.NoError(t, err)
	require.Equal(t, state, string(blob))
}

func TestExtractorByName(t *testing.T) {
	require.Equal(t, DOMExtractor{}, ExtractorByName("dom"))
	require.Equal(t, ScanExtractor{}, ExtractorByName("scan"))
	require.Equal(t, ScanExtractor{}, ExtractorByName(""))
}
