package prompts

import (
	"bytes"
	"fmt"
	"strings"

	"promptshelf/lib/htmlutil"
)

// PageStateAttribute is the html attribute the server serializes the page state into.
const PageStateAttribute = "data-page"

// pageStateMarker opens the embedded json, the blob starts at its last byte.
const pageStateMarker = PageStateAttribute + `="{`

// StateExtractor pulls the embedded page state json out of a rendered page.
type StateExtractor interface {
	Extract(document []byte) ([]byte, error)
}

// ScanExtractor locates the page state by a fixed marker and finds its end by
// counting braces.
//
// The scan is not quote aware: a string value inside the json with an unbalanced
// raw `{` or `}` ends the blob early (or never), which surfaces as ErrDecode or
// ErrExtraction.
type ScanExtractor struct{}

func (ScanExtractor) Extract(document []byte) ([]byte, error) {
	blob, err := scanBalanced(document, []byte(pageStateMarker))
	if err != nil {
		return nil, err
	}
	return []byte(htmlutil.UnescapeAttr(string(blob))), nil
}

// scanBalanced returns the substring starting at the last byte of marker (which must
// be '{') up to and including the '}' that brings the depth back to zero.
func scanBalanced(document, marker []byte) ([]byte, error) {
	idx := bytes.Index(document, marker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: marker %q not found", ErrExtraction, marker)
	}
	start := idx + len(marker) - 1

	depth := 1
	for i := start + 1; i < len(document); i++ {
		switch document[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return document[start : i+1], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: unbalanced braces after marker (depth %d at end of document)", ErrExtraction, depth)
}

// DOMExtractor reads the page state attribute through an html parser, so braces
// inside string values are harmless and every html entity is decoded.
type DOMExtractor struct{}

func (DOMExtractor) Extract(document []byte) ([]byte, error) {
	value, ok, err := htmlutil.FindAttr(document, "["+PageStateAttribute+"]", PageStateAttribute)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", ErrExtraction, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no element with %s", ErrExtraction, PageStateAttribute)
	}
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{") {
		return nil, fmt.Errorf("%w: %s is not a json object", ErrExtraction, PageStateAttribute)
	}
	return []byte(value), nil
}

// ExtractorByName maps the configured extractor name to an implementation, unknown
// names fall back to the scan.
func ExtractorByName(name string) StateExtractor {
	switch strings.ToLower(name) {
	case "dom":
		return DOMExtractor{}
	default:
		return ScanExtractor{}
	}
}
