package verify

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

const maxDocumentPreview = 500

// Extract returns the first value selected by path in doc. Array matches come
// back in index order; decoded objects carry no member order, so a wildcard
// over object members should be narrowed by key or filter.
func Extract(doc any, path string) (any, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}

	matches := expr.Get(doc)
	if len(matches) == 0 {
		return nil, &NoMatchError{Path: path, Document: preview(doc)}
	}
	return matches[0], nil
}

// preview renders doc as compact JSON, truncated for error messages.
func preview(doc any) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	if len(data) > maxDocumentPreview {
		return string(data[:maxDocumentPreview]) + "..."
	}
	return string(data)
}
