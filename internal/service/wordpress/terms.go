package wordpress

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	taxonomyCategory = "category"
	taxonomyTag      = "post_tag"
)

// Terms holds taxonomy names in the order they were encountered. Resolved is
// false when the payload carried no embedded terms at all.
type Terms struct {
	Categories []string
	Tags       []string
	Resolved   bool
}

type embeddedTerm struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Taxonomy string `json:"taxonomy"`
}

// ExtractTerms flattens _embedded["wp:term"] into category and tag names.
// Duplicates are kept; unknown taxonomies are skipped.
func ExtractTerms(embedded json.RawMessage) (Terms, error) {
	terms := Terms{Categories: []string{}, Tags: []string{}}

	if isAbsent(embedded) {
		return terms, nil
	}

	var envelope struct {
		Terms json.RawMessage `json:"wp:term"`
	}
	if err := json.Unmarshal(embedded, &envelope); err != nil {
		return terms, fmt.Errorf("failed to decode _embedded: %w", err)
	}
	if isAbsent(envelope.Terms) {
		return terms, nil
	}

	var groups [][]embeddedTerm
	if err := json.Unmarshal(envelope.Terms, &groups); err != nil {
		return terms, fmt.Errorf("failed to decode wp:term: %w", err)
	}

	for _, group := range groups {
		for _, term := range group {
			switch term.Taxonomy {
			case taxonomyCategory:
				terms.Categories = append(terms.Categories, term.Name)
			case taxonomyTag:
				terms.Tags = append(terms.Tags, term.Name)
			}
		}
	}
	terms.Resolved = true

	return terms, nil
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
