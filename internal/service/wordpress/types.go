package wordpress

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type (
	// Rendered is the {"rendered": "..."} wrapper WordPress uses for title and
	// content. A bare JSON string is accepted too.
	Rendered struct {
		Rendered string `json:"rendered"`
	}

	// Post is one upstream post object. CategoryNames and TagNames are only
	// present on pre-annotated import payloads.
	Post struct {
		ID            int64           `json:"id"`
		Title         Rendered        `json:"title"`
		Link          string          `json:"link"`
		Date          string          `json:"date"`
		Modified      string          `json:"modified"`
		Status        string          `json:"status"`
		Type          string          `json:"type"`
		Content       Rendered        `json:"content"`
		CategoryNames []string        `json:"categoryNames,omitempty"`
		TagNames      []string        `json:"tagNames,omitempty"`
		Embedded      json.RawMessage `json:"_embedded,omitempty"`
	}

	// Page is one fetched page of raw post payloads plus pagination metadata.
	Page struct {
		Posts      []json.RawMessage
		TotalPages int
		TotalPosts int
	}
)

func (r *Rendered) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Rendered)
	}

	var wrapped struct {
		Rendered string `json:"rendered"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("invalid rendered field: %w", err)
	}
	r.Rendered = wrapped.Rendered
	return nil
}

// Options are the caller supplied knobs of a sync; zero values fall back to
// the configured defaults.
type Options struct {
	APIURL          string `json:"apiUrl"`
	Page            int    `json:"page"`
	PerPage         int    `json:"perPage"`
	IncludeEmbedded *bool  `json:"includeEmbedded"`
}

// BatchResult counts the outcome of reconciling a batch of posts.
type BatchResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

func (r BatchResult) Summary() string {
	return fmt.Sprintf("Import complete. Created: %d, Updated: %d, Errors: %d", r.Created, r.Updated, r.Errors)
}

// PageResult is the outcome of a single-page sync.
type PageResult struct {
	BatchResult
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	TotalPosts int `json:"totalPosts"`
}

func (r PageResult) Summary() string {
	return fmt.Sprintf("Sync complete for page %d/%d. Created: %d, Updated: %d, Errors: %d",
		r.Page, r.TotalPages, r.Created, r.Updated, r.Errors)
}

// PageOutcome is one entry of an all-pages sync. Counts are only set when the
// page succeeded; Error only when it failed.
type PageOutcome struct {
	Page    int    `json:"page"`
	Success bool   `json:"success"`
	Created *int   `json:"created,omitempty"`
	Updated *int   `json:"updated,omitempty"`
	Errors  *int   `json:"errors,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AllPagesResult aggregates an all-pages sync.
type AllPagesResult struct {
	Pages        []PageOutcome `json:"pages"`
	TotalCreated int           `json:"totalCreated"`
	TotalUpdated int           `json:"totalUpdated"`
	TotalErrors  int           `json:"totalErrors"`
	TotalPages   int           `json:"totalPages"`
	TotalPosts   int           `json:"totalPosts"`
}

func (r AllPagesResult) Summary() string {
	return fmt.Sprintf("Sync complete for all %d pages. Created: %d, Updated: %d, Errors: %d",
		r.TotalPages, r.TotalCreated, r.TotalUpdated, r.TotalErrors)
}

// FailedPages counts entries that did not complete.
func (r AllPagesResult) FailedPages() int {
	n := 0
	for _, p := range r.Pages {
		if !p.Success {
			n++
		}
	}
	return n
}

// ProbeResult reports the upstream size without importing anything.
type ProbeResult struct {
	APIURL     string `json:"apiUrl"`
	PerPage    int    `json:"perPage"`
	TotalPages int    `json:"totalPages"`
	TotalPosts int    `json:"totalPosts"`
}
