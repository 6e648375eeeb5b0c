package models

import "time"

// FeedbackRecord is one generated piece of mock user feedback. Records are
// written once and never mutated.
type FeedbackRecord struct {
	ID        int       `json:"id"`
	Text      string    `json:"feedback"`
	CreatedAt time.Time `json:"timestamp"`
}

// CorpusMetadata is the singleton record tracking how many feedback records
// the corpus holds.
type CorpusMetadata struct {
	TotalCount  int       `json:"count"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// GenerationRequest is the body accepted by the generate endpoint.
type GenerationRequest struct {
	Count int `json:"count"`
}

// BatchResult describes a committed batch.
type BatchResult struct {
	Generated  int              `json:"generated"`
	TotalCount int              `json:"totalCount"`
	Feedbacks  []FeedbackRecord `json:"feedbacks"`
}

// Progress reports how far the corpus is from its target size
type Progress struct {
	Count       int        `json:"count"`
	Percent     string     `json:"progress"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Target      int        `json:"-"`
	Empty       bool       `json:"-"` // no metadata record exists yet
}

// Listing is the set of stored record keys
type Listing struct {
	Count int      `json:"count"`
	Files []string `json:"files"`
}

// Drift compares the metadata count with the record objects actually stored.
type Drift struct {
	MetadataCount int  `json:"metadataCount"`
	StoredCount   int  `json:"storedCount"`
	Truncated     bool `json:"truncated"` // listing hit the limit, StoredCount is a lower bound
}

// Consistent reports whether the metadata matches the stored records.
func (d Drift) Consistent() bool {
	return !d.Truncated && d.MetadataCount == d.StoredCount
}
