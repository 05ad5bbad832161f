package types

// SearchResult is one ranked hit returned by the hybrid search engine
type SearchResult struct {
	ID         int64
	Content    string
	Source     string
	Similarity float64

	// Pass that first produced the hit: "lexical" or "vector"
	Origin string

	// Stored metadata, used when the content carries no header
	Record *Record
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == 0 {
		return ErrInvalidRecordID
	}
	if sr.Similarity < 0 || sr.Similarity > 1 {
		return ErrInvalidSimilarity
	}
	if sr.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// FicheView is the display-ready projection of a search result
type FicheView struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"reference,omitempty"`
	Chapter     string    `json:"chapter,omitempty"`
	ChapterName string    `json:"chapter_name,omitempty"`
	Type        FicheType `json:"type,omitempty"`
	TypeName    string    `json:"type_name,omitempty"`
	UpdateDate  string    `json:"update_date,omitempty"`
	Level       Level     `json:"level,omitempty"`
	Title       string    `json:"title,omitempty"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	Similarity  float64   `json:"similarity"`
}

// IsFiche reports whether the view was recovered from a fiche header
func (v *FicheView) IsFiche() bool {
	return v.Reference != ""
}
