package domain

// StructuredLabel is the classification a document carries after ingestion.
// All fields are optional free text supplied by the ingestion collaborator.
type StructuredLabel struct {
	Category   string   `json:"category,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Feature    string   `json:"feature,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Status     string   `json:"status,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Document is the read-only view of an indexed document chunk. Ingestion owns
// the write path; this core never mutates documents.
type Document struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Content    string           `json:"content,omitempty"`
	Labels     []string         `json:"labels,omitempty"`
	Structured *StructuredLabel `json:"structured_label,omitempty"`
}
