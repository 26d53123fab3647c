package domain

import "time"

// Document is the durable record shared between the ingestion API and the
// OCR worker. The worker only ever writes Summary; everything else is set
// once at upload time.
type Document struct {
	ID               string     `json:"id"`
	Title            string     `json:"title,omitempty"`
	Location         string     `json:"location,omitempty"`
	Author           string     `json:"author,omitempty"`
	CreationDate     *time.Time `json:"creation_date,omitempty"`
	OriginalFileName string     `json:"original_file_name"`
	ContentType      string     `json:"content_type"`
	SizeBytes        int64      `json:"size_bytes"`
	Bucket           string     `json:"bucket"`
	ObjectKey        string     `json:"object_key"`
	Summary          string     `json:"summary,omitempty"`
	CreatedUtc       time.Time  `json:"created_utc"`
	UpdatedUtc       time.Time  `json:"updated_utc"`
}

// Metadata carries the optional descriptive fields accepted at upload time.
type Metadata struct {
	Title        string
	Location     string
	Author       string
	CreationDate *time.Time
}
