// Package models defines core data structures for documents, chunks, matches, and answers.
package models

import "time"

// Document is an ingested source document. It is immutable after ingestion
// except for ChunkCount.
type Document struct {
	ID         string    `json:"id"`
	Tenant     string    `json:"tenant"`
	Name       string    `json:"doc_name"`
	Type       string    `json:"doc_type"`
	Link       string    `json:"doc_link,omitempty"`
	Content    string    `json:"text,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Chunk is a contiguous slice of a document's text. Positions are dense in
// [0, ChunkCount) within a document.
type Chunk struct {
	ID           string    `json:"id"`
	Tenant       string    `json:"-"`
	DocumentID   string    `json:"doc_uuid"`
	DocumentName string    `json:"doc_name"`
	DocumentType string    `json:"doc_type"`
	Position     int       `json:"chunk_id"`
	Content      string    `json:"text"`
	TokenCount   int       `json:"tokens"`
	Embedding    []float32 `json:"-"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	// ID is optional; a random one is assigned when empty.
	ID      string `json:"-"`
	Name    string `json:"doc_name"`
	Type    string `json:"doc_type,omitempty"`
	Link    string `json:"doc_link,omitempty"`
	Content string `json:"text"`
}
