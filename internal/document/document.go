// Package document provides the document-store side of the app: profile
// records and other loosely-typed documents addressed by (collection, id).
// Records are schemaless maps; typed decoding with defaults happens at the
// caller's boundary (see the profile package).
package document

import "context"

// Record is a loosely-typed document body.
type Record map[string]any

// Document pairs a record with its id for listing and query results.
type Document struct {
	ID   string
	Data Record
}

// Store is the generic document-store surface.
type Store interface {
	// Get returns the record at (collection, id), or nil if absent.
	Get(ctx context.Context, collection, id string) (Record, error)

	// SetField writes a single field of a document, creating the document
	// if needed. Last writer wins.
	SetField(ctx context.Context, collection, id, field string, value any) error

	// List returns every document in a collection.
	List(ctx context.Context, collection string) ([]Document, error)

	// Query returns the documents whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)
}
