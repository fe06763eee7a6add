package db

import (
	"context"
	"errors"
)

// Collection names used by the calendar engine.
const (
	ConfigsCollection       = "configs"
	RegistrationsCollection = "registrations"
	QRTokensCollection      = "qrtokens"
	CountersCollection      = "counters"
	TransfersCollection     = "transfers"
)

var ErrNotFound = errors.New("document not found")

// Filter is an attribute-equality query: every key must equal its value.
type Filter map[string]any

// Collection is one named bucket of keyed, schemaless documents. Writes are
// atomic per document; there are no cross-document transactions.
type Collection interface {
	// Get decodes the document with the given id into out.
	Get(ctx context.Context, id string, out any) error
	// Put stores doc under id, replacing any existing document (last
	// writer wins per key).
	Put(ctx context.Context, id string, doc any) error
	// Patch sets the given fields on an existing document.
	Patch(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	// FindOne decodes the first document matching filter into out.
	FindOne(ctx context.Context, filter Filter, out any) error
	// Find decodes all matching documents into out (a pointer to a slice).
	Find(ctx context.Context, filter Filter, out any) error
	// IncrementWithLimit atomically adds delta to the named numeric field
	// of the document with the given id, but only if the result stays at
	// or below limit. The document is created with a zero field if absent.
	// Returns false when the increment would exceed the limit. A negative
	// delta always applies. Single-document atomicity is sufficient.
	IncrementWithLimit(ctx context.Context, id, field string, delta, limit int64) (bool, error)
}

// Store is the keyed document store the engine runs against.
type Store interface {
	Collection(name string) Collection
}
