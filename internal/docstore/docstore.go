// Package docstore is a small document-store abstraction over loosely typed
// records. Adapters exist for MongoDB, a Postgres jsonb table and an
// in-process map.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrInvalidID     = errors.New("invalid document id")
	ErrUnknownDriver = errors.New("unknown store driver")
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Document is a schemaless record. Fields never contains the identifier key
// and holds only plain Go values: map[string]any, []any, string, bool, nil,
// time.Time and numeric types.
type Document struct {
	ID     string
	Fields map[string]any
}

// FindOptions tweaks result ordering. SortDesc names a time-valued field.
type FindOptions struct {
	SortDesc string
	Limit    int64
}

// Collection is one named set of documents.
type Collection interface {
	Insert(ctx context.Context, fields map[string]any) (string, error)
	FindByID(ctx context.Context, id string) (*Document, error)
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// UpdateFields sets and unsets top-level fields of one document and
	// reports how many documents were modified (0 or 1).
	UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error)
	Replace(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	Distinct(ctx context.Context, field string, filter Filter) ([]any, error)
	// Increment adds delta to a numeric field, creating the document when it
	// does not exist, and returns the new value.
	Increment(ctx context.Context, id, field string, delta int64) (int64, error)
}

// DB is an open store connection.
type DB interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Driver() string
}

type Config struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	MaxOpenConns  int
}

// Open connects to the configured backend. The returned DB has already been
// pinged; callers own it and must Close it.
func Open(ctx context.Context, cfg Config) (DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMongo, "":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN, cfg.MaxOpenConns)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
