package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"progportal/internal/db"

	"github.com/google/uuid"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	doc JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

// Postgres keeps every collection in one jsonb table keyed by
// (collection, id).
type Postgres struct {
	db *sql.DB
}

type postgresCollection struct {
	db   *sql.DB
	name string
}

func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int) (*Postgres, error) {
	cfg := db.DefaultPostgresConfig()
	if maxOpenConns > 0 {
		cfg.MaxOpenConns = maxOpenConns
		cfg.MaxIdleConns = maxOpenConns
	}
	conn, err := db.OpenPostgresWithConfig(ctx, dsn, cfg)
	if err != nil {
		return nil, err
	}
	p := NewPostgres(conn)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an already opened connection pool.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{db: conn}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (p *Postgres) Collection(name string) Collection {
	return &postgresCollection{db: p.db, name: name}
}

func (p *Postgres) Ping(ctx context.Context) error  { return p.db.PingContext(ctx) }
func (p *Postgres) Close(ctx context.Context) error { return p.db.Close() }
func (p *Postgres) Driver() string                  { return DriverPostgres }

// SQLDB exposes the pool for metrics.
func (p *Postgres) SQLDB() *sql.DB { return p.db }

func (c *postgresCollection) Insert(ctx context.Context, fields map[string]any) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	id := uuid.NewString()
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)
	`, c.name, id, string(raw)); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (c *postgresCollection) FindByID(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var raw []byte
	if err := c.db.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND id = $2
	`, c.name, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	fields, err := decodeJSONB(raw)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Fields: fields}, nil
}

func (c *postgresCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	q := newSQLQuery(c.name)
	where := q.compile(filter)
	query := `SELECT id, doc FROM documents WHERE collection = $1 AND ` + where
	if opts.SortDesc != "" {
		query += ` ORDER BY (doc->>` + q.arg(opts.SortDesc) + `)::timestamptz DESC NULLS LAST, created_at DESC`
	} else {
		query += ` ORDER BY created_at, id`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ` + q.arg(opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decodeJSONB(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (c *postgresCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	q := newSQLQuery(c.name)
	where := q.compile(filter)
	var n int64
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1 AND `+where, q.args...,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (c *postgresCollection) UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error) {
	if len(set) == 0 && len(unset) == 0 {
		return 0, nil
	}
	if set == nil {
		set = map[string]any{}
	}
	if unset == nil {
		unset = []string{}
	}
	setRaw, err := json.Marshal(set)
	if err != nil {
		return 0, fmt.Errorf("marshal set fields: %w", err)
	}
	unsetRaw, err := json.Marshal(unset)
	if err != nil {
		return 0, fmt.Errorf("marshal unset fields: %w", err)
	}

	// The guard keeps no-op updates from counting as modifications.
	res, err := c.db.ExecContext(ctx, `
		WITH next AS (
			SELECT (doc - ARRAY(SELECT jsonb_array_elements_text($3::jsonb))) || $4::jsonb AS doc
			FROM documents
			WHERE collection = $1 AND id = $2
		)
		UPDATE documents d
		SET doc = next.doc
		FROM next
		WHERE d.collection = $1 AND d.id = $2 AND d.doc IS DISTINCT FROM next.doc
	`, c.name, id, string(unsetRaw), string(setRaw))
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update document rows: %w", err)
	}
	return n, nil
}

func (c *postgresCollection) Replace(ctx context.Context, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET doc = $3::jsonb WHERE collection = $1 AND id = $2
	`, c.name, id, string(raw))
	if err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return requireAffected(res)
}

func (c *postgresCollection) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, c.name, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res)
}

func (c *postgresCollection) Distinct(ctx context.Context, field string, filter Filter) ([]any, error) {
	q := newSQLQuery(c.name)
	pathArg := q.arg(jsonPath([]string{field}))
	where := q.compile(filter)
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT v
		FROM documents, jsonb_path_query(doc, `+pathArg+`::jsonpath) AS v
		WHERE collection = $1 AND `+where+` AND jsonb_typeof(v) <> 'null'`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	defer rows.Close()

	out := make([]any, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan distinct: %w", err)
		}
		v, err := decodeJSONValue(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct: %w", err)
	}
	return out, nil
}

func (c *postgresCollection) Increment(ctx context.Context, id, field string, delta int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var n int64
	if err := c.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, doc)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint, 'updatedAt', $5::text))
		ON CONFLICT (collection, id) DO UPDATE
		SET doc = documents.doc || jsonb_build_object(
			$3::text, COALESCE((documents.doc->>$3::text)::bigint, 0) + $4::bigint,
			'updatedAt', $5::text
		)
		RETURNING (doc->>$3::text)::bigint
	`, c.name, id, field, delta, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment %s: %w", field, err)
	}
	return n, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeJSONB(raw []byte) (map[string]any, error) {
	v, err := decodeJSONValue(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode jsonb: document is %T, not an object", v)
	}
	return m, nil
}

func decodeJSONValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode jsonb: %w", err)
	}
	return normalizeValue(v), nil
}

// sqlQuery accumulates positional arguments while a Filter is compiled. $1
// is always the collection name.
type sqlQuery struct {
	args []any
}

func newSQLQuery(collection string) *sqlQuery {
	return &sqlQuery{args: []any{collection}}
}

func (q *sqlQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *sqlQuery) jsonArg(v any) string {
	raw, _ := json.Marshal(v)
	return q.arg(string(raw)) + "::jsonb"
}

func (q *sqlQuery) compile(f Filter) string {
	switch f.op {
	case opAll:
		return "TRUE"
	case opExists:
		return "(doc ? " + q.arg(f.field) + "::text)"
	case opIsArray:
		return "(jsonb_typeof(doc->" + q.arg(f.field) + "::text) = 'array')"
	case opNotArray:
		return "(jsonb_typeof(doc->" + q.arg(f.field) + "::text) IS DISTINCT FROM 'array')"
	case opEq:
		return "(doc @> " + q.jsonArg(map[string]any{f.field: f.value}) + ")"
	case opContains:
		return "(doc->" + q.arg(f.field) + "::text @> " + q.jsonArg([]any{f.value}) + ")"
	case opMatch:
		path := q.arg(jsonPath(strings.Split(f.field, ".")))
		pattern := q.arg("%" + escapeLike(f.value.(string)) + "%")
		return "EXISTS (SELECT 1 FROM jsonb_path_query(doc, " + path + "::jsonpath) AS v" +
			" WHERE jsonb_typeof(v) = 'string' AND v #>> '{}' ILIKE " + pattern + ")"
	case opAnd, opOr:
		if len(f.children) == 0 {
			if f.op == opAnd {
				return "TRUE"
			}
			return "FALSE"
		}
		parts := make([]string, 0, len(f.children))
		for _, c := range f.children {
			parts = append(parts, q.compile(c))
		}
		sep := " AND "
		if f.op == opOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")"
	default:
		return "FALSE"
	}
}

// jsonPath builds a lax path that unwraps arrays at every step, so "tags"
// yields each tag and "answers.code" yields each answer's code.
func jsonPath(segments []string) string {
	var sb strings.Builder
	sb.WriteString("lax $")
	for _, s := range segments {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		sb.WriteString(`."` + s + `"[*]`)
	}
	return sb.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
