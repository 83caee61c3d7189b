// Package normalize migrates question documents from the legacy scalar image
// fields (imageUrl, imagePublicId) to the canonical array fields (imageUrls,
// imagePublicIds) and verifies the result.
//
// A pass is idempotent: documents already in canonical shape are never
// written, so running it again on a clean collection performs no writes.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"progportal/internal/docstore"

	"github.com/rs/zerolog"
)

var (
	ErrScan   = errors.New("scan candidates")
	ErrVerify = errors.New("verify collection")
)

// Store is the subset of a document collection the normalizer needs.
type Store interface {
	Find(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Document, error)
	UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error)
	Count(ctx context.Context, filter docstore.Filter) (int64, error)
}

type Options struct {
	// SeedEmptySequences lets a populated legacy value replace a canonical
	// field that is an empty array. By default any existing array wins.
	SeedEmptySequences bool
	// DryRun plans every document without writing.
	DryRun bool
}

type Normalizer struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

func New(opts Options, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		opts: opts,
		log:  log.With().Str("component", "normalizer").Logger(),
		now:  time.Now,
	}
}

// CandidateFilter matches every document not yet in canonical shape.
func CandidateFilter() docstore.Filter {
	return docstore.Or(
		docstore.Exists(FieldImageURL),
		docstore.Exists(FieldImagePublicID),
		docstore.NotArray(FieldImageURLs),
		docstore.NotArray(FieldImagePublicIDs),
	)
}

func newFormatFilter() docstore.Filter {
	return docstore.And(docstore.IsArray(FieldImageURLs), docstore.IsArray(FieldImagePublicIDs))
}

func oldFormatFilter() docstore.Filter {
	return docstore.Or(docstore.Exists(FieldImageURL), docstore.Exists(FieldImagePublicID))
}

// Normalize runs one full pass over store. It returns an error only when the
// initial scan or the verification queries fail; per-document write
// failures are recorded in the report.
func (n *Normalizer) Normalize(ctx context.Context, store Store) (*Report, error) {
	report := &Report{StartedAt: n.now().UTC(), DryRun: n.opts.DryRun}

	total, err := store.Count(ctx, docstore.All())
	if err != nil {
		return nil, fmt.Errorf("%w: count documents: %v", ErrScan, err)
	}
	candidates, err := store.Find(ctx, CandidateFilter(), docstore.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScan, err)
	}
	report.Total = total
	report.Candidates = len(candidates)
	report.Skipped = int(total) - len(candidates)
	if report.Skipped < 0 {
		report.Skipped = 0
	}
	n.log.Info().Int64("total", total).Int("candidates", len(candidates)).Bool("dry_run", n.opts.DryRun).Msg("normalization started")

	report.Outcomes = make([]Outcome, 0, len(candidates))
	for _, doc := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := n.processDocument(ctx, store, doc)
		report.record(out)
	}

	verification, err := n.verify(ctx, store)
	if err != nil {
		return nil, err
	}
	report.Verification = verification
	report.FinishedAt = n.now().UTC()

	n.log.Info().
		Int64("total", report.Total).
		Int("migrated", report.Migrated).
		Int("skipped", report.Skipped).
		Int("anomalies", report.Anomalies).
		Int("failed", report.Failed).
		Int("remaining", len(verification.RemainingOffenders)).
		Msg("normalization finished")
	return report, nil
}

func (n *Normalizer) processDocument(ctx context.Context, store Store, doc docstore.Document) Outcome {
	log := n.log.With().Str("document_id", doc.ID).Logger()
	plan := planDocument(doc.Fields, n.opts)
	out := Outcome{DocumentID: doc.ID, Set: plan.Set, Unset: plan.Unset}

	if plan.Empty() {
		log.Debug().Msg("already canonical")
		out.Action = ActionSkipped
		return out
	}
	if n.opts.DryRun {
		log.Debug().Interface("set", plan.Set).Strs("unset", plan.Unset).Msg("planned")
		out.Action = ActionPlanned
		return out
	}

	modified, err := store.UpdateFields(ctx, doc.ID, plan.Set, plan.Unset)
	if err != nil {
		log.Error().Err(err).Msg("update failed")
		out.Action = ActionFailed
		out.Error = err.Error()
		return out
	}
	if modified == 0 {
		log.Warn().Msg("update matched but modified nothing")
		out.Action = ActionAnomaly
		return out
	}
	log.Debug().Interface("set", plan.Set).Strs("unset", plan.Unset).Msg("migrated")
	out.Action = ActionMigrated
	return out
}

func (n *Normalizer) verify(ctx context.Context, store Store) (Verification, error) {
	var v Verification
	var err error

	if v.DocumentsWithNewFormat, err = store.Count(ctx, newFormatFilter()); err != nil {
		return v, fmt.Errorf("%w: count new format: %v", ErrVerify, err)
	}
	if v.DocumentsWithOldFormat, err = store.Count(ctx, oldFormatFilter()); err != nil {
		return v, fmt.Errorf("%w: count old format: %v", ErrVerify, err)
	}
	offenders, err := store.Find(ctx, CandidateFilter(), docstore.FindOptions{})
	if err != nil {
		return v, fmt.Errorf("%w: %v", ErrVerify, err)
	}
	v.RemainingOffenders = make([]string, 0, len(offenders))
	for _, d := range offenders {
		v.RemainingOffenders = append(v.RemainingOffenders, d.ID)
		n.log.Warn().Str("document_id", d.ID).Msg("document still not canonical")
	}
	return v, nil
}
