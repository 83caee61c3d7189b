package normalize

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"progportal/internal/docstore"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type countingStore struct {
	*docstore.MemoryCollection
	updates int
}

func (s *countingStore) UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error) {
	s.updates++
	return s.MemoryCollection.UpdateFields(ctx, id, set, unset)
}

type mockStore struct {
	findFn   func(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Document, error)
	updateFn func(ctx context.Context, id string, set map[string]any, unset []string) (int64, error)
	countFn  func(ctx context.Context, filter docstore.Filter) (int64, error)
}

func (m *mockStore) Find(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Document, error) {
	if m.findFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.findFn(ctx, filter, opts)
}

func (m *mockStore) UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error) {
	if m.updateFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.updateFn(ctx, id, set, unset)
}

func (m *mockStore) Count(ctx context.Context, filter docstore.Filter) (int64, error) {
	if m.countFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.countFn(ctx, filter)
}

func newStore(seed map[string]map[string]any, order ...string) *countingStore {
	c := docstore.NewMemory().Named("questions")
	for _, id := range order {
		c.Seed(id, seed[id])
	}
	return &countingStore{MemoryCollection: c}
}

func mustFind(t *testing.T, s *countingStore, id string) map[string]any {
	t.Helper()
	doc, err := s.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return doc.Fields
}

func assertNoLegacyKeys(t *testing.T, fields map[string]any) {
	t.Helper()
	for _, k := range []string{FieldImageURL, FieldImagePublicID} {
		if _, ok := fields[k]; ok {
			t.Fatalf("legacy key %q still present in %+v", k, fields)
		}
	}
}

func assertSeq(t *testing.T, fields map[string]any, key string, want []any) {
	t.Helper()
	got, ok := fields[key].([]any)
	if !ok {
		t.Fatalf("%s is %#v, not a sequence", key, fields[key])
	}
	if len(got) != len(want) || (len(want) > 0 && !reflect.DeepEqual(got, want)) {
		t.Fatalf("%s=%#v want=%#v", key, got, want)
	}
}

func scenarioStore() *countingStore {
	return newStore(map[string]map[string]any{
		"s1": {"imageUrl": "a.jpg", "imagePublicId": "pid1"},
		"s2": {"imageUrl": nil, "imagePublicId": nil},
		"s3": {"imageUrls": []any{"x.jpg"}, "imagePublicIds": []any{"pidx"}, "imageUrl": "old.jpg"},
		"s4": {"title": "t"},
		"ok": {"title": "done", "imageUrls": []any{}, "imagePublicIds": []any{}},
	}, "s1", "s2", "s3", "s4", "ok")
}

func TestNormalizeScenarios(t *testing.T) {
	store := scenarioStore()
	n := New(Options{}, zerolog.Nop())

	report, err := n.Normalize(context.Background(), store)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	s1 := mustFind(t, store, "s1")
	assertNoLegacyKeys(t, s1)
	assertSeq(t, s1, FieldImageURLs, []any{"a.jpg"})
	assertSeq(t, s1, FieldImagePublicIDs, []any{"pid1"})

	s2 := mustFind(t, store, "s2")
	assertNoLegacyKeys(t, s2)
	assertSeq(t, s2, FieldImageURLs, []any{})
	assertSeq(t, s2, FieldImagePublicIDs, []any{})

	s3 := mustFind(t, store, "s3")
	assertNoLegacyKeys(t, s3)
	assertSeq(t, s3, FieldImageURLs, []any{"x.jpg"})
	assertSeq(t, s3, FieldImagePublicIDs, []any{"pidx"})

	s4 := mustFind(t, store, "s4")
	assertSeq(t, s4, FieldImageURLs, []any{})
	assertSeq(t, s4, FieldImagePublicIDs, []any{})
	if s4["title"] != "t" {
		t.Fatalf("unrelated field changed: %+v", s4)
	}

	if report.Total != 5 || report.Candidates != 4 || report.Migrated != 4 || report.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Failed != 0 || report.Anomalies != 0 {
		t.Fatalf("unexpected failures: %+v", report)
	}
	if len(report.Outcomes) != 4 || report.Outcomes[0].DocumentID != "s1" || report.Outcomes[3].DocumentID != "s4" {
		t.Fatalf("outcomes not in scan order: %+v", report.Outcomes)
	}
	v := report.Verification
	if v.DocumentsWithNewFormat != 5 || v.DocumentsWithOldFormat != 0 || len(v.RemainingOffenders) != 0 {
		t.Fatalf("unexpected verification: %+v", v)
	}
	if !report.Clean() {
		t.Fatalf("expected clean report")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	store := scenarioStore()
	n := New(Options{}, zerolog.Nop())
	ctx := context.Background()

	if _, err := n.Normalize(ctx, store); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	before := map[string]map[string]any{}
	for _, id := range []string{"s1", "s2", "s3", "s4", "ok"} {
		before[id] = mustFind(t, store, id)
	}

	store.updates = 0
	report, err := n.Normalize(ctx, store)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if store.updates != 0 || report.Writes() != 0 {
		t.Fatalf("second pass wrote %d times", store.updates)
	}
	if report.Candidates != 0 || report.Skipped != 5 {
		t.Fatalf("unexpected second pass report: %+v", report)
	}
	for id, fields := range before {
		if after := mustFind(t, store, id); !reflect.DeepEqual(after, fields) {
			t.Fatalf("document %s changed on second pass: before=%+v after=%+v", id, fields, after)
		}
	}
}

func TestNormalizePartialFailureIsolation(t *testing.T) {
	store := newStore(map[string]map[string]any{
		"a":   {"imageUrl": "a.jpg"},
		"bad": {"imageUrl": "b.jpg"},
		"c":   {"imagePublicId": "pc"},
	}, "a", "bad", "c")
	store.FailUpdates(func(id string) error {
		if id == "bad" {
			return errors.New("write rejected")
		}
		return nil
	})

	report, err := New(Options{}, zerolog.Nop()).Normalize(context.Background(), store)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if report.Migrated != 2 || report.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}

	var failed *Outcome
	for i := range report.Outcomes {
		if report.Outcomes[i].DocumentID == "bad" {
			failed = &report.Outcomes[i]
		}
	}
	if failed == nil || failed.Action != ActionFailed || failed.Error != "write rejected" {
		t.Fatalf("failing document not reported: %+v", report.Outcomes)
	}
	if got := report.Verification.RemainingOffenders; len(got) != 1 || got[0] != "bad" {
		t.Fatalf("expected bad as the only offender, got %v", got)
	}
	if report.Clean() {
		t.Fatalf("report with failures must not be clean")
	}

	assertSeq(t, mustFind(t, store, "a"), FieldImageURLs, []any{"a.jpg"})
	assertSeq(t, mustFind(t, store, "c"), FieldImagePublicIDs, []any{"pc"})
}

func TestNormalizeDryRunWritesNothing(t *testing.T) {
	store := scenarioStore()
	report, err := New(Options{DryRun: true}, zerolog.Nop()).Normalize(context.Background(), store)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("dry run issued %d writes", store.updates)
	}
	if report.Planned != 4 || report.Migrated != 0 {
		t.Fatalf("unexpected dry run counts: %+v", report)
	}
	if len(report.Verification.RemainingOffenders) != 4 {
		t.Fatalf("dry run should leave offenders in place: %+v", report.Verification)
	}
	if _, ok := mustFind(t, store, "s1")[FieldImageURL]; !ok {
		t.Fatalf("dry run modified a document")
	}
}

func TestNormalizeAnomalyOnZeroModified(t *testing.T) {
	store := &mockStore{
		countFn: func(ctx context.Context, filter docstore.Filter) (int64, error) { return 1, nil },
		findFn: func(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Document, error) {
			return []docstore.Document{{ID: "q1", Fields: map[string]any{"imageUrl": "a.jpg"}}}, nil
		},
		updateFn: func(ctx context.Context, id string, set map[string]any, unset []string) (int64, error) {
			return 0, nil
		},
	}

	report, err := New(Options{}, zerolog.Nop()).Normalize(context.Background(), store)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if report.Anomalies != 1 || report.Outcomes[0].Action != ActionAnomaly || report.Outcomes[0].Error != "" {
		t.Fatalf("expected soft anomaly, got %+v", report)
	}
}

func TestNormalizeScanFailureIsFatal(t *testing.T) {
	boom := errors.New("connection refused")
	store := &mockStore{
		countFn: func(ctx context.Context, filter docstore.Filter) (int64, error) { return 3, nil },
		findFn: func(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Document, error) {
			return nil, boom
		},
	}

	report, err := New(Options{}, zerolog.Nop()).Normalize(context.Background(), store)
	if !errors.Is(err, ErrScan) {
		t.Fatalf("expected ErrScan, got %v", err)
	}
	if report != nil {
		t.Fatalf("expected no partial report, got %+v", report)
	}
}

func TestNormalizeVerifyFailure(t *testing.T) {
	calls := 0
	store := &mockStore{
		countFn: func(ctx context.Context, filter docstore.Filter) (int64, error) {
			calls++
			if calls > 1 {
				return 0, errors.New("lost connection")
			}
			return 0, nil
		},
		findFn: func(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Document, error) {
			return nil, nil
		},
	}

	if _, err := New(Options{}, zerolog.Nop()).Normalize(context.Background(), store); !errors.Is(err, ErrVerify) {
		t.Fatalf("expected ErrVerify, got %v", err)
	}
}

func TestNormalizeHonoursCancellation(t *testing.T) {
	store := scenarioStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(Options{}, zerolog.Nop()).Normalize(ctx, store); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if store.updates != 0 {
		t.Fatalf("cancelled pass wrote %d times", store.updates)
	}
}

func TestRenderTextAndXLSX(t *testing.T) {
	store := newStore(map[string]map[string]any{
		"a":   {"imageUrl": "a.jpg"},
		"bad": {"imageUrl": "b.jpg"},
	}, "a", "bad")
	store.FailUpdates(func(id string) error {
		if id == "bad" {
			return errors.New("write rejected")
		}
		return nil
	})
	report, err := New(Options{}, zerolog.Nop()).Normalize(context.Background(), store)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	var text bytes.Buffer
	if err := RenderText(&text, report, true); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := text.String()
	for _, want := range []string{"Migrated: 1", "Failed: 1", "failed    bad", "error=write rejected", "1 documents still need attention"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered report missing %q:\n%s", want, out)
		}
	}

	var book bytes.Buffer
	if err := WriteXLSX(&book, report); err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	f, err := excelize.OpenReader(&book)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("outcomes")
	if err != nil {
		t.Fatalf("read outcomes: %v", err)
	}
	if len(rows) != 3 || rows[2][0] != "bad" || rows[2][1] != "failed" {
		t.Fatalf("unexpected outcome rows: %v", rows)
	}
	offenders, err := f.GetRows("offenders")
	if err != nil {
		t.Fatalf("read offenders: %v", err)
	}
	if len(offenders) != 2 || offenders[1][0] != "bad" {
		t.Fatalf("unexpected offender rows: %v", offenders)
	}
}
