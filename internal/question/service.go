package question

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"progportal/internal/docstore"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAnswerNotFound   = errors.New("answer language not found")
	ErrLastAnswer       = errors.New("cannot remove last remaining answer")
)

// searchPaths are the fields a free-text search looks at.
var searchPaths = []string{"title", "statement", "tags", "answers.explanation", "answers.code"}

type Service struct {
	store docstore.Collection
	now   func() time.Time
}

func NewService(store docstore.Collection) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type ListFilter struct {
	Search   string
	Language string
	Level    int
}

// Input carries a create or update request. Nil fields are left unchanged.
type Input struct {
	Level          *int
	Title          *string
	Statement      *string
	ImageURLs      *[]string
	ImagePublicIDs *[]string
	Answers        *[]Answer
	Tags           *[]string
}

func (in Input) apply(q *Question) {
	if in.Level != nil {
		q.Level = *in.Level
	}
	if in.Title != nil {
		q.Title = *in.Title
	}
	if in.Statement != nil {
		q.Statement = *in.Statement
	}
	if in.ImageURLs != nil {
		q.ImageURLs = append([]string(nil), (*in.ImageURLs)...)
	}
	if in.ImagePublicIDs != nil {
		q.ImagePublicIDs = append([]string(nil), (*in.ImagePublicIDs)...)
	}
	if in.Answers != nil {
		q.Answers = append([]Answer(nil), (*in.Answers)...)
	}
	if in.Tags != nil {
		q.Tags = append([]string(nil), (*in.Tags)...)
	}
}

func listQuery(f ListFilter) docstore.Filter {
	clauses := make([]docstore.Filter, 0, 3)
	if f.Level > 0 {
		clauses = append(clauses, docstore.Eq(fieldLevel, int64(f.Level)))
	}
	if lang := normalizeLanguage(f.Language); lang != "" {
		clauses = append(clauses, docstore.Contains(fieldLanguages, lang))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		matches := make([]docstore.Filter, 0, len(searchPaths))
		for _, p := range searchPaths {
			matches = append(matches, docstore.Match(p, search))
		}
		clauses = append(clauses, docstore.Or(matches...))
	}
	if len(clauses) == 0 {
		return docstore.All()
	}
	return docstore.And(clauses...)
}

// List returns matching questions, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Question, error) {
	if f.Level != 0 && !validLevel(f.Level) {
		return nil, fmt.Errorf("%w: level must be between %d and %d", ErrInvalidInput, minLevel, maxLevel)
	}
	docs, err := s.store.Find(ctx, listQuery(f), docstore.FindOptions{SortDesc: fieldCreatedAt})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]Question, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Question, error) {
	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("get question", err)
	}
	q := fromDocument(*doc)
	return &q, nil
}

// Languages lists every answer language in use, sorted.
func (s *Service) Languages(ctx context.Context) ([]string, error) {
	values, err := s.store.Distinct(ctx, fieldLanguages, docstore.All())
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if lang, ok := v.(string); ok && lang != "" {
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*Question, error) {
	var q Question
	in.apply(&q)
	if err := normalizeQuestion(&q); err != nil {
		return nil, err
	}
	now := s.now()
	q.CreatedAt = now
	q.UpdatedAt = now

	fields := q.contentFields()
	fields[fieldCreatedAt] = now
	fields[fieldViewCount] = int64(0)
	id, err := s.store.Insert(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	q.ID = id
	return &q, nil
}

// Replace overwrites the editable content of a question. Answers are
// mandatory; scalar fields that are not supplied keep their stored value.
func (s *Service) Replace(ctx context.Context, id string, in Input) (*Question, error) {
	if in.Answers == nil || len(*in.Answers) == 0 {
		return nil, fmt.Errorf("%w: at least one answer is required", ErrInvalidInput)
	}
	return s.update(ctx, id, in.apply)
}

func (s *Service) Patch(ctx context.Context, id string, in Input) (*Question, error) {
	return s.update(ctx, id, in.apply)
}

// UpsertAnswer replaces the answer for the same language or appends it.
func (s *Service) UpsertAnswer(ctx context.Context, id string, a Answer) (*Question, error) {
	a, err := normalizeAnswer(a)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(q *Question) {
		for i := range q.Answers {
			if normalizeLanguage(q.Answers[i].Language) == a.Language {
				q.Answers[i] = a
				return
			}
		}
		q.Answers = append(q.Answers, a)
	})
}

func (s *Service) RemoveAnswer(ctx context.Context, id, language string) (*Question, error) {
	language = normalizeLanguage(language)
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	kept := make([]Answer, 0, len(q.Answers))
	for _, a := range q.Answers {
		if normalizeLanguage(a.Language) != language {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(q.Answers) {
		return nil, ErrAnswerNotFound
	}
	if len(kept) == 0 {
		return nil, ErrLastAnswer
	}
	q.Answers = kept
	return s.save(ctx, q)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return storeErr("delete question", err)
	}
	return nil
}

// RecordView bumps the per-question view counter and returns the new value.
func (s *Service) RecordView(ctx context.Context, id string) (int64, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return 0, storeErr("record view", err)
	}
	n, err := s.store.Increment(ctx, id, fieldViewCount, 1)
	if err != nil {
		return 0, fmt.Errorf("record view: %w", err)
	}
	return n, nil
}

func (s *Service) update(ctx context.Context, id string, mutate func(*Question)) (*Question, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(q)
	return s.save(ctx, q)
}

// save validates q and writes its content. Legacy image keys are always
// dropped so edited documents end up in canonical shape.
func (s *Service) save(ctx context.Context, q *Question) (*Question, error) {
	if err := normalizeQuestion(q); err != nil {
		return nil, err
	}
	q.UpdatedAt = s.now()
	_, err := s.store.UpdateFields(ctx, q.ID, q.contentFields(), []string{fieldImageURL, fieldImagePublicID})
	if err != nil {
		return nil, storeErr("update question", err)
	}
	return q, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidID) {
		return ErrQuestionNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
