package question

import (
	"fmt"
	"strings"
)

const (
	minLevel = 1
	maxLevel = 4
)

func validLevel(level int) bool {
	return level >= minLevel && level <= maxLevel
}

// normalizeQuestion trims and lowercases in place, derives languages and
// returns the first validation failure wrapped in ErrInvalidInput.
func normalizeQuestion(q *Question) error {
	q.Title = strings.TrimSpace(q.Title)
	q.Tags = normalizeTags(q.Tags)
	q.ImageURLs = compactStrings(q.ImageURLs)
	q.ImagePublicIDs = compactStrings(q.ImagePublicIDs)

	if !validLevel(q.Level) {
		return fmt.Errorf("%w: level must be between %d and %d", ErrInvalidInput, minLevel, maxLevel)
	}
	if q.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	answers, err := normalizeAnswers(q.Answers)
	if err != nil {
		return err
	}
	q.Answers = answers
	q.Languages = deriveLanguages(answers)
	return nil
}

func normalizeAnswers(in []Answer) ([]Answer, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one answer is required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Answer, 0, len(in))
	for i, a := range in {
		a, err := normalizeAnswer(a)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %w", i+1, err)
		}
		if _, dup := seen[a.Language]; dup {
			return nil, fmt.Errorf("%w: duplicate answer language %q", ErrInvalidInput, a.Language)
		}
		seen[a.Language] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

func normalizeAnswer(a Answer) (Answer, error) {
	a.Language = normalizeLanguage(a.Language)
	if a.Language == "" || strings.TrimSpace(a.Code) == "" || strings.TrimSpace(a.Explanation) == "" {
		return a, fmt.Errorf("%w: language, code, and explanation are required", ErrInvalidInput)
	}
	return a, nil
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

func deriveLanguages(answers []Answer) []string {
	out := make([]string, 0, len(answers))
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if _, ok := seen[a.Language]; ok || a.Language == "" {
			continue
		}
		seen[a.Language] = struct{}{}
		out = append(out, a.Language)
	}
	return out
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func compactStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
