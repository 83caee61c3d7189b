package question

import (
	"strings"
	"time"

	"progportal/internal/docstore"
)

const (
	fieldLevel          = "level"
	fieldTitle          = "title"
	fieldStatement      = "statement"
	fieldImageURLs      = "imageUrls"
	fieldImagePublicIDs = "imagePublicIds"
	fieldImageURL       = "imageUrl"
	fieldImagePublicID  = "imagePublicId"
	fieldAnswers        = "answers"
	fieldTags           = "tags"
	fieldLanguages      = "languages"
	fieldCreatedAt      = "createdAt"
	fieldUpdatedAt      = "updatedAt"
	fieldViewCount      = "viewCount"
)

type Answer struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

// Question is the canonical record served to the frontend. The id is
// rendered as _id because that is the key the frontend reads.
type Question struct {
	ID             string    `json:"_id"`
	Level          int       `json:"level"`
	Title          string    `json:"title"`
	Statement      string    `json:"statement"`
	ImageURLs      []string  `json:"imageUrls"`
	ImagePublicIDs []string  `json:"imagePublicIds"`
	Answers        []Answer  `json:"answers"`
	Tags           []string  `json:"tags"`
	Languages      []string  `json:"languages"`
	ViewCount      int64     `json:"viewCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// fromDocument reads a stored record. Documents that were never normalized
// still load: a legacy scalar image field stands in for a missing array.
func fromDocument(doc docstore.Document) Question {
	f := doc.Fields
	q := Question{
		ID:             doc.ID,
		Level:          int(intField(f, fieldLevel)),
		Title:          stringField(f, fieldTitle),
		Statement:      stringField(f, fieldStatement),
		ImageURLs:      imageField(f, fieldImageURLs, fieldImageURL),
		ImagePublicIDs: imageField(f, fieldImagePublicIDs, fieldImagePublicID),
		Answers:        answersField(f),
		Tags:           stringsField(f, fieldTags),
		Languages:      stringsField(f, fieldLanguages),
		ViewCount:      intField(f, fieldViewCount),
		CreatedAt:      timeField(f, fieldCreatedAt),
		UpdatedAt:      timeField(f, fieldUpdatedAt),
	}
	if len(q.Languages) == 0 && len(q.Answers) > 0 {
		q.Languages = deriveLanguages(q.Answers)
	}
	return q
}

// contentFields is everything a write owns. createdAt and viewCount are
// managed separately so edits never reset them.
func (q Question) contentFields() map[string]any {
	answers := make([]any, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, map[string]any{
			"language":    a.Language,
			"code":        a.Code,
			"explanation": a.Explanation,
		})
	}
	return map[string]any{
		fieldLevel:          int64(q.Level),
		fieldTitle:          q.Title,
		fieldStatement:      q.Statement,
		fieldImageURLs:      anySlice(q.ImageURLs),
		fieldImagePublicIDs: anySlice(q.ImagePublicIDs),
		fieldAnswers:        answers,
		fieldTags:           anySlice(q.Tags),
		fieldLanguages:      anySlice(q.Languages),
		fieldUpdatedAt:      q.UpdatedAt,
	}
}

func anySlice(items []string) []any {
	out := make([]any, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	return out
}

func stringField(f map[string]any, key string) string {
	s, _ := f[key].(string)
	return s
}

func intField(f map[string]any, key string) int64 {
	switch n := f[key].(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func timeField(f map[string]any, key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

func stringsField(f map[string]any, key string) []string {
	out := make([]string, 0)
	switch v := f[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	}
	return out
}

func imageField(f map[string]any, canonical, legacy string) []string {
	switch f[canonical].(type) {
	case []any, []string:
		return stringsField(f, canonical)
	}
	if s, ok := f[canonical].(string); ok && strings.TrimSpace(s) != "" {
		return []string{s}
	}
	if s, ok := f[legacy].(string); ok && strings.TrimSpace(s) != "" {
		return []string{s}
	}
	return []string{}
}

func answersField(f map[string]any) []Answer {
	var holder struct {
		Answers []Answer `json:"answers"`
	}
	if err := docstore.Decode(map[string]any{fieldAnswers: f[fieldAnswers]}, &holder); err != nil || holder.Answers == nil {
		return []Answer{}
	}
	return holder.Answers
}
