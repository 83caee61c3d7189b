package docstore

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFilterMatches(t *testing.T) {
	doc := map[string]any{
		"title":     "Binary Search",
		"level":     int64(2),
		"imageUrl":  nil,
		"imageUrls": []any{"a.jpg"},
		"tags":      []any{"arrays", "search"},
		"languages": []any{"go", "python"},
		"answers": []any{
			map[string]any{"language": "go", "code": "func Search()", "explanation": "halving"},
		},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "all", filter: All(), want: true},
		{name: "exists null value", filter: Exists("imageUrl"), want: true},
		{name: "exists missing", filter: Exists("imagePublicId"), want: false},
		{name: "is array", filter: IsArray("imageUrls"), want: true},
		{name: "not array missing", filter: NotArray("imagePublicIds"), want: true},
		{name: "not array scalar", filter: NotArray("title"), want: true},
		{name: "not array on array", filter: NotArray("imageUrls"), want: false},
		{name: "eq numeric across types", filter: Eq("level", 2), want: true},
		{name: "eq mismatch", filter: Eq("level", 3), want: false},
		{name: "contains", filter: Contains("languages", "go"), want: true},
		{name: "contains missing element", filter: Contains("languages", "rust"), want: false},
		{name: "contains on scalar", filter: Contains("title", "Binary Search"), want: false},
		{name: "match scalar case insensitive", filter: Match("title", "binary"), want: true},
		{name: "match array element", filter: Match("tags", "SEAR"), want: true},
		{name: "match nested path", filter: Match("answers.code", "search("), want: true},
		{name: "match literal not regex", filter: Match("title", "B.nary"), want: false},
		{name: "and", filter: And(Eq("level", 2), Contains("languages", "python")), want: true},
		{name: "and short", filter: And(Eq("level", 2), Contains("languages", "rust")), want: false},
		{name: "or", filter: Or(Exists("nope"), Match("answers.explanation", "HALV")), want: true},
		{name: "empty or", filter: Or(), want: false},
		{name: "empty and", filter: And(), want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(doc); got != tc.want {
				t.Fatalf("Matches()=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestMongoFilterTranslation(t *testing.T) {
	got := mongoFilter(Or(Exists("imageUrl"), NotArray("imageUrls")))
	parts, ok := got["$or"].(bson.A)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected $or with 2 parts, got %#v", got)
	}
	exists := parts[0].(bson.M)["imageUrl"].(bson.M)
	if exists["$exists"] != true {
		t.Fatalf("unexpected exists clause: %#v", exists)
	}
	notArray := parts[1].(bson.M)["imageUrls"].(bson.M)["$not"].(bson.M)
	if notArray["$type"] != "array" {
		t.Fatalf("unexpected not-array clause: %#v", notArray)
	}

	re := mongoFilter(Match("title", "a+b"))["title"].(primitive.Regex)
	if re.Pattern != `a\+b` || re.Options != "i" {
		t.Fatalf("expected quoted case-insensitive regex, got %#v", re)
	}

	if len(mongoFilter(All())) != 0 {
		t.Fatalf("All should translate to an empty query")
	}
}

func TestPostgresFilterCompile(t *testing.T) {
	q := newSQLQuery("questions")
	where := q.compile(Or(Exists("imageUrl"), NotArray("imageUrls"), Match("answers.code", "50%")))

	if !strings.HasPrefix(where, "(") || strings.Count(where, " OR ") != 2 {
		t.Fatalf("unexpected where clause: %s", where)
	}
	if !strings.Contains(where, "doc ? $2::text") {
		t.Fatalf("expected key-exists operator, got %s", where)
	}
	if !strings.Contains(where, "IS DISTINCT FROM 'array'") {
		t.Fatalf("expected not-array clause, got %s", where)
	}
	if len(q.args) != 5 {
		t.Fatalf("expected 5 args, got %d: %v", len(q.args), q.args)
	}
	if q.args[3] != `lax $."answers"[*]."code"[*]` {
		t.Fatalf("unexpected json path: %v", q.args[3])
	}
	if q.args[4] != `%50\%%` {
		t.Fatalf("expected escaped like pattern, got %v", q.args[4])
	}
}

func TestPostgresFilterEmptyGroups(t *testing.T) {
	q := newSQLQuery("questions")
	if got := q.compile(Or()); got != "FALSE" {
		t.Fatalf("empty Or compiled to %s", got)
	}
	if got := q.compile(And()); got != "TRUE" {
		t.Fatalf("empty And compiled to %s", got)
	}
}
