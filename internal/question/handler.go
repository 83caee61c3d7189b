package question

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"progportal/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	List(ctx context.Context, f ListFilter) ([]Question, error)
	Get(ctx context.Context, id string) (*Question, error)
	Languages(ctx context.Context) ([]string, error)
	Create(ctx context.Context, in Input) (*Question, error)
	Replace(ctx context.Context, id string, in Input) (*Question, error)
	Patch(ctx context.Context, id string, in Input) (*Question, error)
	UpsertAnswer(ctx context.Context, id string, a Answer) (*Question, error)
	RemoveAnswer(ctx context.Context, id, language string) (*Question, error)
	Delete(ctx context.Context, id string) error
	RecordView(ctx context.Context, id string) (int64, error)
}

// questionRequest accepts both image shapes. The legacy scalar keys are
// folded into the arrays and never stored.
type questionRequest struct {
	Level          *int            `json:"level"`
	Title          *string         `json:"title"`
	Statement      *string         `json:"statement"`
	ImageURLs      *[]string       `json:"imageUrls"`
	ImagePublicIDs *[]string       `json:"imagePublicIds"`
	ImageURL       json.RawMessage `json:"imageUrl"`
	ImagePublicID  json.RawMessage `json:"imagePublicId"`
	Answers        *[]Answer       `json:"answers"`
	Tags           *[]string       `json:"tags"`
}

func (req questionRequest) input() (Input, error) {
	in := Input{
		Level:          req.Level,
		Title:          req.Title,
		Statement:      req.Statement,
		ImageURLs:      req.ImageURLs,
		ImagePublicIDs: req.ImagePublicIDs,
		Answers:        req.Answers,
		Tags:           req.Tags,
	}
	var err error
	if in.ImageURLs == nil {
		if in.ImageURLs, err = legacyImage(req.ImageURL); err != nil {
			return in, err
		}
	}
	if in.ImagePublicIDs == nil {
		if in.ImagePublicIDs, err = legacyImage(req.ImagePublicID); err != nil {
			return in, err
		}
	}
	return in, nil
}

// legacyImage maps a scalar image key to an array: absent stays nil, null
// or "" clears, a string becomes the single element.
func legacyImage(raw json.RawMessage) (*[]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New("image fields must be strings")
	}
	out := []string{}
	if s != nil && strings.TrimSpace(*s) != "" {
		out = append(out, *s)
	}
	return &out, nil
}

type answerRequest struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		Search:   q.Get("search"),
		Language: q.Get("language"),
	}
	if raw := strings.TrimSpace(q.Get("level")); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "level must be a number")
			return
		}
		f.Level = level
	}
	h.list(w, r, f)
}

func (h *Handler) ListByLevel(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil || !validLevel(level) {
		apiresp.WriteError(w, r, http.StatusBadRequest, "Level must be between 1 and 4")
		return
	}
	h.list(w, r, ListFilter{
		Search:   r.URL.Query().Get("search"),
		Language: r.URL.Query().Get("language"),
		Level:    level,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f ListFilter) {
	items, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, items)
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Languages(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, item)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	item, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	item, err := h.svc.Replace(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, item)
}

func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	item, err := h.svc.Patch(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, map[string]string{"message": "Question deleted successfully"})
}

func (h *Handler) UpsertAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.UpsertAnswer(r.Context(), chi.URLParam(r, "id"), Answer(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) RemoveAnswer(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.RemoveAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "language"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, item)
}

func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RecordView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, map[string]int64{"viewCount": n})
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return Input{}, false
	}
	in, err := req.input()
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return Input{}, false
	}
	return in, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrLastAnswer):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrQuestionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "Question not found")
	case errors.Is(err, ErrAnswerNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "Answer language not found")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("question request failed")
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
