package stats

import (
	"context"
	"net/http"

	"progportal/internal/app/apiresp"

	"github.com/rs/zerolog/log"
)

type Handler struct {
	svc statsService
}

type statsService interface {
	TotalViews(ctx context.Context) (int64, error)
	RecordView(ctx context.Context) (int64, error)
}

type viewsResponse struct {
	TotalViews int64 `json:"totalViews"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetViews(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.TotalViews(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("read site views")
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, viewsResponse{TotalViews: n})
}

func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RecordView(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("record site view")
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, viewsResponse{TotalViews: n})
}
