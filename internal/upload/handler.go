package upload

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"progportal/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	MaxImageBytes = 5 << 20
	formField     = "image"
	sniffLen      = 512
)

type Handler struct {
	store ImageStore
}

// NewHandler accepts a nil store; every route then answers 503.
func NewHandler(store ImageStore) *Handler {
	return &Handler{store: store}
}

type uploadResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ImageURL     string `json:"imageUrl"`
	PublicID     string `json:"publicId"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		apiresp.WriteError(w, r, http.StatusServiceUnavailable, ErrStorageDisabled.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+(1<<20))
	file, header, err := r.FormFile(formField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiresp.WriteError(w, r, http.StatusBadRequest, "File too large. Maximum size is 5MB.")
			return
		}
		apiresp.WriteError(w, r, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	if header.Size > MaxImageBytes {
		apiresp.WriteError(w, r, http.StatusBadRequest, "File too large. Maximum size is 5MB.")
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		apiresp.WriteError(w, r, http.StatusBadRequest, "could not read upload")
		return
	}
	head = head[:n]
	if !isImage(head, header.Header.Get("Content-Type")) {
		apiresp.WriteError(w, r, http.StatusBadRequest, "Only image files are allowed!")
		return
	}

	img, err := h.store.Upload(r.Context(), header.Filename, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("image upload failed")
		apiresp.WriteError(w, r, http.StatusInternalServerError, "Image upload failed")
		return
	}

	log.Info().Str("public_id", img.PublicID).Int64("size", header.Size).Msg("image uploaded")
	apiresp.WriteOK(w, uploadResponse{
		Success:      true,
		Message:      "Image uploaded successfully",
		ImageURL:     img.URL,
		PublicID:     img.PublicID,
		OriginalName: header.Filename,
		Size:         header.Size,
	})
}

// Delete removes an image. A missing image is not an error: callers use
// this for best-effort cleanup.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		apiresp.WriteError(w, r, http.StatusServiceUnavailable, ErrStorageDisabled.Error())
		return
	}
	publicID, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || strings.TrimSpace(publicID) == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "public id is required")
		return
	}

	deleted, err := h.store.Delete(r.Context(), publicID)
	if err != nil {
		log.Error().Err(err).Str("public_id", publicID).Msg("image delete failed")
		apiresp.WriteError(w, r, http.StatusInternalServerError, "Failed to delete image")
		return
	}
	msg := "Image deleted successfully"
	if !deleted {
		msg = "Image not found or already deleted"
	}
	apiresp.WriteOK(w, deleteResponse{Success: true, Deleted: deleted, Message: msg})
}

// isImage trusts the sniffed bytes over the declared type, except for SVG
// which sniffs as text.
func isImage(head []byte, declared string) bool {
	sniffed := http.DetectContentType(head)
	if strings.HasPrefix(sniffed, "image/") {
		return true
	}
	return strings.HasPrefix(declared, "image/svg") && bytes.Contains(head, []byte("<svg"))
}
