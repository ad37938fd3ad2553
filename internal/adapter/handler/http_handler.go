package handler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/rowstore/internal/core/domain"
	"github.com/rl1809/rowstore/internal/core/service"
	"github.com/rl1809/rowstore/internal/logger"
)

const maxBodyBytes = 1 << 20

//go:embed static/index.html
var indexPage []byte

type HTTPHandler struct {
	rowService *service.RowService
	logg       *logger.Logger
}

type errorResponse struct {
	Message string `json:"message"`
}

type deleteRowResponse struct {
	Deleted domain.Row `json:"deleted"`
}

func NewHTTPHandler(rowService *service.RowService, logg *logger.Logger) *HTTPHandler {
	return &HTTPHandler{rowService: rowService, logg: logg}
}

func (h *HTTPHandler) ListRows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rowService.List(r.Context()))
}

func (h *HTTPHandler) GetRow(w http.ResponseWriter, r *http.Request) {
	id, err := rowIDParam(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	row, err := h.rowService.Get(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, row)
}

func (h *HTTPHandler) CreateRow(w http.ResponseWriter, r *http.Request) {
	in, err := decodeRowInput(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	if in == nil {
		in = &domain.RowInput{}
	}

	row, err := h.rowService.Create(r.Context(), *in)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, row)
}

func (h *HTTPHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	id, err := rowIDParam(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	patch, err := decodeRowInput(r)
	if err != nil {
		// An unknown id wins over a bad body.
		if !h.rowService.Exists(r.Context(), id) {
			err = service.ErrNotFound
		}
		h.writeError(r.Context(), w, err)
		return
	}

	row, err := h.rowService.Update(r.Context(), id, patch)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, row)
}

func (h *HTTPHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	id, err := rowIDParam(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	row, err := h.rowService.Delete(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteRowResponse{Deleted: row})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Index serves the browser page that drives the rows API.
func (h *HTTPHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

func (h *HTTPHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Message: "not found"})
}

func (h *HTTPHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
}

func (h *HTTPHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	if errors.Is(err, service.ErrNotFound) {
		status = http.StatusNotFound
		message = err.Error()
	} else if errors.Is(err, service.ErrInvalidInput) {
		status = http.StatusBadRequest
		message = err.Error()
	}

	if status >= http.StatusInternalServerError && h.logg != nil {
		h.logg.Error(ctx, "request.failed", err)
	}

	writeJSON(w, status, errorResponse{Message: message})
}

// rowIDParam reads the {id} segment. The route only admits digits, so a
// parse failure means the value overflows int and cannot name a row.
func rowIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, service.ErrNotFound
	}
	return id, nil
}

// decodeRowInput returns nil for an empty body or a JSON null.
func decodeRowInput(r *http.Request) (*domain.RowInput, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", service.ErrInvalidInput, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body too large", service.ErrInvalidInput)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var in *domain.RowInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON body", service.ErrInvalidInput)
	}
	return in, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
