// Package handler exposes the catalog over HTTP.
package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/catalog"
)

// maxBody caps request bodies.
const maxBody = 4 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves catalog reads and authenticated writes.
type Handler struct {
	catalog      *catalog.Service
	keys         Authenticator
	imageBaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig, svc *catalog.Service, keys Authenticator) *Handler {
	return &Handler{
		catalog:      svc,
		keys:         keys,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/products/{id}/price", h.resolvePrice)
	mux.Handle("POST /api/products/{id}/prices", h.requireWrite(h.createTier))
	mux.HandleFunc("GET /api/prices/{id}", h.getTier)
	mux.HandleFunc("GET /api/promos/{id}", h.getPromo)
	mux.Handle("POST /api/products", h.requireWrite(h.createProduct))
	mux.Handle("POST /api/products/bulk", h.requireWrite(h.bulkCreate))
	mux.HandleFunc("GET /api/merchants/{merchantId}/products", h.merchantProducts)
	mux.HandleFunc("GET /api/merchant-products", h.merchantVisibility)
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// fail maps service errors to responses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *catalog.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// Client went away.
		w.WriteHeader(499)
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request, decode func(d *jx.Decoder) (T, error)) (T, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var zero T
		return zero, &catalog.ValidationError{Field: "body", Reason: err.Error()}
	}
	v, err := decode(jx.DecodeBytes(body))
	if err != nil {
		var zero T
		return zero, &catalog.ValidationError{Field: "body", Reason: err.Error()}
	}
	return v, nil
}
