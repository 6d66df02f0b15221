package book

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bookservice/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type HTTPHandler struct {
	service *Service
	logger  *slog.Logger
	port    string
}

// NewHTTPHandler creates the /books handler. addr is the listen address, used
// by the health endpoint to report the port.
func NewHTTPHandler(service *Service, logger *slog.Logger, addr string) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	port := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		port = addr[i+1:]
	}
	return &HTTPHandler{service: service, logger: logger, port: port}
}

// Routes returns the router to mount under /books.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Get("/health", h.Health)
	r.Get("/available", h.ListAvailable)
	r.Get("/categories", h.Categories)
	r.Get("/category", h.ListByCategory)
	r.Get("/category/count", h.CountByCategory)
	r.Get("/search/author", h.SearchByAuthor)
	r.Get("/search/title", h.SearchByTitle)

	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/available", h.IsAvailable)
	r.Patch("/{id}/availability", h.AdjustAvailability)

	return r
}

// List handles GET /books
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// Get handles GET /books/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	b, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// ListAvailable handles GET /books/available
func (h *HTTPHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.FindAvailable(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// Categories handles GET /books/categories
func (h *HTTPHandler) Categories(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, CategoryDisplayNames)
}

// ListByCategory handles GET /books/category?category=X
func (h *HTTPHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.categoryParam(w, r, true)
	if !ok {
		return
	}

	books, err := h.service.FindByCategory(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

type categoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// CountByCategory handles GET /books/category/count?category=X
func (h *HTTPHandler) CountByCategory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.categoryParam(w, r, true)
	if !ok {
		return
	}

	n, err := h.service.CountByCategory(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categoryCount{Category: c, Count: n})
}

// SearchByAuthor handles GET /books/search/author?author=X[&category=Y]
func (h *HTTPHandler) SearchByAuthor(w http.ResponseWriter, r *http.Request) {
	author, ok := h.requiredParam(w, r, "author")
	if !ok {
		return
	}
	c, ok := h.categoryParam(w, r, false)
	if !ok {
		return
	}

	var (
		books []Book
		err   error
	)
	if c == "" {
		books, err = h.service.FindByAuthor(r.Context(), author)
	} else {
		books, err = h.service.FindByAuthorAndCategory(r.Context(), author, c)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// SearchByTitle handles GET /books/search/title?title=X
func (h *HTTPHandler) SearchByTitle(w http.ResponseWriter, r *http.Request) {
	title, ok := h.requiredParam(w, r, "title")
	if !ok {
		return
	}

	books, err := h.service.FindByTitle(r.Context(), title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// IsAvailable handles GET /books/{id}/available
func (h *HTTPHandler) IsAvailable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	available, err := h.service.IsAvailable(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, available)
}

// Create handles POST /books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var d Draft
	if !h.decode(w, r, &d) {
		return
	}

	b, err := h.service.Create(r.Context(), d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

// Update handles PUT /books/{id}
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}
	var d Draft
	if !h.decode(w, r, &d) {
		return
	}

	b, err := h.service.Update(r.Context(), id, d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// AdjustAvailability handles PATCH /books/{id}/availability?copies=N
func (h *HTTPHandler) AdjustAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}
	raw, ok := h.requiredParam(w, r, "copies")
	if !ok {
		return
	}
	delta, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid value for parameter 'copies': %s", raw))
		return
	}

	if _, err := h.service.AdjustAvailability(r.Context(), id, delta); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Delete handles DELETE /books/{id}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// Health handles GET /books/health
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	httpx.Text(w, http.StatusOK, fmt.Sprintf("Book Service is running on port %s", h.port))
}

func (h *HTTPHandler) bookID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid book id: %s", raw))
		return 0, false
	}
	return id, true
}

// requiredParam reports a 400 when the query parameter is absent. An empty
// value is accepted.
func (h *HTTPHandler) requiredParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	q := r.URL.Query()
	if !q.Has(name) {
		httpx.JSONError(w, r, http.StatusBadRequest, fmt.Sprintf("required parameter '%s' is missing", name))
		return "", false
	}
	return q.Get(name), true
}

// categoryParam parses the category query parameter. When it is optional and
// absent the zero Category is returned.
func (h *HTTPHandler) categoryParam(w http.ResponseWriter, r *http.Request, required bool) (Category, bool) {
	q := r.URL.Query()
	if !q.Has("category") {
		if required {
			httpx.JSONError(w, r, http.StatusBadRequest, "required parameter 'category' is missing")
			return "", false
		}
		return "", true
	}

	raw := q.Get("category")
	c, ok := ParseCategory(raw)
	if !ok {
		httpx.JSONError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid category: %s", raw))
		return "", false
	}
	return c, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httpx.JSONError(w, r, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *Error
	if !errors.As(err, &be) {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFrom(r),
			"error", err,
		)
		httpx.JSONError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	if be.Kind == KindValidation {
		httpx.JSONValidationError(w, r, be.Message, be.Fields)
		return
	}
	httpx.JSONError(w, r, statusFor(be.Kind), be.Message)
}

func statusFor(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateISBN, KindInsufficientCopies, KindInvalidAdjustment, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
