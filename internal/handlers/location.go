package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"geoping/internal/logging"
	"geoping/internal/metrics"
	"geoping/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	minListLimit     = 1

	maxSubmitBodyBytes = 64 << 10
)

const (
	errMissingFields = "missing required fields"
	errServer        = "server error"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type LocationHandler struct {
	repo LocationRepository
}

type LocationRepository interface {
	Insert(ctx context.Context, loc *models.Location) (int64, error)
	Query(ctx context.Context, deviceID string, limit int) ([]models.Location, error)
}

type submitResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func NewLocationHandler(repo LocationRepository) *LocationHandler {
	return &LocationHandler{repo: repo}
}

func (h *LocationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)).Decode(&req); err != nil {
		h.reject(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.reject(w, r, err)
		return
	}

	loc := req.Location()
	id, err := h.repo.Insert(r.Context(), &loc)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("device_id", req.DeviceID).Msg("insert location failed")
		writeJSON(w, http.StatusInternalServerError, submitResponse{Error: errServer})
		return
	}

	metrics.LocationsIngested.Inc()
	logging.Ctx(r.Context()).Debug().Int64("id", id).Str("device_id", req.DeviceID).Msg("location stored")
	writeJSON(w, http.StatusOK, submitResponse{OK: true})
}

func (h *LocationHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	metrics.SubmitRejected.Inc()
	logging.Ctx(r.Context()).Debug().Err(err).Msg("location rejected")
	writeJSON(w, http.StatusBadRequest, submitResponse{Error: errMissingFields})
}

func (h *LocationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	limit := parseLimit(r.URL.Query().Get("limit"))

	locations, err := h.repo.Query(r.Context(), deviceID, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("device_id", deviceID).Int("limit", limit).Msg("query locations failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if locations == nil {
		locations = []models.Location{}
	}

	writeJSON(w, http.StatusOK, locations)
}

// parseLimit reads an optional sign and the leading digits after any
// leading whitespace, so "50abc" is 50 and "2.5" is 2. Input without digits
// falls back to the default. The result is clamped to
// [minListLimit, maxListLimit].
func parseLimit(raw string) int {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)

	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return defaultListLimit
	}

	limit, err := strconv.Atoi(s[:end])
	if err != nil {
		limit = maxListLimit + 1
	}
	if negative {
		limit = -limit
	}
	return min(max(limit, minListLimit), maxListLimit)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
