package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"repuradar/internal/adapters/observability"
	"repuradar/internal/app"
	"repuradar/internal/domain"
)

type Handlers struct {
	Q      *app.QueryService
	Ingest *app.IngestionService

	// Secrets maps a provider slug to its webhook signing secret.
	Secrets             map[string]string
	FacebookVerifyToken string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/webhooks/facebook", h.facebookVerify)
	s.mux.Post("/v1/webhooks/{provider}", h.webhook)
	s.mux.Get("/v1/users/{id}/reviews", h.listReviews)
	s.mux.Get("/v1/users/{id}/alerts", h.listAlerts)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// ---- webhook ingestion ----

type webhookEnvelope struct {
	UserID     int64           `json:"userId"`
	LocationID *int64          `json:"locationId"`
	ReviewData json.RawMessage `json:"reviewData"`
}

type reviewJSON struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	LocationID   *int64    `json:"locationId,omitempty"`
	ReviewerName string    `json:"reviewerName"`
	Platform     string    `json:"platform"`
	Rating       int       `json:"rating"`
	ReviewText   string    `json:"reviewText"`
	Date         time.Time `json:"date"`
	ExternalID   string    `json:"externalId"`
	Sentiment    float64   `json:"sentimentScore"`
	IsResolved   bool      `json:"isResolved"`
	Response     *string   `json:"response"`
}

func toReviewJSON(r domain.Review) reviewJSON {
	return reviewJSON{
		ID:           r.ID,
		UserID:       r.UserID,
		LocationID:   r.LocationID,
		ReviewerName: r.ReviewerName,
		Platform:     string(r.Platform),
		Rating:       r.Rating,
		ReviewText:   r.Text,
		Date:         r.Date,
		ExternalID:   r.ExternalID,
		Sentiment:    r.Sentiment,
		IsResolved:   r.IsResolved,
		Response:     r.Response,
	}
}

func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	platform, ok := domain.ParsePlatform(provider)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown webhook provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "unable to read request body")
		return
	}

	// signature gates entry to the pipeline
	sig := r.Header.Get("x-signature")
	secret := h.Secrets[provider]
	if sig == "" || secret == "" || !VerifySignature(body, sig, secret) {
		observability.ObserveWebhookRejection(provider, "signature")
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid signature")
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.UserID == 0 || len(env.ReviewData) == 0 {
		observability.ObserveWebhookRejection(provider, "payload")
		writeProblem(w, http.StatusBadRequest, "Invalid Payload", "userId and reviewData are required")
		return
	}

	review, err := app.Normalize(platform, env.ReviewData, env.UserID, env.LocationID)
	if err != nil {
		observability.ObserveWebhookRejection(provider, "payload")
		writeProblem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	res, err := h.Ingest.IngestWebhook(r.Context(), review)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.ObserveWebhookRejection(provider, "unknown_target")
			writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		log.Error().Err(err).Str("provider", provider).Msg("webhook ingestion failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "ingestion failed")
		return
	}

	switch res.Status {
	case app.WebhookCreated:
		writeJSON(w, http.StatusCreated, map[string]any{
			"status": "created",
			"review": toReviewJSON(res.Review),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "skipped",
			"message": res.Message,
		})
	}
}

// facebookVerify answers the Graph API subscription handshake.
func (h *Handlers) facebookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.FacebookVerifyToken && h.FacebookVerifyToken != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	writeProblem(w, http.StatusForbidden, "Forbidden", "verify token mismatch")
}

// ---- read endpoints ----

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	pg := domain.PageQuery{Limit: limit, Sort: "-date"}
	if ps := r.URL.Query().Get("platform"); ps != "" {
		p, ok := domain.ParsePlatform(ps)
		if !ok {
			writeProblem(w, http.StatusBadRequest, "Invalid platform", "unknown platform slug")
			return
		}
		pg.Platform = &p
	}

	out, err := h.Q.ListReviews(r.Context(), userID, pg)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "reviews not found")
		return
	}

	items := make([]reviewJSON, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, toReviewJSON(it))
	}

	etag, body := calcETagAndBody(map[string]any{"items": items})
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}

func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	limit := 20
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	alerts, err := h.Q.ListAlerts(r.Context(), userID, limit)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "alerts not found")
		return
	}

	type alertJSON struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"userId"`
		AlertType string    `json:"alertType"`
		Content   string    `json:"content"`
		Date      time.Time `json:"date"`
		IsRead    bool      `json:"isRead"`
	}
	items := make([]alertJSON, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, alertJSON{ID: a.ID, UserID: a.UserID, AlertType: a.AlertType, Content: a.Content, Date: a.Date, IsRead: a.IsRead})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
