package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpserver "repuradar/internal/adapters/http_server"
	"repuradar/internal/app"
	"repuradar/internal/domain"
)

// ---- fakes ----

type memStore struct {
	users     map[int64]domain.User
	locations map[int64]int
	reviews   []domain.Review
	alerts    []domain.Alert
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int64]domain.User{5: {ID: 5}},
		locations: map[int64]int{5: 1},
	}
}

func (m *memStore) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	for _, e := range m.reviews {
		if e.UserID == r.UserID && e.Platform == r.Platform && e.ExternalID == r.ExternalID {
			return domain.Review{}, domain.ErrDuplicate
		}
	}
	m.nextID++
	r.ID = m.nextID
	m.reviews = append(m.reviews, r)
	return r, nil
}

func (m *memStore) CreateAlert(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	m.nextID++
	a.ID = m.nextID
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *memStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetLocation(ctx context.Context, userID, locationID int64) (domain.Location, error) {
	if m.locations[userID] == 0 {
		return domain.Location{}, domain.ErrNotFound
	}
	return domain.Location{ID: locationID, UserID: userID}, nil
}

func (m *memStore) CountLocations(ctx context.Context, userID int64) (int, error) {
	return m.locations[userID], nil
}

func (m *memStore) ListReviewsByPlatform(ctx context.Context, userID int64, p domain.Platform) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range m.reviews {
		if r.UserID == userID && r.Platform == p {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListReviews(ctx context.Context, userID int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	var out []domain.Review
	for _, r := range m.reviews {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return domain.ReviewsPage{Items: out}, nil
}

func (m *memStore) ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type nopCache struct{}

func (nopCache) Get(ctx context.Context, key string, dst any) (bool, error) { return false, nil }
func (nopCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	return nil
}
func (nopCache) Del(ctx context.Context, key string) error { return nil }

// ---- harness ----

const testSecret = "s"

func newTestServer(store *memStore) *httptest.Server {
	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{
		Q:      app.NewQueryService(store, nopCache{}, time.Minute),
		Ingest: app.NewIngestionService(store, nil),
		Secrets: map[string]string{
			"google":   testSecret,
			"yelp":     testSecret,
			"facebook": testSecret,
		},
		FacebookVerifyToken: "verify-me",
	})
	return httptest.NewServer(srv.Mux())
}

func postWebhook(t *testing.T, ts *httptest.Server, provider string, body []byte, signature string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/webhooks/"+provider, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-signature", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func googleEnvelope(userID int64) []byte {
	b, _ := json.Marshal(map[string]any{
		"userId":     userID,
		"locationId": 2,
		"reviewData": map[string]any{
			"author_name": "Jane",
			"rating":      1,
			"text":        "bad",
			"time":        1700000000,
		},
	})
	return b
}

// ---- tests ----

func TestWebhook_RejectsBadSignature(t *testing.T) {
	store := newMemStore()
	ts := newTestServer(store)
	defer ts.Close()

	body := []byte(`{"a":1}`)

	resp, _ := postWebhook(t, ts, "google", body, sign(body, "wrong-secret"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}

	resp, _ = postWebhook(t, ts, "google", body, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing signature: status %d, want 401", resp.StatusCode)
	}
	if len(store.reviews) != 0 {
		t.Fatalf("rejected delivery must not reach the pipeline")
	}
}

func TestWebhook_UnknownProvider404(t *testing.T) {
	ts := newTestServer(newMemStore())
	defer ts.Close()

	body := []byte(`{}`)
	resp, _ := postWebhook(t, ts, "myspace", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestWebhook_MissingFields400(t *testing.T) {
	ts := newTestServer(newMemStore())
	defer ts.Close()

	body := []byte(`{"locationId":2}`)
	resp, _ := postWebhook(t, ts, "google", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}

	// malformed platform payload (google review without rating)
	body = []byte(`{"userId":5,"reviewData":{"author_name":"Jane","time":1700000000}}`)
	resp, _ = postWebhook(t, ts, "google", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed payload: status %d, want 400", resp.StatusCode)
	}
}

func TestWebhook_UnknownUser404(t *testing.T) {
	ts := newTestServer(newMemStore())
	defer ts.Close()

	body := googleEnvelope(999)
	resp, _ := postWebhook(t, ts, "google", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestWebhook_GatedUserSkipped(t *testing.T) {
	store := newMemStore()
	store.locations[5] = 0
	ts := newTestServer(store)
	defer ts.Close()

	// no locationId: the delivery targets the user as a whole
	body, _ := json.Marshal(map[string]any{
		"userId": 5,
		"reviewData": map[string]any{
			"author_name": "Jane",
			"rating":      1,
			"text":        "bad",
			"time":        1700000000,
		},
	})
	resp, out := postWebhook(t, ts, "google", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	if out["status"] != "skipped" {
		t.Fatalf("unexpected body: %v", out)
	}
	if len(store.reviews) != 0 || len(store.alerts) != 0 {
		t.Fatalf("gated user must get no review and no alert")
	}
}

func TestWebhook_CreatedThenDuplicate(t *testing.T) {
	store := newMemStore()
	ts := newTestServer(store)
	defer ts.Close()

	body := googleEnvelope(5)

	resp, out := postWebhook(t, ts, "google", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}
	if out["status"] != "created" {
		t.Fatalf("unexpected body: %v", out)
	}
	review, _ := out["review"].(map[string]any)
	if review["externalId"] != "google-Jane-1700000000" {
		t.Fatalf("unexpected review: %v", review)
	}
	if review["sentimentScore"] != 0.0 {
		t.Fatalf("sentiment: %v", review["sentimentScore"])
	}
	if len(store.alerts) != 1 {
		t.Fatalf("rating-1 webhook must raise one alert")
	}

	// same payload again -> skipped, nothing new stored
	resp, out = postWebhook(t, ts, "google", body, sign(body, testSecret))
	if resp.StatusCode != http.StatusOK || out["status"] != "skipped" {
		t.Fatalf("duplicate: status %d body %v", resp.StatusCode, out)
	}
	if len(store.reviews) != 1 || len(store.alerts) != 1 {
		t.Fatalf("duplicate must not create anything: reviews=%d alerts=%d", len(store.reviews), len(store.alerts))
	}
}

func TestFacebookVerifyHandshake(t *testing.T) {
	ts := newTestServer(newMemStore())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/webhooks/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", res.StatusCode)
	}
	b, _ := io.ReadAll(res.Body)
	if string(b) != "12345" {
		t.Fatalf("expected challenge echo, got %q", b)
	}

	res2, err := http.Get(ts.URL + "/v1/webhooks/facebook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", res2.StatusCode)
	}
}

func TestListReviews_ReadEndpoint(t *testing.T) {
	store := newMemStore()
	ts := newTestServer(store)
	defer ts.Close()

	body := googleEnvelope(5)
	if resp, _ := postWebhook(t, ts, "google", body, sign(body, testSecret)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed failed: %d", resp.StatusCode)
	}

	res, err := http.Get(ts.URL + "/v1/users/5/reviews?limit=10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if res.Header.Get("ETag") == "" {
		t.Fatalf("expected ETag header")
	}
	raw, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(raw), "google-Jane-1700000000") {
		t.Fatalf("unexpected body: %s", raw)
	}

	// conditional request short-circuits
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/users/5/reviews?limit=10", nil)
	req.Header.Set("If-None-Match", res.Header.Get("ETag"))
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional get: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("status %d, want 304", res2.StatusCode)
	}
}

func TestListAlerts_ReadEndpoint(t *testing.T) {
	store := newMemStore()
	ts := newTestServer(store)
	defer ts.Close()

	body := googleEnvelope(5)
	if resp, _ := postWebhook(t, ts, "google", body, sign(body, testSecret)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed failed")
	}

	res, err := http.Get(ts.URL + "/v1/users/5/alerts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	var out struct {
		Items []struct {
			AlertType string `json:"alertType"`
			Content   string `json:"content"`
			IsRead    bool   `json:"isRead"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].AlertType != "negative_review" || out.Items[0].IsRead {
		t.Fatalf("unexpected alerts: %+v", out.Items)
	}
	if !strings.Contains(out.Items[0].Content, "Jane") {
		t.Fatalf("alert should name the reviewer: %q", out.Items[0].Content)
	}
}
