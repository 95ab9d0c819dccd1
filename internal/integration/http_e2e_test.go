//go:build integration || !unit

package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	server "repuradar/internal/adapters/http_server"
	"repuradar/internal/app"
	"repuradar/internal/domain"
	mysqlrepo "repuradar/internal/storage/mysql"
)

// ---------- helpers ----------

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type passCache struct{}

func (passCache) Get(ctx context.Context, key string, dst any) (bool, error)   { return false, nil }
func (passCache) Set(ctx context.Context, key string, v any, ttlSec int) error { return nil }
func (passCache) Del(ctx context.Context, key string) error                    { return nil }

// ---------- the test ----------

func TestHTTP_EndToEnd_WebhookIngestion(t *testing.T) {
	// Start isolated MySQL container
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=repuradar",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "repuradar")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := mysqlrepo.New(db)
	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// Seed a tenant with one location so ingestion is not gated
	user, err := repo.CreateUser(ctx, domain.User{Email: "e2e@example.com", Name: "E2E"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := repo.CreateLocation(ctx, domain.Location{UserID: user.ID, Name: "Main St"}); err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}

	// Full server wiring, real repo behind it
	secret := "e2e-secret"
	srv := server.New()
	srv.MountHandlers(&server.Handlers{
		Q:       app.NewQueryService(repo, passCache{}, time.Minute),
		Ingest:  app.NewIngestionService(repo, nil),
		Secrets: map[string]string{"google": secret},
	})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"userId": user.ID,
		"reviewData": map[string]any{
			"author_name": "Jane",
			"rating":      1,
			"text":        "bad",
			"time":        1700000000,
		},
	})

	post := func() (*http.Response, map[string]any) {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/webhooks/google", bytes.NewReader(body))
		req.Header.Set("x-signature", sign(body, secret))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	// First delivery creates the review and the alert
	resp, out := post()
	if resp.StatusCode != http.StatusCreated || out["status"] != "created" {
		t.Fatalf("first delivery: status %d body %v", resp.StatusCode, out)
	}

	// Redelivery is skipped
	resp, out = post()
	if resp.StatusCode != http.StatusOK || out["status"] != "skipped" {
		t.Fatalf("redelivery: status %d body %v", resp.StatusCode, out)
	}

	reviews, err := repo.ListReviewsByPlatform(ctx, user.ID, domain.PlatformGoogle)
	if err != nil {
		t.Fatalf("ListReviewsByPlatform: %v", err)
	}
	if len(reviews) != 1 || reviews[0].ExternalID != "google-Jane-1700000000" {
		t.Fatalf("unexpected stored reviews: %+v", reviews)
	}

	alerts, err := repo.ListAlerts(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertType != domain.AlertTypeNegativeReview {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}
