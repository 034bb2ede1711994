package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"strikeline/internal/config"
	"strikeline/internal/db"
	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/migrate"
	"strikeline/internal/repo"
)

const (
	mainAdminID  int64 = 100
	falconChatID int64 = 200
	jwtSecret          = "test-secret"
	apiKey             = "sk-test-key"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Default()
	cfg.MainAdmin.ID = mainAdminID
	cfg.Server.JWTSecret = jwtSecret

	e := engine.New(conn, cfg)
	ctx := context.Background()
	if err := e.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := e.Repo.InsertAPIKey(ctx, domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   mainAdminID,
		Name:      "ops",
		KeyHash:   repo.HashAPIKey(apiKey),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: jwtSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
	}
}

func (s *testServer) seedTask(t *testing.T) domain.Task {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Engine.AddSquad(ctx, mainAdminID, falconChatID, "Сокол"); err != nil {
		t.Fatalf("add squad: %v", err)
	}
	if _, err := s.Engine.BeginAssignment(ctx, mainAdminID, falconChatID); err != nil {
		t.Fatalf("begin assignment: %v", err)
	}
	delivery, err := s.Engine.CreateTask(ctx, mainAdminID, "4", "красный")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return delivery.Task
}

func (s *testServer) get(t *testing.T, path string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func signToken(t *testing.T, subject string, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.get(t, "/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := srv.get(t, "/v0/squads", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	res, _ = srv.get(t, "/v0/squads", map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", res.StatusCode)
	}
}

func TestListSquadsWithAPIKey(t *testing.T) {
	srv := newTestServer(t)
	srv.seedTask(t)

	res, data := srv.get(t, "/v0/squads", map[string]string{"X-Api-Key": apiKey})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list squads status %d: %s", res.StatusCode, string(data))
	}
	var body SquadListResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Name != "Сокол" {
		t.Fatalf("unexpected squads: %+v", body.Items)
	}
}

func TestTasksWithJWT(t *testing.T) {
	srv := newTestServer(t)
	task := srv.seedTask(t)

	headers := map[string]string{"Authorization": "Bearer " + signToken(t, "100", jwtSecret)}
	res, data := srv.get(t, "/v0/tasks", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, string(data))
	}
	var body TaskListResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ID != task.ID {
		t.Fatalf("unexpected tasks: %+v", body.Items)
	}

	res, data = srv.get(t, "/v0/tasks?status=finished", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finished tasks status %d: %s", res.StatusCode, string(data))
	}
	body = TaskListResponse{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Items) != 0 {
		t.Fatalf("expected no finished tasks, got %+v", body.Items)
	}
}

func TestNonAdminActorForbidden(t *testing.T) {
	srv := newTestServer(t)
	srv.seedTask(t)

	// Valid token, but the subject is a squad chat id, not an admin.
	headers := map[string]string{"Authorization": "Bearer " + signToken(t, "200", jwtSecret)}
	res, data := srv.get(t, "/v0/tasks", headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
}

func TestWrongSecretRejected(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"Authorization": "Bearer " + signToken(t, "100", "other-secret")}
	res, _ := srv.get(t, "/v0/squads", headers)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestEventsTail(t *testing.T) {
	srv := newTestServer(t)
	srv.seedTask(t)

	headers := map[string]string{"X-Api-Key": apiKey}
	res, data := srv.get(t, "/v0/events?limit=1", headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page EventListResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one event and a cursor, got %+v", page)
	}
	first := page.Items[0].ID

	res, data = srv.get(t, "/v0/events?cursor="+page.NextCursor, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	var rest EventListResponse
	if err := json.Unmarshal(data, &rest); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, evt := range rest.Items {
		if evt.ID <= first {
			t.Fatalf("cursor did not advance past %d: %+v", first, evt)
		}
	}
}
