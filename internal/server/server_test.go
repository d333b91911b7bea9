package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/store"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupTestServer starts a server on a free port over a fresh store.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	srv := New(db, &Config{Addr: "127.0.0.1:0", Logger: quietLogger()})
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv
}

func newClient(t *testing.T, srv *Server) *remote.HTTPClient {
	t.Helper()

	c, err := remote.NewHTTPClient(srv.URL(), remote.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	return c
}

// signedInClient returns an HTTPClient signed up as email.
func signedInClient(t *testing.T, srv *Server, email string) *remote.HTTPClient {
	t.Helper()

	c := newClient(t, srv)
	if _, err := c.SignUp(context.Background(), email, "secret1"); err != nil {
		t.Fatalf("SignUp(%s) failed: %v", email, err)
	}
	return c
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_Health(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL() + "/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", health["status"])
	}
}

func TestServer_AuthErrors(t *testing.T) {
	srv := setupTestServer(t)
	base := srv.URL()

	resp, _ := postJSON(t, base+"/auth/v1/signup", schema.Credentials{Email: "ada@example.com", Password: "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup status = %d, want 200", resp.StatusCode)
	}

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"duplicate email", "/auth/v1/signup", schema.Credentials{Email: "ada@example.com", Password: "secret1"}, http.StatusConflict, remote.CodeEmailTaken},
		{"weak password", "/auth/v1/signup", schema.Credentials{Email: "bob@example.com", Password: "123"}, http.StatusBadRequest, remote.CodeWeakPassword},
		{"invalid email", "/auth/v1/signup", schema.Credentials{Email: "bob", Password: "secret1"}, http.StatusBadRequest, remote.CodeInvalidEmail},
		{"wrong password", "/auth/v1/token?grant_type=password", schema.Credentials{Email: "ada@example.com", Password: "nope-nope"}, http.StatusBadRequest, remote.CodeInvalidCredentials},
		{"unsupported grant", "/auth/v1/token?grant_type=refresh_token", schema.Credentials{}, http.StatusBadRequest, codeUnsupportedGrant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, base+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body["error"] != tt.code {
				t.Errorf("error = %v, want %s", body["error"], tt.code)
			}
		})
	}
}

func TestServer_RequiresBearerToken(t *testing.T) {
	srv := setupTestServer(t)

	for _, auth := range []string{"", "Bearer ", "Bearer not-a-token", "Basic abc"} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL()+"/rest/v1/tasks", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Authorization %q: status = %d, want 401", auth, resp.StatusCode)
		}
	}
}

func TestHTTPClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	c := signedInClient(t, srv, "ada@example.com")

	sess, err := c.GetSession(ctx)
	if err != nil || sess == nil {
		t.Fatalf("GetSession = %v, %v", sess, err)
	}

	rec, err := c.Insert(ctx, schema.CollectionProjects, schema.Project{Name: "Website"})
	if err != nil {
		t.Fatalf("Insert project failed: %v", err)
	}
	project := rec.(schema.Project)
	if project.ID == "" || project.CreatedAt.IsZero() {
		t.Fatalf("Insert returned unassigned project: %+v", project)
	}

	rec, err = c.Insert(ctx, schema.CollectionTasks, schema.Task{
		Name:        "Draft copy",
		Description: "landing page",
		ProjectID:   project.ID,
	})
	if err != nil {
		t.Fatalf("Insert task failed: %v", err)
	}
	task := rec.(schema.Task)

	if err := c.Update(ctx, schema.CollectionTasks, task.ID, schema.Fields{"name": "Final copy", "completed": true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	records, err := c.Select(ctx, schema.CollectionTasks)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	tasks := schema.TasksOf(records)
	if len(tasks) != 1 {
		t.Fatalf("Select returned %d tasks, want 1", len(tasks))
	}
	if tasks[0].Name != "Final copy" || tasks[0].Description != "landing page" || tasks[0].Completed {
		t.Errorf("Update must change only the name, got %+v", tasks[0])
	}

	projects, err := c.Select(ctx, schema.CollectionProjects)
	if err != nil {
		t.Fatalf("Select projects failed: %v", err)
	}
	if len(projects) != 1 || projects[0].RecordID() != project.ID {
		t.Errorf("Select projects = %+v", projects)
	}

	if err := c.Delete(ctx, schema.CollectionTasks, task.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	records, err = c.Select(ctx, schema.CollectionTasks)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Select after Delete returned %d records", len(records))
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, err := c.Select(ctx, schema.CollectionTasks); !errors.Is(err, remote.ErrUnauthorized) {
		t.Errorf("Select after SignOut: got %v, want ErrUnauthorized", err)
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	c := signedInClient(t, srv, "ada@example.com")

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "unknown project",
			call: func() error {
				_, err := c.Insert(ctx, schema.CollectionTasks, schema.Task{Name: "x", ProjectID: "missing"})
				return err
			},
			want: remote.ErrConflict,
		},
		{
			name: "blank task name",
			call: func() error {
				_, err := c.Insert(ctx, schema.CollectionTasks, schema.Task{Name: " ", ProjectID: "p"})
				return err
			},
			want: remote.ErrRejected,
		},
		{
			name: "update missing task",
			call: func() error {
				return c.Update(ctx, schema.CollectionTasks, "missing", schema.Fields{"name": "x"})
			},
			want: remote.ErrNotFound,
		},
		{
			name: "delete project",
			call: func() error {
				return c.Delete(ctx, schema.CollectionProjects, "any")
			},
			want: remote.ErrRejected,
		},
		{
			name: "duplicate sign-up",
			call: func() error {
				_, err := newClient(t, srv).SignUp(ctx, "ada@example.com", "secret1")
				return err
			},
			want: remote.ErrEmailTaken,
		},
		{
			name: "wrong password",
			call: func() error {
				_, err := newClient(t, srv).SignInWithPassword(ctx, "ada@example.com", "wrong-one")
				return err
			},
			want: remote.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHTTPClient_AuthErrorCarriesOp(t *testing.T) {
	srv := setupTestServer(t)

	_, err := newClient(t, srv).SignInWithPassword(context.Background(), "nobody@example.com", "secret1")
	var aerr *remote.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("error %T is not *AuthError: %v", err, err)
	}
	if aerr.Op != "signin" || aerr.Message != "Invalid login credentials" {
		t.Errorf("AuthError = %+v", aerr)
	}
}

func TestServer_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	alice := signedInClient(t, srv, "alice@example.com")
	bob := signedInClient(t, srv, "bob@example.com")

	rec, err := alice.Insert(ctx, schema.CollectionProjects, schema.Project{Name: "Private"})
	if err != nil {
		t.Fatalf("Insert project failed: %v", err)
	}
	rec, err = alice.Insert(ctx, schema.CollectionTasks, schema.Task{Name: "Secret", ProjectID: rec.RecordID()})
	if err != nil {
		t.Fatalf("Insert task failed: %v", err)
	}
	taskID := rec.RecordID()

	records, err := bob.Select(ctx, schema.CollectionTasks)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Bob sees %d of Alice's tasks", len(records))
	}

	if err := bob.Update(ctx, schema.CollectionTasks, taskID, schema.Fields{"name": "Mine"}); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("Bob updating Alice's task: got %v, want ErrNotFound", err)
	}
	if err := bob.Delete(ctx, schema.CollectionTasks, taskID); err != nil {
		t.Errorf("Bob deleting Alice's task: got %v, want nil", err)
	}

	records, err = alice.Select(ctx, schema.CollectionTasks)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(records) != 1 || records[0].(schema.Task).Name != "Secret" {
		t.Errorf("Alice's task was changed by Bob: %+v", records)
	}
}

func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d realtime clients, got %d", n, srv.Hub().ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtime_BroadcastsToOwner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := setupTestServer(t)
	alice := signedInClient(t, srv, "alice@example.com")
	bob := signedInClient(t, srv, "bob@example.com")

	aliceFeed, err := alice.Changes(ctx)
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	bobFeed, err := bob.Changes(ctx)
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	waitForClients(t, srv, 2)

	rec, err := alice.Insert(ctx, schema.CollectionProjects, schema.Project{Name: "Website"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	select {
	case change := <-aliceFeed:
		if change.Collection != schema.CollectionProjects || change.Action != remote.ActionInsert || change.ID != rec.RecordID() {
			t.Errorf("Unexpected change: %+v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for change")
	}

	select {
	case change := <-bobFeed:
		t.Errorf("Bob received Alice's change: %+v", change)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRealtime_RejectsInvalidToken(t *testing.T) {
	srv := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := strings.Replace(srv.URL(), "http://", "ws://", 1) + "/realtime/v1?access_token=bogus"
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("Expected dial to fail for invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %+v", resp)
	}
	if n := srv.Hub().ClientCount(); n != 0 {
		t.Errorf("Expected 0 clients, got %d", n)
	}
}

func TestRealtime_StopClosesFeeds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := setupTestServer(t)
	alice := signedInClient(t, srv, "alice@example.com")

	feed, err := alice.Changes(ctx)
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	waitForClients(t, srv, 1)

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case _, ok := <-feed:
		if ok {
			t.Error("Expected feed to close without changes")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Feed did not close after server stop")
	}
}
