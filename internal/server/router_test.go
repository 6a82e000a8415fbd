package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/collabforge/backend/internal/auth"
	"github.com/collabforge/backend/internal/files"
	"github.com/collabforge/backend/internal/projects"
	"github.com/collabforge/backend/internal/realtime"
	"github.com/collabforge/backend/internal/share"
	"github.com/collabforge/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type apiFixture struct {
	handler http.Handler
	hub     *realtime.Hub
	clock   *testClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	databasePath := filepath.Join(t.TempDir(), "api.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&users.Account{},
		&projects.Project{},
		&projects.Collaborator{},
		&files.Node{},
		&files.Version{},
		&share.Token{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ids := &sequentialIDs{}
	clock := &testClock{current: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}

	usersService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: ids})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	projectsService, err := projects.NewService(projects.ServiceConfig{Database: db, IDProvider: ids})
	if err != nil {
		t.Fatalf("projects service: %v", err)
	}
	filesService, err := files.NewService(files.ServiceConfig{Database: db, IDProvider: ids, Roles: projectsService})
	if err != nil {
		t.Fatalf("files service: %v", err)
	}
	shareService, err := share.NewService(share.ServiceConfig{
		Database:   db,
		Projects:   projectsService,
		IDProvider: ids,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("share service: %v", err)
	}
	hub, err := realtime.NewHub(realtime.HubConfig{Roles: projectsService, Files: filesService})
	if err != nil {
		t.Fatalf("hub: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-test-secret"),
		Issuer:        "collab-auth",
		Audience:      "collab-api",
		TokenTTL:      time.Hour,
	})

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:    tokenManager,
		UsersService:    usersService,
		ProjectsService: projectsService,
		FilesService:    filesService,
		ShareService:    shareService,
		Hub:             hub,
		Database:        db,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	return &apiFixture{handler: handler, hub: hub, clock: clock}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

// registerUser creates an account via the API and returns its bearer token.
func (f *apiFixture) registerUser(t *testing.T, email, name string) string {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": "longenough",
		"name":     name,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, recorder.Code, recorder.Body.String())
	}
	var response struct {
		Token string `json:"token"`
	}
	decodeBody(t, recorder, &response)
	if response.Token == "" {
		t.Fatal("expected a bearer token")
	}
	return response.Token
}

func (f *apiFixture) createProject(t *testing.T, token, name string) string {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": name})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create project: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var project struct {
		ID string `json:"ID"`
	}
	decodeBody(t, recorder, &project)
	if project.ID == "" {
		t.Fatal("expected a project id")
	}
	return project.ID
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t)
	if code := f.do(t, http.MethodGet, "/health", "", nil).Code; code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/ready", "", nil).Code; code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", code)
	}
}

func TestAuthFlow(t *testing.T) {
	f := newAPIFixture(t)

	token := f.registerUser(t, "dev@example.com", "Dev")

	recorder := f.do(t, http.MethodGet, "/auth/me", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", recorder.Code)
	}
	var me struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	decodeBody(t, recorder, &me)
	if me.Email != "dev@example.com" || me.Name != "Dev" {
		t.Fatalf("unexpected identity %+v", me)
	}

	if code := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "dev@example.com", "password": "longenough",
	}).Code; code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "dev@example.com", "password": "wrongpassword",
	}).Code; code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "dev@example.com", "password": "longenough",
	}).Code; code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/auth/me", "", nil).Code; code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/auth/me", "not-a-jwt", nil).Code; code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", code)
	}
}

func TestProjectAccessControl(t *testing.T) {
	f := newAPIFixture(t)

	ownerToken := f.registerUser(t, "owner@example.com", "Owner")
	otherToken := f.registerUser(t, "other@example.com", "Other")

	projectID := f.createProject(t, ownerToken, "Demo")

	if code := f.do(t, http.MethodGet, "/api/projects/"+projectID, ownerToken, nil).Code; code != http.StatusOK {
		t.Fatalf("owner get: expected 200, got %d", code)
	}
	// Membership gates reads: non-members never see project metadata.
	if code := f.do(t, http.MethodGet, "/api/projects/"+projectID, otherToken, nil).Code; code != http.StatusForbidden {
		t.Fatalf("stranger get: expected 403, got %d", code)
	}

	if code := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/invite", otherToken, map[string]string{
		"email": "owner@example.com",
	}).Code; code != http.StatusForbidden {
		t.Fatalf("non-owner invite: expected 403, got %d", code)
	}

	recorder := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/invite", ownerToken, map[string]string{
		"email": "other@example.com",
		"role":  "viewer",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("invite: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	if code := f.do(t, http.MethodGet, "/api/projects/"+projectID, otherToken, nil).Code; code != http.StatusOK {
		t.Fatalf("invited viewer get: expected 200, got %d", code)
	}

	if code := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/invite", ownerToken, map[string]string{
		"email": "nobody@example.com",
	}).Code; code != http.StatusNotFound {
		t.Fatalf("unknown invitee: expected 404, got %d", code)
	}
}

func TestFileLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	ownerToken := f.registerUser(t, "owner@example.com", "Owner")
	viewerToken := f.registerUser(t, "viewer@example.com", "Viewer")
	projectID := f.createProject(t, ownerToken, "Demo")

	if code := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/invite", ownerToken, map[string]string{
		"email": "viewer@example.com", "role": "viewer",
	}).Code; code != http.StatusOK {
		t.Fatalf("invite failed: %d", code)
	}

	recorder := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/files", ownerToken, map[string]string{
		"name": "main.js", "type": "file", "content": "hello",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create file: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var node struct {
		ID string `json:"ID"`
	}
	decodeBody(t, recorder, &node)

	if code := f.do(t, http.MethodPut, "/api/files/"+node.ID, viewerToken, map[string]string{
		"content": "tampered",
	}).Code; code != http.StatusForbidden {
		t.Fatalf("viewer update: expected 403, got %d", code)
	}

	if code := f.do(t, http.MethodPut, "/api/files/"+node.ID, ownerToken, map[string]string{
		"content": "hello world",
	}).Code; code != http.StatusOK {
		t.Fatalf("owner update failed")
	}

	recorder = f.do(t, http.MethodGet, "/api/files/"+node.ID+"/versions", viewerToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("versions: expected 200, got %d", recorder.Code)
	}
	var versions []struct {
		ID      string `json:"ID"`
		Content string `json:"Content"`
	}
	decodeBody(t, recorder, &versions)
	if len(versions) != 1 || versions[0].Content != "hello" {
		t.Fatalf("expected one prior-content version, got %+v", versions)
	}

	recorder = f.do(t, http.MethodPost, "/api/files/"+node.ID+"/revert", ownerToken, map[string]string{
		"versionId": versions[0].ID,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("revert: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var reverted struct {
		File struct {
			Content string `json:"Content"`
		} `json:"file"`
	}
	decodeBody(t, recorder, &reverted)
	if reverted.File.Content != "hello" {
		t.Fatalf("expected restored content, got %q", reverted.File.Content)
	}

	recorder = f.do(t, http.MethodGet, "/api/projects/"+projectID+"/folders/root", viewerToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("root folder: expected 200, got %d", recorder.Code)
	}

	if code := f.do(t, http.MethodDelete, "/api/files/"+node.ID, viewerToken, nil).Code; code != http.StatusForbidden {
		t.Fatalf("viewer delete: expected 403, got %d", code)
	}
	if code := f.do(t, http.MethodDelete, "/api/files/"+node.ID, ownerToken, nil).Code; code != http.StatusOK {
		t.Fatalf("owner delete failed")
	}
	if code := f.do(t, http.MethodGet, "/api/files/"+node.ID, ownerToken, nil).Code; code != http.StatusNotFound {
		t.Fatalf("deleted file: expected 404, got %d", code)
	}
}

func TestShareTokenFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	ownerToken := f.registerUser(t, "owner@example.com", "Owner")
	guestToken := f.registerUser(t, "guest@example.com", "Guest")
	projectID := f.createProject(t, ownerToken, "Demo")

	recorder := f.do(t, http.MethodPost, "/api/share/"+projectID, ownerToken, map[string]any{
		"role": "editor", "ttlHours": 1,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create share: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, recorder, &created)

	if code := f.do(t, http.MethodPost, "/api/share/"+projectID, guestToken, nil).Code; code != http.StatusForbidden {
		t.Fatalf("non-owner share: expected 403, got %d", code)
	}

	// Validation is public; no bearer token attached.
	recorder = f.do(t, http.MethodGet, "/api/share/validate/"+created.Token, "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d", recorder.Code)
	}
	var grant struct {
		ProjectID string `json:"projectId"`
		Role      string `json:"role"`
	}
	decodeBody(t, recorder, &grant)
	if grant.ProjectID != projectID || grant.Role != "editor" {
		t.Fatalf("unexpected grant %+v", grant)
	}

	if code := f.do(t, http.MethodPost, "/api/share/"+projectID+"/join", guestToken, map[string]string{
		"token": created.Token,
	}).Code; code != http.StatusOK {
		t.Fatalf("join: expected 200")
	}
	if code := f.do(t, http.MethodGet, "/api/projects/"+projectID, guestToken, nil).Code; code != http.StatusOK {
		t.Fatalf("joined guest get: expected 200, got %d", code)
	}

	f.clock.Advance(2 * time.Hour)
	if code := f.do(t, http.MethodGet, "/api/share/validate/"+created.Token, "", nil).Code; code != http.StatusGone {
		t.Fatalf("expired validate: expected 410, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/api/share/validate/nonexistent", "", nil).Code; code != http.StatusNotFound {
		t.Fatalf("unknown token: expected 404, got %d", code)
	}
}
