package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neofi/eventapi/internal/auth"
	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository/repotest"
	"github.com/neofi/eventapi/internal/service"
)

type apiFixture struct {
	handler *Handler
	store   *repotest.MemStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := repotest.NewMemStore()
	perms := repotest.NewMemPermissions()
	authz := service.NewPermissionAuthorizer(store, perms)
	logger := zap.NewNop()
	mutator := service.NewMutator(store, authz, logger)
	changelog := service.NewChangelog(store, authz)
	rollback := service.NewRollbackCoordinator(store, authz, logger)
	return &apiFixture{
		handler: NewHandler(store, perms, mutator, changelog, rollback, logger),
		store:   store,
	}
}

func (f *apiFixture) do(t *testing.T, actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req = req.WithContext(auth.ContextWithActor(context.Background(), actor))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func createBody() map[string]any {
	return map[string]any{
		"title":       "Standup",
		"description": "Daily sync",
		"start_time":  "2025-03-03T09:00:00Z",
		"end_time":    "2025-03-03T09:15:00Z",
	}
}

func (f *apiFixture) createEvent(t *testing.T, actor string) uuid.UUID {
	t.Helper()
	rec := f.do(t, actor, http.MethodPost, "/api/events", createBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var event domain.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &event); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return event.ID
}

func TestCreateAndFetchLatest(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")

	rec := f.do(t, "alice", http.MethodGet, "/api/events/"+id.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rec.Code, rec.Body.String())
	}
	var version domain.EventVersion
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if version.VersionNumber != 1 || version.Snapshot.Title != "Standup" {
		t.Errorf("unexpected latest version: %+v", version)
	}
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "", http.MethodGet, "/api/events", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUpdateWithNullClearsLocation(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")

	rec := f.do(t, "alice", http.MethodPut, "/api/events/"+id.String(), map[string]any{"location": "Room 4"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, "alice", http.MethodPut, "/api/events/"+id.String(), map[string]any{"location": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("clearing update returned %d: %s", rec.Code, rec.Body.String())
	}
	var version domain.EventVersion
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if version.VersionNumber != 3 || version.Snapshot.Location != nil {
		t.Errorf("null must clear location: %+v", version.Snapshot)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")

	if rec := f.do(t, "alice", http.MethodGet, "/api/events/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing event: expected 404, got %d", rec.Code)
	}
	if rec := f.do(t, "mallory", http.MethodPut, "/api/events/"+id.String(), map[string]any{"title": "x"}); rec.Code != http.StatusForbidden {
		t.Errorf("stranger update: expected 403, got %d", rec.Code)
	}
	if rec := f.do(t, "alice", http.MethodPut, "/api/events/"+id.String(), map[string]any{}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty patch: expected 422, got %d", rec.Code)
	}
	if rec := f.do(t, "alice", http.MethodGet, "/api/events/not-a-uuid", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad id: expected 422, got %d", rec.Code)
	}

	if rec := f.do(t, "alice", http.MethodDelete, "/api/events/"+id.String(), nil); rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}
	if rec := f.do(t, "alice", http.MethodDelete, "/api/events/"+id.String(), nil); rec.Code != http.StatusConflict {
		t.Errorf("double delete: expected 409, got %d", rec.Code)
	}
}

func TestBatchCreateMixedResults(t *testing.T) {
	f := newAPIFixture(t)

	bad := createBody()
	bad["title"] = ""
	rec := f.do(t, "alice", http.MethodPost, "/api/events/batch", map[string]any{
		"events": []map[string]any{createBody(), bad},
	})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("batch returned %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Results []struct {
			Event *domain.Event  `json:"event"`
			Error *errorResponse `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode batch response: %v", err)
	}
	if len(payload.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(payload.Results))
	}
	if payload.Results[0].Event == nil || payload.Results[0].Error != nil {
		t.Errorf("first item should succeed: %+v", payload.Results[0])
	}
	if payload.Results[1].Event != nil || payload.Results[1].Error == nil || payload.Results[1].Error.Kind != "validation_error" {
		t.Errorf("second item should fail validation: %+v", payload.Results[1])
	}
}

func TestShareGrantsAndRevokes(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")
	base := "/api/events/" + id.String()

	if rec := f.do(t, "mallory", http.MethodPost, base+"/share", map[string]any{"user_id": "bob", "role": "editor"}); rec.Code != http.StatusForbidden {
		t.Errorf("non-owner share: expected 403, got %d", rec.Code)
	}
	if rec := f.do(t, "alice", http.MethodPost, base+"/share", map[string]any{"user_id": "bob", "role": "owner"}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("granting owner role: expected 422, got %d", rec.Code)
	}
	if rec := f.do(t, "alice", http.MethodPost, base+"/share", map[string]any{"user_id": "bob", "role": "viewer"}); rec.Code != http.StatusOK {
		t.Fatalf("share returned %d: %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, "bob", http.MethodGet, base, nil); rec.Code != http.StatusOK {
		t.Errorf("viewer read: expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, "bob", http.MethodPut, base, map[string]any{"title": "x"}); rec.Code != http.StatusForbidden {
		t.Errorf("viewer write: expected 403, got %d", rec.Code)
	}

	rec := f.do(t, "alice", http.MethodGet, base+"/permissions", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"bob"`) {
		t.Errorf("permissions listing wrong: %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, "alice", http.MethodDelete, base+"/permissions/bob", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke returned %d", rec.Code)
	}
	if rec := f.do(t, "bob", http.MethodGet, base, nil); rec.Code != http.StatusForbidden {
		t.Errorf("revoked read: expected 403, got %d", rec.Code)
	}
}

func TestChangelogAndDiffEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")
	base := "/api/events/" + id.String()

	if rec := f.do(t, "alice", http.MethodPut, base, map[string]any{"title": "Team Standup"}); rec.Code != http.StatusOK {
		t.Fatalf("update returned %d", rec.Code)
	}

	rec := f.do(t, "alice", http.MethodGet, base+"/changelog?page_size=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("changelog returned %d: %s", rec.Code, rec.Body.String())
	}
	var page service.ChangelogPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode changelog: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page.Entries))
	}

	rec = f.do(t, "alice", http.MethodGet, base+"/diff/1/2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("diff returned %d: %s", rec.Code, rec.Body.String())
	}
	var diff struct {
		FromVersion int64              `json:"from_version"`
		ToVersion   int64              `json:"to_version"`
		Changes     []domain.FieldDiff `json:"changes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &diff); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if diff.FromVersion != 1 || diff.ToVersion != 2 || len(diff.Changes) != 1 || diff.Changes[0].Field != "title" {
		t.Errorf("unexpected diff payload: %+v", diff)
	}

	rec = f.do(t, "alice", http.MethodGet, base+"/history/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d", rec.Code)
	}
	if rec := f.do(t, "alice", http.MethodGet, base+"/history/0", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("history version 0: expected 422, got %d", rec.Code)
	}
}

func TestRollbackEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")
	base := "/api/events/" + id.String()

	if rec := f.do(t, "alice", http.MethodPut, base, map[string]any{"title": "Changed"}); rec.Code != http.StatusOK {
		t.Fatalf("update returned %d", rec.Code)
	}
	rec := f.do(t, "alice", http.MethodPost, base+"/rollback/1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("rollback returned %d: %s", rec.Code, rec.Body.String())
	}
	var version domain.EventVersion
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("decode rollback response: %v", err)
	}
	if version.VersionNumber != 3 || version.Snapshot.Title != "Standup" {
		t.Errorf("rollback result wrong: %+v", version)
	}
}

func TestChangelogExportEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createEvent(t, "alice")
	base := "/api/events/" + id.String()

	rec := f.do(t, "alice", http.MethodGet, base+"/changelog/export?format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "version,") {
		t.Errorf("unexpected header line: %q", lines[0])
	}

	if rec := f.do(t, "alice", http.MethodGet, base+"/changelog/export?format=pdf", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unsupported format: expected 422, got %d", rec.Code)
	}
}

func TestListEventsScopedToOwner(t *testing.T) {
	f := newAPIFixture(t)
	f.createEvent(t, "alice")
	f.createEvent(t, "alice")
	f.createEvent(t, "bob")

	rec := f.do(t, "alice", http.MethodGet, "/api/events?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Events     []domain.Event `json:"events"`
		TotalCount int            `json:"total_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if payload.TotalCount != 2 || len(payload.Events) != 2 {
		t.Errorf("expected 2 owned events, got %d/%d", len(payload.Events), payload.TotalCount)
	}

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	rec = f.do(t, "alice", http.MethodGet, fmt.Sprintf("/api/events?from=%s", from), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered list returned %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if payload.TotalCount != 0 {
		t.Errorf("future filter should match nothing, got %d", payload.TotalCount)
	}
}
