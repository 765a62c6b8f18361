// Package api exposes the event engine over REST.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neofi/eventapi/internal/auth"
	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/export"
	"github.com/neofi/eventapi/internal/repository"
	"github.com/neofi/eventapi/internal/service"
)

// Handler routes /api/events requests to the core services. Authentication
// happens in middleware; every request reaching this handler carries an actor.
type Handler struct {
	store     repository.VersionStore
	perms     repository.PermissionRepository
	mutator   *service.Mutator
	changelog *service.Changelog
	rollback  *service.RollbackCoordinator
	logger    *zap.Logger
}

// NewHandler wires the REST surface.
func NewHandler(
	store repository.VersionStore,
	perms repository.PermissionRepository,
	mutator *service.Mutator,
	changelog *service.Changelog,
	rollback *service.RollbackCoordinator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		store:     store,
		perms:     perms,
		mutator:   mutator,
		changelog: changelog,
		rollback:  rollback,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/events")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r, actor)
		case http.MethodGet:
			h.handleListEvents(w, r, actor)
		default:
			methodNotAllowed(w)
		}
		return
	}
	if rest == "batch" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleBatchCreate(w, r, actor)
		return
	}

	segments := strings.Split(rest, "/")
	eventID, err := uuid.Parse(segments[0])
	if err != nil {
		h.writeError(w, domain.Validation("invalid event id"))
		return
	}

	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, eventID, actor)
		case http.MethodPut:
			h.handleUpdate(w, r, eventID, actor)
		case http.MethodDelete:
			h.handleDelete(w, r, eventID, actor)
		default:
			methodNotAllowed(w)
		}
	case len(segments) == 2 && segments[1] == "share" && r.Method == http.MethodPost:
		h.handleShare(w, r, eventID, actor)
	case len(segments) == 2 && segments[1] == "permissions" && r.Method == http.MethodGet:
		h.handleListPermissions(w, r, eventID, actor)
	case len(segments) == 3 && segments[1] == "permissions" && r.Method == http.MethodDelete:
		h.handleRevoke(w, r, eventID, segments[2], actor)
	case len(segments) == 3 && segments[1] == "history" && r.Method == http.MethodGet:
		h.handleVersion(w, r, eventID, segments[2], actor)
	case len(segments) == 2 && segments[1] == "changelog" && r.Method == http.MethodGet:
		h.handleChangelog(w, r, eventID, actor)
	case len(segments) == 3 && segments[1] == "changelog" && segments[2] == "export" && r.Method == http.MethodGet:
		h.handleChangelogExport(w, r, eventID, actor)
	case len(segments) == 4 && segments[1] == "diff" && r.Method == http.MethodGet:
		h.handleDiff(w, r, eventID, segments[2], segments[3], actor)
	case len(segments) == 3 && segments[1] == "rollback" && r.Method == http.MethodPost:
		h.handleRollback(w, r, eventID, segments[2], actor)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, actor string) {
	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, domain.Validation("invalid request body"))
		return
	}
	event, err := h.mutator.Create(r.Context(), payload.snapshot(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleBatchCreate(w http.ResponseWriter, r *http.Request, actor string) {
	var payload struct {
		Events []createRequest `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, domain.Validation("invalid request body"))
		return
	}
	if len(payload.Events) == 0 {
		h.writeError(w, domain.Validation("events must not be empty"))
		return
	}

	items := make([]domain.EventSnapshot, len(payload.Events))
	for i, req := range payload.Events {
		items[i] = req.snapshot()
	}
	results := h.mutator.CreateBatch(r.Context(), items, actor)

	out := make([]batchItemResponse, len(results))
	for i, result := range results {
		if result.Err != nil {
			out[i] = batchItemResponse{Error: errorBody(result.Err)}
			continue
		}
		event := result.Event
		out[i] = batchItemResponse{Event: &event}
	}
	writeJSON(w, http.StatusMultiStatus, map[string]any{"results": out})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request, actor string) {
	filter, err := parseEventFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	events, total, err := h.store.ListEvents(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":      events,
		"total_count": total,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	version, err := h.changelog.Latest(r.Context(), eventID, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	patch, err := decodePatch(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	version, err := h.mutator.Update(r.Context(), eventID, patch, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	version, err := h.mutator.Delete(r.Context(), eventID, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// handleShare grants or updates a sharing role. Only the owner manages
// grants; ownership itself is not transferable through this endpoint.
func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	if err := h.requireOwner(r, eventID, actor); err != nil {
		h.writeError(w, err)
		return
	}
	var payload struct {
		UserID string      `json:"user_id"`
		Role   domain.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, domain.Validation("invalid request body"))
		return
	}
	if strings.TrimSpace(payload.UserID) == "" {
		h.writeError(w, domain.Validation("user_id must not be empty"))
		return
	}
	if payload.Role != domain.RoleEditor && payload.Role != domain.RoleViewer {
		h.writeError(w, domain.Validation("role must be editor or viewer"))
		return
	}
	perm := domain.EventPermission{EventID: eventID, UserID: payload.UserID, Role: payload.Role}
	if err := h.perms.Grant(r.Context(), perm); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	if err := h.requireOwner(r, eventID, actor); err != nil {
		h.writeError(w, err)
		return
	}
	grants, err := h.perms.List(r.Context(), eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": grants})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, userID, actor string) {
	if err := h.requireOwner(r, eventID, actor); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.perms.Revoke(r.Context(), eventID, userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, rawVersion, actor string) {
	versionNumber, err := parseVersion(rawVersion)
	if err != nil {
		h.writeError(w, err)
		return
	}
	version, err := h.changelog.Version(r.Context(), eventID, versionNumber, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleChangelog(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	opts, err := parseListOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	page, err := h.changelog.Changelog(r.Context(), eventID, actor, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleChangelogExport streams the full changelog as CSV or XLSX, walking
// every page so the file is complete regardless of page size.
func (h *Handler) handleChangelogExport(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, actor string) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, domain.Validation(err.Error()))
		return
	}

	var entries []service.ChangelogEntry
	opts := repository.ListOptions{PageSize: 200}
	for {
		page, err := h.changelog.Changelog(r.Context(), eventID, actor, opts)
		if err != nil {
			h.writeError(w, err)
			return
		}
		entries = append(entries, page.Entries...)
		if page.NextCursor == "" {
			break
		}
		opts.Cursor = page.NextCursor
	}

	filename := "changelog_" + eventID.String() + "." + string(format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if format == export.FormatXLSX {
		err = export.WriteXLSX(w, entries)
	} else {
		err = export.WriteCSV(w, entries)
	}
	if err != nil {
		h.logger.Error("failed to stream changelog export",
			zap.String("event_id", eventID.String()),
			zap.Error(err),
		)
	}
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, rawV1, rawV2, actor string) {
	v1, err := parseVersion(rawV1)
	if err != nil {
		h.writeError(w, err)
		return
	}
	v2, err := parseVersion(rawV2)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts := domain.DiffOptions{IncludeUnchanged: r.URL.Query().Get("include_unchanged") == "true"}
	diffs, err := h.changelog.Compare(r.Context(), eventID, v1, v2, actor, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":     eventID,
		"from_version": v1,
		"to_version":   v2,
		"changes":      diffs,
	})
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request, eventID uuid.UUID, rawVersion, actor string) {
	targetVersion, err := parseVersion(rawVersion)
	if err != nil {
		h.writeError(w, err)
		return
	}
	version, err := h.rollback.Rollback(r.Context(), eventID, targetVersion, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

// requireOwner resolves the event and rejects non-owners. Sharing management
// is reserved to the owner regardless of granted roles.
func (h *Handler) requireOwner(r *http.Request, eventID uuid.UUID, actor string) error {
	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		return err
	}
	if event.OwnerID != actor {
		return domain.Forbidden(eventID, actor)
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := domain.KindOf(err); ok {
		switch kind {
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindForbidden:
			status = http.StatusForbidden
		case domain.KindValidation:
			status = http.StatusUnprocessableEntity
		case domain.KindAlreadyDeleted, domain.KindConcurrentModification:
			status = http.StatusConflict
		case domain.KindStorageTimeout:
			status = http.StatusGatewayTimeout
		}
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody(err))
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Version int64  `json:"version,omitempty"`
}

func errorBody(err error) *errorResponse {
	resp := &errorResponse{Error: err.Error()}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		resp.Kind = string(domainErr.Kind)
		resp.Version = domainErr.Version
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func parseVersion(raw string) (int64, error) {
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 1 {
		return 0, domain.Validation("version must be a positive integer")
	}
	return version, nil
}
