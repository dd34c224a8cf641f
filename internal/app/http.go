package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
)

type HTTPServer struct {
	service    *Service
	resolver   auth.Resolver
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, resolver auth.Resolver, corsOrigin string, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		service:    service,
		resolver:   resolver,
		corsOrigin: corsOrigin,
		log:        log.With().Str("component", "http").Logger(),
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, actor auth.Identity)

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	router.Handle("/session", s.authed(s.handleSession)).Methods(http.MethodGet)

	// Worlds
	router.Handle("/worlds", s.authed(s.handleListWorlds)).Methods(http.MethodGet)
	router.Handle("/worlds", s.authed(s.handleCreateWorld)).Methods(http.MethodPost)
	router.Handle("/worlds/{worldId}", s.authed(s.handleGetWorld)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}", s.authed(s.handleUpdateWorld)).Methods(http.MethodPatch)
	router.Handle("/worlds/{worldId}", s.authed(s.handleDeleteWorld)).Methods(http.MethodDelete)
	router.Handle("/worlds/{worldId}/pages", s.authed(s.handleListPages)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}/pages/check", s.authed(s.handleCheckTree)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}/members", s.authed(s.handleListMembers)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}/members/{userId}", s.authed(s.handleChangeMemberRole)).Methods(http.MethodPatch)
	router.Handle("/worlds/{worldId}/members/{userId}", s.authed(s.handleRemoveMember)).Methods(http.MethodDelete)
	router.Handle("/worlds/{worldId}/invitations", s.authed(s.handleListWorldInvitations)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}/invitations", s.authed(s.handleInvite)).Methods(http.MethodPost)
	router.Handle("/worlds/{worldId}/favorites", s.authed(s.handleListFavorites)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}/activity", s.authed(s.handleActivity)).Methods(http.MethodGet)
	router.Handle("/worlds/{worldId}/search", s.authed(s.handleSearch)).Methods(http.MethodGet)

	// Pages
	router.Handle("/pages", s.authed(s.handleCreatePage)).Methods(http.MethodPost)
	router.Handle("/pages/{pageId}", s.authed(s.handleGetPage)).Methods(http.MethodGet)
	router.Handle("/pages/{pageId}", s.authed(s.handleUpdatePage)).Methods(http.MethodPatch)
	router.Handle("/pages/{pageId}", s.authed(s.handleDeletePage)).Methods(http.MethodDelete)
	router.Handle("/pages/{pageId}/move", s.authed(s.handleMovePage)).Methods(http.MethodPatch)
	router.Handle("/pages/{pageId}/duplicate", s.authed(s.handleDuplicatePage)).Methods(http.MethodPost)
	router.Handle("/pages/{pageId}/content", s.authed(s.handleGetContent)).Methods(http.MethodGet)
	router.Handle("/pages/{pageId}/content", s.authed(s.handleSaveContent)).Methods(http.MethodPut)
	router.Handle("/pages/{pageId}/content/history", s.authed(s.handleContentHistory)).Methods(http.MethodGet)
	router.Handle("/pages/{pageId}/content/history/{hash}", s.authed(s.handleContentAt)).Methods(http.MethodGet)
	router.Handle("/pages/{pageId}/export", s.authed(s.handleExport)).Methods(http.MethodGet)
	router.Handle("/pages/{pageId}/favorite", s.authed(s.handleFavorite)).Methods(http.MethodPost)
	router.Handle("/pages/{pageId}/favorite", s.authed(s.handleUnfavorite)).Methods(http.MethodDelete)

	// Invitations addressed to the caller
	router.Handle("/invitations", s.authed(s.handleListInvitations)).Methods(http.MethodGet)
	router.Handle("/invitations/{invitationId}/accept", s.authed(s.handleAcceptInvitation)).Methods(http.MethodPost)
	router.Handle("/invitations/{invitationId}/reject", s.authed(s.handleRejectInvitation)).Methods(http.MethodPost)

	return s.withMiddleware(router)
}

// authed resolves the bearer token before calling next.
func (s *HTTPServer) authed(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		actor, err := s.resolver.Verify(r.Context(), token)
		if err != nil || actor.UID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next(w, r, actor)
	})
}

// respond writes payload, or the mapped error when err is set.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().
			Err(err).
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        actor.UID,
		"email":         actor.Email,
		"userName":      actor.Name,
	})
}

func (s *HTTPServer) handleListWorlds(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	items, err := s.service.ListWorlds(r.Context(), actor)
	s.respond(w, r, http.StatusOK, map[string]any{"worlds": items}, err)
}

func (s *HTTPServer) handleCreateWorld(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.CreateWorld(r.Context(), actor, body.Name, body.Icon)
	s.respond(w, r, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleGetWorld(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.GetWorld(r.Context(), actor, mux.Vars(r)["worldId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleUpdateWorld(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body UpdateWorldInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.UpdateWorld(r.Context(), actor, mux.Vars(r)["worldId"], body)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleDeleteWorld(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.DeleteWorld(r.Context(), actor, mux.Vars(r)["worldId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleListPages(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	worldID := mux.Vars(r)["worldId"]
	if queryBool(r, "tree") {
		items, err := s.service.PageTree(r.Context(), actor, worldID)
		s.respond(w, r, http.StatusOK, items, err)
		return
	}
	if queryBool(r, "outline") {
		items, err := s.service.PageOutline(r.Context(), actor, worldID)
		s.respond(w, r, http.StatusOK, items, err)
		return
	}
	items, err := s.service.ListPages(r.Context(), actor, worldID)
	s.respond(w, r, http.StatusOK, items, err)
}

func (s *HTTPServer) handleCheckTree(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.CheckTree(r.Context(), actor, mux.Vars(r)["worldId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleListMembers(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	items, err := s.service.ListMembers(r.Context(), actor, mux.Vars(r)["worldId"])
	s.respond(w, r, http.StatusOK, map[string]any{"members": items}, err)
}

func (s *HTTPServer) handleChangeMemberRole(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	vars := mux.Vars(r)
	payload, err := s.service.ChangeMemberRole(r.Context(), actor, vars["worldId"], vars["userId"], body.Role)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleRemoveMember(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	vars := mux.Vars(r)
	payload, err := s.service.RemoveMember(r.Context(), actor, vars["worldId"], vars["userId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleListWorldInvitations(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	items, err := s.service.ListWorldInvitations(r.Context(), actor, mux.Vars(r)["worldId"])
	s.respond(w, r, http.StatusOK, map[string]any{"invitations": items}, err)
}

func (s *HTTPServer) handleInvite(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Invite(r.Context(), actor, mux.Vars(r)["worldId"], body.Email, body.Role)
	s.respond(w, r, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleListFavorites(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	items, err := s.service.ListFavorites(r.Context(), actor, mux.Vars(r)["worldId"])
	s.respond(w, r, http.StatusOK, map[string]any{"pages": items}, err)
}

func (s *HTTPServer) handleActivity(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	items, err := s.service.Activity(r.Context(), actor, mux.Vars(r)["worldId"], queryInt(r, "limit", 0))
	s.respond(w, r, http.StatusOK, map[string]any{"activity": items}, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	query := r.URL.Query()
	response, err := s.service.Search(r.Context(), actor, mux.Vars(r)["worldId"], query.Get("q"),
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	s.respond(w, r, http.StatusOK, response, err)
}

func (s *HTTPServer) handleCreatePage(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body CreatePageInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.CreatePage(r.Context(), actor, body)
	s.respond(w, r, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleGetPage(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.GetPage(r.Context(), actor, mux.Vars(r)["pageId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

// handleUpdatePage accepts {title} and/or {emoji}.
func (s *HTTPServer) handleUpdatePage(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body UpdatePageInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.UpdatePage(r.Context(), actor, mux.Vars(r)["pageId"], body)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleDeletePage(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.DeletePage(r.Context(), actor, mux.Vars(r)["pageId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleMovePage(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body MovePageInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.MovePage(r.Context(), actor, mux.Vars(r)["pageId"], body)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleDuplicatePage(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.DuplicatePage(r.Context(), actor, mux.Vars(r)["pageId"])
	s.respond(w, r, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.GetContent(r.Context(), actor, mux.Vars(r)["pageId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleSaveContent(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	var body struct {
		Doc json.RawMessage `json:"doc"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.SaveContent(r.Context(), actor, mux.Vars(r)["pageId"], body.Doc)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleContentHistory(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.ContentHistory(r.Context(), actor, mux.Vars(r)["pageId"], queryInt(r, "limit", 0))
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleContentAt(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	vars := mux.Vars(r)
	payload, err := s.service.ContentAt(r.Context(), actor, vars["pageId"], vars["hash"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	result, err := s.service.ExportPage(r.Context(), actor, mux.Vars(r)["pageId"], r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	if result.URL != "" {
		w.Header().Set("X-Export-URL", result.URL)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleFavorite(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.FavoritePage(r.Context(), actor, mux.Vars(r)["pageId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleUnfavorite(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.UnfavoritePage(r.Context(), actor, mux.Vars(r)["pageId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleListInvitations(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	items, err := s.service.ListInvitations(r.Context(), actor)
	s.respond(w, r, http.StatusOK, map[string]any{"invitations": items}, err)
}

func (s *HTTPServer) handleAcceptInvitation(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.AcceptInvitation(r.Context(), actor, mux.Vars(r)["invitationId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleRejectInvitation(w http.ResponseWriter, r *http.Request, actor auth.Identity) {
	payload, err := s.service.RejectInvitation(r.Context(), actor, mux.Vars(r)["invitationId"])
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Export-URL, Content-Disposition")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func queryBool(r *http.Request, key string) bool {
	parsed, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && parsed
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
