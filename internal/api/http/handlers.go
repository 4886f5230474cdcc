package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	accountsapp "plant-console/internal/accounts/application"
	accounts "plant-console/internal/accounts/domain"
	"plant-console/internal/audit"
	"plant-console/internal/auth"
	"plant-console/internal/export"
	listingapp "plant-console/internal/listing/application"
	"plant-console/internal/observability/metrics"
	"plant-console/internal/qbits"
)

const maxBodyBytes = 1 << 20

// Views is the part of the view service the handlers use.
type Views interface {
	Apply(ctx context.Context, caller listingapp.Caller, screen string, params listingapp.ViewParams) (listingapp.ViewModel, error)
	Refresh(ctx context.Context, caller listingapp.Caller, screen string) (listingapp.ViewModel, error)
	Unmount(sessionID, screen string) bool
	Close(sessionID string) int
	Screens() []string
}

// Accounts performs operator writes.
type Accounts interface {
	ToggleFlag(ctx context.Context, actor accountsapp.Actor, userID, flag string, enabled bool) (accounts.Flags, error)
	SetCompanyCode(ctx context.Context, actor accountsapp.Actor, userID, code string) (*string, error)
	SyncInverters(ctx context.Context, actor accountsapp.Actor) error
}

// Exports renders export files.
type Exports interface {
	Faults(ctx context.Context, token string, scope export.Scope, format string) (export.File, error)
	Stations(ctx context.Context, token string) (export.File, error)
}

// Upstream is the part of the qbits client served directly.
type Upstream interface {
	Login(ctx context.Context, email, password string) (qbits.Session, error)
	Statistics(ctx context.Context, token string, q qbits.StatisticsQuery) (any, error)
	InverterLatest(ctx context.Context, token, plantID string) ([]map[string]any, error)
	PlantDetail(ctx context.Context, token, plantNo string) (map[string]any, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Views     Views
	Accounts  Accounts
	Exports   Exports
	Upstream  Upstream
	Sessions  *auth.SessionStore
	JWTSecret []byte
	Audit     audit.Logger
	Logger    *zap.Logger
}

// Handler serves the console JSON API.
type Handler struct {
	views    Views
	accounts Accounts
	exports  Exports
	upstream Upstream
	sessions *auth.SessionStore
	secret   []byte
	audit    audit.Logger
	logger   *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Views == nil:
		return nil, errors.New("api handler: nil views")
	case deps.Accounts == nil:
		return nil, errors.New("api handler: nil accounts")
	case deps.Exports == nil:
		return nil, errors.New("api handler: nil exports")
	case deps.Upstream == nil:
		return nil, errors.New("api handler: nil upstream")
	case deps.Sessions == nil:
		return nil, errors.New("api handler: nil sessions")
	case len(deps.JWTSecret) == 0:
		return nil, errors.New("api handler: empty jwt secret")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		views:    deps.Views,
		accounts: deps.Accounts,
		exports:  deps.Exports,
		upstream: deps.Upstream,
		sessions: deps.Sessions,
		secret:   deps.JWTSecret,
		audit:    audit.BestEffort(deps.Audit, logger),
		logger:   logger,
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/v1/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	upstreamSession, err := h.upstream.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.IncLogin(metrics.ResultError)
		var apiErr *qbits.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Warn("login failed", zap.String("email", req.Email), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream login failed")
		return
	}

	role := auth.RoleFromUpstream(upstreamSession.Role)
	session := h.sessions.Create(upstreamSession.Email, role, upstreamSession.Token)
	token, err := auth.IssueJWT(session, h.secret)
	if err != nil {
		h.sessions.Delete(session.ID)
		h.logger.Error("issue jwt", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "issue token failed")
		return
	}
	metrics.IncLogin(metrics.ResultSuccess)
	h.logAudit(r, session, audit.ActionLogin, "", map[string]any{"upstream_role": upstreamSession.Role})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		Email:     session.Subject,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout handles POST /api/v1/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.endSession(session.ID)
	h.logAudit(r, session, audit.ActionLogout, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) endSession(sessionID string) {
	h.views.Close(sessionID)
	h.sessions.Delete(sessionID)
}

// View handles GET /api/v1/views/{screen}.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	params, err := parseViewParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := caller(session)
	c.Scope = r.URL.Query().Get("scope")
	model, err := h.views.Apply(r.Context(), c, chi.URLParam(r, "screen"), params)
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// UserPlants handles GET /api/v1/users/{id}/plants, the plant list of one user.
func (h *Handler) UserPlants(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	params, err := parseViewParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := caller(session)
	c.Scope = chi.URLParam(r, "id")
	model, err := h.views.Apply(r.Context(), c, userPlantsScreen, params)
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

const userPlantsScreen = "user_plants"

// RefreshView handles POST /api/v1/views/{screen}/refresh.
func (h *Handler) RefreshView(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	c := caller(session)
	c.Scope = r.URL.Query().Get("scope")
	model, err := h.views.Refresh(r.Context(), c, chi.URLParam(r, "screen"))
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// ListViews handles GET /api/v1/views.
func (h *Handler) ListViews(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"screens": h.views.Screens()})
}

// UnmountView handles DELETE /api/v1/views/{screen}.
func (h *Handler) UnmountView(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.views.Unmount(session.ID, chi.URLParam(r, "screen")) {
		writeError(w, http.StatusNotFound, "view not mounted")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func caller(session auth.Session) listingapp.Caller {
	return listingapp.Caller{SessionID: session.ID, Token: session.UpstreamToken}
}

const facetPrefix = "facet."

func parseViewParams(r *http.Request) (listingapp.ViewParams, error) {
	query := r.URL.Query()
	params := listingapp.ViewParams{
		Partition: query.Get("partition"),
		Sort:      query.Get("sort"),
		Direction: query.Get("dir"),
	}
	if query.Has("q") {
		q := query.Get("q")
		params.Query = &q
	}
	if raw := query.Get("toggle"); raw != "" {
		toggle, err := strconv.ParseBool(raw)
		if err != nil {
			return params, errors.New("toggle must be a boolean")
		}
		params.Toggle = toggle
	}
	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.New("page must be an integer")
		}
		params.Page = page
	}
	for key, values := range query {
		if !strings.HasPrefix(key, facetPrefix) || len(values) == 0 {
			continue
		}
		if params.Facets == nil {
			params.Facets = make(map[string]string)
		}
		params.Facets[strings.TrimPrefix(key, facetPrefix)] = values[0]
	}
	return params, nil
}

type flagRequest struct {
	Flag    string `json:"flag"`
	Enabled *bool  `json:"enabled"`
}

type flagResponse struct {
	ID    string         `json:"id"`
	Flags accounts.Flags `json:"flags"`
}

// NotificationFlags handles POST /api/v1/users/{id}/notification-flags.
func (h *Handler) NotificationFlags(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req flagRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	id := chi.URLParam(r, "id")
	flags, err := h.accounts.ToggleFlag(r.Context(), actor(r, session), id, req.Flag, *req.Enabled)
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, flagResponse{ID: id, Flags: flags})
}

type companyCodeRequest struct {
	CompanyCode *string `json:"company_code"`
}

type companyCodeResponse struct {
	ID          string  `json:"id"`
	CompanyCode *string `json:"company_code"`
}

// CompanyCode handles PUT /api/v1/users/{id}/company-code.
func (h *Handler) CompanyCode(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req companyCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	code := ""
	if req.CompanyCode != nil {
		code = *req.CompanyCode
	}
	id := chi.URLParam(r, "id")
	stored, err := h.accounts.SetCompanyCode(r.Context(), actor(r, session), id, code)
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, companyCodeResponse{ID: id, CompanyCode: stored})
}

// SyncInverters handles POST /api/v1/inverters/sync.
func (h *Handler) SyncInverters(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.accounts.SyncInverters(r.Context(), actor(r, session)); err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func actor(r *http.Request, session auth.Session) accountsapp.Actor {
	return accountsapp.Actor{
		SessionID: session.ID,
		Token:     session.UpstreamToken,
		Subject:   session.Subject,
		Role:      string(session.Role),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// ExportFaults serves GET /api/v1/exports/faults.{xlsx|pdf}.
func (h *Handler) ExportFaults(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		query := r.URL.Query()
		scope, err := export.ParseScope(query.Get("scope"), query.Get("from"), query.Get("to"), query.Get("plant_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		file, err := h.exports.Faults(r.Context(), session.UpstreamToken, scope, format)
		if err != nil {
			h.fail(w, session, err)
			return
		}
		h.logAudit(r, session, audit.ActionExport, "", map[string]any{"kind": "faults", "scope": scope.Kind, "format": format})
		writeFile(w, file)
	}
}

// ExportStations serves GET /api/v1/exports/stations.xlsx.
func (h *Handler) ExportStations(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	file, err := h.exports.Stations(r.Context(), session.UpstreamToken)
	if err != nil {
		h.fail(w, session, err)
		return
	}
	h.logAudit(r, session, audit.ActionExport, "", map[string]any{"kind": "stations", "format": export.FormatXLSX})
	writeFile(w, file)
}

// Statistics serves GET /api/v1/plants/statistics/{period}.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	plantID := query.Get("plant_id")
	if plantID == "" {
		writeError(w, http.StatusBadRequest, "plant_id is required")
		return
	}
	payload, err := h.upstream.Statistics(r.Context(), session.UpstreamToken, qbits.StatisticsQuery{
		Period:    chi.URLParam(r, "period"),
		StartTime: query.Get("start_time"),
		PlantID:   plantID,
		Atun:      query.Get("atun"),
		Atpd:      query.Get("atpd"),
	})
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// PlantInverters serves GET /api/v1/plants/{id}/inverters.
func (h *Handler) PlantInverters(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rows, err := h.upstream.InverterLatest(r.Context(), session.UpstreamToken, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inverters": rows})
}

// PlantDetail serves GET /api/v1/plants/{plantNo}.
func (h *Handler) PlantDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	plant, err := h.upstream.PlantDetail(r.Context(), session.UpstreamToken, chi.URLParam(r, "plantNo"))
	if err != nil {
		h.fail(w, session, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plant": plant})
}

// fail maps service errors to responses. An upstream credential rejection ends the session.
func (h *Handler) fail(w http.ResponseWriter, session auth.Session, err error) {
	status, message := statusOf(err)
	switch {
	case status == http.StatusUnauthorized:
		h.endSession(session.ID)
		h.logger.Info("upstream rejected session token", zap.String("session_id", session.ID), zap.Error(err))
	case status >= http.StatusInternalServerError:
		h.logger.Error("request failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	writeError(w, status, message)
}

func statusOf(err error) (int, string) {
	var apiErr *qbits.APIError
	switch {
	case errors.Is(err, listingapp.ErrUnauthorized), errors.Is(err, qbits.ErrUnauthorized), errors.Is(err, qbits.ErrNoToken):
		return http.StatusUnauthorized, "upstream session expired"
	case errors.Is(err, listingapp.ErrUnknownScreen),
		errors.Is(err, accountsapp.ErrUserNotLoaded),
		errors.Is(err, qbits.ErrPlantNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, accounts.ErrWhatsAppDisabled), errors.Is(err, listingapp.ErrSuperseded):
		return http.StatusConflict, err.Error()
	case errors.Is(err, listingapp.ErrUnknownPartition),
		errors.Is(err, listingapp.ErrInvalidParams),
		errors.Is(err, accounts.ErrUnknownFlag),
		errors.Is(err, accountsapp.ErrEmptyUserID),
		errors.Is(err, export.ErrInvalidScope),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, qbits.ErrUnknownPeriod):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream timeout"
	case errors.As(err, &apiErr):
		if apiErr.Status == http.StatusUnprocessableEntity || apiErr.Status == http.StatusBadRequest {
			return http.StatusBadRequest, apiErr.Message
		}
		return http.StatusBadGateway, "upstream error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) logAudit(r *http.Request, session auth.Session, action, resourceID string, metadata any) {
	_ = h.audit.Log(r.Context(), audit.Entry{
		SessionID:  session.ID,
		Actor:      session.Subject,
		Role:       string(session.Role),
		Action:     action,
		ResourceID: resourceID,
		Metadata:   audit.Metadata(metadata),
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	return json.Unmarshal(body, v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFile(w http.ResponseWriter, file export.File) {
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}
