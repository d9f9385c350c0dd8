// Package admin provides HTTP handlers for the Admin API.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tillstack/tillstack/adapters/memory"
	"github.com/tillstack/tillstack/adapters/sqlite"
	"github.com/tillstack/tillstack/app"
	"github.com/tillstack/tillstack/config"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// Handler provides admin API endpoints.
type Handler struct {
	catalog  *app.CatalogService
	ledger   *app.LedgerService
	invoices *app.InvoiceService
	config   config.Source
	logger   zerolog.Logger
	hasher   ports.Hasher
	sessions *SessionStore
}

// Deps contains dependencies for the admin handler. Config is a source
// rather than a bare struct so credential reloads are visible to in-flight
// requests without a restart.
type Deps struct {
	Catalog  *app.CatalogService
	Ledger   *app.LedgerService
	Invoices *app.InvoiceService
	Config   config.Source
	Logger   zerolog.Logger
	Hasher   ports.Hasher
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		catalog:  deps.Catalog,
		ledger:   deps.Ledger,
		invoices: deps.Invoices,
		config:   deps.Config,
		logger:   deps.Logger,
		hasher:   deps.Hasher,
		sessions: NewSessionStore(),
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Public endpoints (no auth required)
	r.Post("/login", h.Login)

	// Protected endpoints (require auth)
	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.RefreshAll)

		// Plan catalog
		r.Get("/plans", h.ListPlans)
		r.Post("/plans", h.CreatePlan)
		r.Get("/plans/{id}", h.GetPlan)
		r.Put("/plans/{id}", h.UpdatePlan)
		r.Delete("/plans/{id}", h.DeletePlan)

		// Add-on catalog
		r.Get("/addons", h.ListAddons)
		r.Post("/addons", h.CreateAddon)
		r.Get("/addons/{id}", h.GetAddon)
		r.Put("/addons/{id}", h.UpdateAddon)
		r.Delete("/addons/{id}", h.DeleteAddon)

		// Organizations and their ledgers
		r.Get("/organizations", h.ListOrganizations)
		r.Get("/organizations/{id}", h.GetOrganization)
		r.Get("/organizations/{id}/quote", h.QuoteOrganization)
		r.Post("/organizations/{id}/addons/{addonID}", h.AddAddon)
		r.Post("/organizations/{id}/addons/{addonID}/increment", h.IncrementAddon)
		r.Post("/organizations/{id}/addons/{addonID}/decrement", h.DecrementAddon)
		r.Delete("/organizations/{id}/addons/{addonID}", h.RemoveAddon)

		// Invoices
		r.Get("/invoices", h.ListInvoices)
		r.Get("/invoices/summary", h.InvoiceSummary)
		r.Get("/invoices/by-organization", h.InvoicesByOrganization)
		r.Post("/invoices", h.ComposeInvoice)
		r.Post("/invoices/custom", h.CreateCustomInvoice)
		r.Get("/invoices/{id}", h.GetInvoice)
		r.Patch("/invoices/{id}", h.UpdateInvoiceStatus)
		r.Post("/invoices/{id}/share", h.ShareInvoice)
	})

	return r
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

// Session represents an admin session.
type Session struct {
	ID        string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore manages admin sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create creates a new session.
func (s *SessionStore) Create(email string, duration time.Duration) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateSessionID()
	session := &Session{
		ID:        id,
		Email:     email,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(duration),
	}
	s.sessions[id] = session
	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || session.ExpiresAt.Before(time.Now().UTC()) {
		return nil
	}
	return session
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func generateSessionID() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// LoginResponse represents a login response.
type LoginResponse struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
	Email     string `json:"email"`
}

// Login authenticates an admin user.
//
//	@Summary		Admin login
//	@Description	Authenticate with email/password or API key
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Login credentials"
//	@Success		200		{object}	LoginResponse	"Login successful"
//	@Failure		401		{object}	ErrorResponse	"Invalid credentials"
//	@Router			/admin/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	// Credentials come from a per-request snapshot so a concurrent config
	// reload never tears a half-written struct.
	creds := h.config.Get().Admin

	// API key authentication
	if req.APIKey != "" {
		if !h.apiKeyMatches(req.APIKey) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid API key")
			return
		}
		email := req.Email
		if email == "" {
			email = creds.Email
		}
		session := h.sessions.Create(email, 24*time.Hour)
		writeJSON(w, http.StatusOK, LoginResponse{
			SessionID: session.ID,
			ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
			Email:     email,
		})
		return
	}

	// Email/password authentication
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials", "Email and password, or API key, required")
		return
	}
	if !strings.EqualFold(req.Email, creds.Email) || creds.PasswordHash == "" {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	if !h.hasher.Compare([]byte(creds.PasswordHash), req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	session := h.sessions.Create(req.Email, 24*time.Hour)
	writeJSON(w, http.StatusOK, LoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		Email:     req.Email,
	})
}

// Logout ends an admin session.
//
//	@Summary		Admin logout
//	@Description	End the current session
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{object}	map[string]string	"Logged out"
//	@Security		AdminAuth
//	@Router			/admin/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := r.Context().Value(ctxSessionKey).(string); ok {
		h.sessions.Delete(sessionID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// RefreshAll refetches catalogs, organizations and invoices from the
// upstream gateway, replacing resident state.
//
//	@Summary		Refresh resident state
//	@Description	Refetch catalogs, organizations and invoices from the upstream service
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{object}	map[string]string	"Refreshed"
//	@Security		AdminAuth
//	@Router			/admin/refresh [post]
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.Refresh(ctx); err != nil {
		h.logger.Error().Err(err).Msg("catalog refresh failed")
		writeError(w, http.StatusBadGateway, "refresh_failed", "Could not refresh the catalog")
		return
	}
	if err := h.ledger.Refresh(ctx); err != nil {
		h.logger.Error().Err(err).Msg("organization refresh failed")
		writeError(w, http.StatusBadGateway, "refresh_failed", "Could not refresh organizations")
		return
	}
	if err := h.invoices.Refresh(ctx); err != nil {
		h.logger.Error().Err(err).Msg("invoice refresh failed")
		writeError(w, http.StatusBadGateway, "refresh_failed", "Could not refresh invoices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// AuthMiddleware validates admin authentication.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Try session cookie first
		if cookie, err := r.Cookie("session_id"); err == nil {
			if session := h.sessions.Get(cookie.Value); session != nil {
				ctx := context.WithValue(r.Context(), ctxSessionKey, session.ID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		// Try Authorization header (Bearer session_id or API key)
		auth := r.Header.Get("Authorization")
		if auth != "" {
			token := strings.TrimPrefix(auth, "Bearer ")

			if session := h.sessions.Get(token); session != nil {
				ctx := context.WithValue(r.Context(), ctxSessionKey, session.ID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if h.apiKeyMatches(token) {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Try X-API-Key header
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && h.apiKeyMatches(apiKey) {
			next.ServeHTTP(w, r)
			return
		}

		writeError(w, http.StatusUnauthorized, "unauthorized", "Valid session or API key required")
	})
}

func (h *Handler) apiKeyMatches(key string) bool {
	configured := h.config.Get().Admin.APIKey
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(key)) == 1
}

// Context keys
type ctxKey string

const ctxSessionKey ctxKey = "session_id"

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// ErrorResponse is the error envelope returned by the admin API.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeDomainError maps domain and store errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "Record not found")
	case errors.Is(err, ledger.ErrNoEntry):
		writeError(w, http.StatusNotFound, "no_such_addon", "Organization has no such add-on")
	case errors.Is(err, invoice.ErrConfirmationRequired):
		writeError(w, http.StatusConflict, "confirmation_required", "Reverting a paid invoice clears the payment timestamp; confirm to proceed")
	case errors.Is(err, invoice.ErrBadTransition):
		writeError(w, http.StatusConflict, "bad_transition", "Transition not allowed from the current status")
	case errors.Is(err, invoice.ErrNonPositiveAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", "Amount must be positive")
	case errors.Is(err, invoice.ErrNoOrganization):
		writeError(w, http.StatusBadRequest, "missing_organization", "Organization is required")
	case errors.Is(err, memory.ErrDuplicate), errors.Is(err, sqlite.ErrDuplicate):
		writeError(w, http.StatusConflict, "already_exists", "Record already exists")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "Unexpected error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound) || errors.Is(err, sqlite.ErrNotFound)
}

// isDomainError reports whether the error is a domain rule violation, as
// opposed to an upstream gateway failure.
func isDomainError(err error) bool {
	return errors.Is(err, invoice.ErrConfirmationRequired) ||
		errors.Is(err, invoice.ErrBadTransition) ||
		errors.Is(err, invoice.ErrNonPositiveAmount) ||
		errors.Is(err, invoice.ErrNoOrganization) ||
		errors.Is(err, ledger.ErrNoEntry)
}
