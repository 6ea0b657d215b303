package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/leadline-ai/switchboard/internal/auth"
	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/crm"
	"github.com/leadline-ai/switchboard/internal/engine"
	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/storage"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	engine *engine.Engine
	store  storage.Store
	crm    crm.Client
	jwtMgr *auth.JWTManager
	logger *slog.Logger
	cfg    config.Config

	version     string
	openapiSpec []byte
	// operatorKeyHash is the Argon2id hash of the configured operator API
	// key, computed once at startup. Empty disables token exchange.
	operatorKeyHash string
}

// HandlersDeps holds constructor dependencies for Handlers.
type HandlersDeps struct {
	Engine      *engine.Engine
	Store       storage.Store
	CRM         crm.Client
	JWTMgr      *auth.JWTManager
	Logger      *slog.Logger
	Cfg         config.Config
	Version     string
	OpenAPISpec []byte
}

// NewHandlers creates the handler set.
func NewHandlers(d HandlersDeps) (*Handlers, error) {
	h := &Handlers{
		engine:      d.Engine,
		store:       d.Store,
		crm:         d.CRM,
		jwtMgr:      d.JWTMgr,
		logger:      d.Logger,
		cfg:         d.Cfg,
		version:     d.Version,
		openapiSpec: d.OpenAPISpec,
	}
	if d.Cfg.OperatorAPIKey != "" {
		hash, err := auth.HashOperatorKey(d.Cfg.OperatorAPIKey)
		if err != nil {
			return nil, err
		}
		h.operatorKeyHash = hash
	}
	return h, nil
}

// HandleHealth responds with service status and version.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	OperatorID string `json:"operator_id"`
	APIKey     string `json:"api_key"`
}

// AuthTokenResponse is the response body for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      auth.Role `json:"role"`
}

// HandleAuthToken exchanges the operator API key for a JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req AuthTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.OperatorID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "operator_id and api_key are required")
		return
	}

	if h.operatorKeyHash == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "token exchange is not configured")
		return
	}

	valid, err := auth.VerifyOperatorKey(req.APIKey, h.operatorKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	role := auth.RoleReader
	if slices.Contains(h.cfg.AdminOperators, req.OperatorID) {
		role = auth.RoleAdmin
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.OperatorID, role)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, AuthTokenResponse{Token: token, ExpiresAt: expiresAt, Role: role})
}

// HandleInboundEvent is the webhook ingress: verifies the HMAC signature,
// normalizes the delivery into an event, and runs the pipeline.
func (h *Handlers) HandleInboundEvent(w http.ResponseWriter, r *http.Request) {
	body, err := readSignedBody(r, h.cfg.MaxRequestBodyBytes, h.cfg.WebhookSecret)
	if err != nil {
		if errors.Is(err, errBadSignature) {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid webhook signature")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unreadable request body")
		return
	}

	var req model.InboundEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	if req.Direction != "" && model.Direction(req.Direction) != model.DirectionInbound {
		// Outbound echoes from the channel are acknowledged, not routed.
		writeJSON(w, r, http.StatusAccepted, model.EventOutcomeResponse{Disposition: "ignored"})
		return
	}

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	event := model.ConversationEvent{
		ID:         uuid.New(),
		MessageID:  req.MessageID,
		ContactID:  req.ContactID,
		Channel:    req.Channel,
		Direction:  model.DirectionInbound,
		Body:       req.Body,
		Tags:       req.Tags,
		ReceivedAt: receivedAt,
	}

	outcome, err := h.engine.Process(r.Context(), event)
	if err != nil {
		if errors.Is(err, model.ErrInvalidEvent) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.logger.Error("process event", "contact_id", event.ContactID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to process event")
		return
	}

	// Denials are not webhook errors: the channel already delivered the
	// message, so the response just reports the deferral.
	if outcome.Disposition == engine.DispositionRateLimited && outcome.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(outcome.RetryAfter))
	}

	writeJSON(w, r, http.StatusOK, model.EventOutcomeResponse{
		EventID:     outcome.EventID,
		Disposition: outcome.Disposition,
		Persona:     outcome.Persona,
		Reply:       outcome.Reply,
		Compliance:  outcome.Compliance.Status,
		Actions:     outcome.Actions,
	})
}

// ContactStateResponse is the response body for GET /v1/contacts/{contact_id}/state.
type ContactStateResponse struct {
	ContactID      string        `json:"contact_id"`
	CurrentPersona model.Persona `json:"current_persona"`
	ActiveTags     []string      `json:"active_tags"`
	LastHandoffAt  *time.Time    `json:"last_handoff_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HandleContactState returns a contact's current routing state.
func (h *Handlers) HandleContactState(w http.ResponseWriter, r *http.Request) {
	contactID := r.PathValue("contact_id")

	state, err := h.store.GetState(r.Context(), contactID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "contact not found")
		return
	}
	if err != nil {
		h.logger.Error("get contact state", "contact_id", contactID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load state")
		return
	}

	writeJSON(w, r, http.StatusOK, contactStateResponse(state))
}

// HandoffResponse is one handoff in a contact history response.
type HandoffResponse struct {
	Source      model.Persona `json:"source_persona"`
	Target      model.Persona `json:"target_persona"`
	Reason      string        `json:"reason"`
	Confidence  float64       `json:"confidence"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// ContactHistoryResponse is the response body for GET /v1/contacts/{contact_id}/history.
type ContactHistoryResponse struct {
	ContactID string            `json:"contact_id"`
	Messages  []model.Message   `json:"messages"`
	Handoffs  []HandoffResponse `json:"handoffs"`
}

// HandleContactHistory returns a contact's message history and handoffs.
func (h *Handlers) HandleContactHistory(w http.ResponseWriter, r *http.Request) {
	contactID := r.PathValue("contact_id")

	state, err := h.store.GetState(r.Context(), contactID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "contact not found")
		return
	}
	if err != nil {
		h.logger.Error("get contact history", "contact_id", contactID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load history")
		return
	}

	records, err := h.store.ContactHandoffs(r.Context(), contactID)
	if err != nil {
		h.logger.Error("get contact handoffs", "contact_id", contactID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load history")
		return
	}

	handoffs := make([]HandoffResponse, 0, len(records))
	for _, rec := range records {
		handoffs = append(handoffs, HandoffResponse{
			Source:      rec.Source,
			Target:      rec.Target,
			Reason:      rec.Reason,
			Confidence:  rec.Confidence,
			TriggeredAt: rec.CreatedAt,
		})
	}

	writeJSON(w, r, http.StatusOK, ContactHistoryResponse{
		ContactID: contactID,
		Messages:  state.History,
		Handoffs:  handoffs,
	})
}

// HandleReactivateContact clears deactivation tags so routing resumes.
// Deactivation is terminal from the pipeline's side; only this explicit
// operator action reverses it.
func (h *Handlers) HandleReactivateContact(w http.ResponseWriter, r *http.Request) {
	contactID := r.PathValue("contact_id")

	state, err := h.store.GetState(r.Context(), contactID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "contact not found")
		return
	}
	if err != nil {
		h.logger.Error("reactivate contact", "contact_id", contactID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load state")
		return
	}

	tags := append(append([]string(nil), h.cfg.DeactivationTags...), h.cfg.OptOutTag)
	var cleared []model.Action
	for _, tag := range tags {
		if state.HasTag(tag) {
			state.RemoveTag(tag)
			cleared = append(cleared, model.RemoveTag(tag))
		}
	}

	if len(cleared) > 0 {
		if err := h.store.SaveState(r.Context(), state); err != nil {
			h.logger.Error("reactivate contact", "contact_id", contactID, "error", err)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to save state")
			return
		}
		if err := h.crm.ApplyActions(r.Context(), contactID, cleared); err != nil {
			h.logger.Error("reactivate contact: apply CRM actions", "contact_id", contactID, "error", err)
		}

		operatorID := ""
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			operatorID = claims.OperatorID
		}
		h.logger.Info("contact reactivated",
			"contact_id", contactID,
			"operator_id", operatorID,
			"cleared", len(cleared),
		)
	}

	writeJSON(w, r, http.StatusOK, contactStateResponse(state))
}

func contactStateResponse(state *model.ConversationState) ContactStateResponse {
	return ContactStateResponse{
		ContactID:      state.ContactID,
		CurrentPersona: state.CurrentPersona,
		ActiveTags:     state.ActiveTags,
		LastHandoffAt:  state.LastHandoffAt,
		UpdatedAt:      state.UpdatedAt,
	}
}
