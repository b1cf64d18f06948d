// Package rsvpapi serves the RSVP token REST surface: issuance and revocation
// for operators, resolution and access code checks for guests.
package rsvpapi

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rsvp/cmd/internal/metrics"
	"rsvp/cmd/internal/realtime"
	"rsvp/cmd/internal/rsvptoken"
	"rsvp/cmd/internal/tracking"
	"rsvp/cmd/security/adminkey"
	feedv1 "rsvp/shared/contracts/rsvpfeed/v1"
)

const codeValid = "VALID"

// Handler wires HTTP RSVP endpoints to the tracking service.
type Handler struct {
	log *slog.Logger
	cfg Config

	svc     *tracking.Service
	admin   AdminAuthorizer
	feed    realtime.Publisher
	metrics *metrics.Metrics
	limiter *KeyedRateLimiter
	ipKey   []byte
	now     func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAdminAuthorizer overrides the verifier built from Config.AdminKeyHash.
func WithAdminAuthorizer(a AdminAuthorizer) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.admin = a
		}
	}
}

// WithPublisher sends activity events to the admin feed.
func WithPublisher(p realtime.Publisher) HandlerOption {
	return func(h *Handler) { h.feed = p }
}

// WithMetrics records outcome counters.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides the clock used for rate limiting.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler. A malformed Config.AdminKeyHash is an error;
// an empty one leaves admin routes answering 503.
func NewHandler(log *slog.Logger, svc *tracking.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil {
		return nil, errors.New("rsvpapi: nil tracking service")
	}
	cfg = cfg.withDefaults()

	ipKey := make([]byte, 32)
	if _, err := rand.Read(ipKey); err != nil {
		return nil, fmt.Errorf("rsvpapi: limiter key: %w", err)
	}

	h := &Handler{
		log:     log,
		cfg:     cfg,
		svc:     svc,
		limiter: NewKeyedRateLimiter(cfg.AccessCodeRate, cfg.AccessCodeWindow),
		ipKey:   ipKey,
		now:     func() time.Time { return time.Now().UTC() },
	}

	if cfg.AdminKeyHash != "" {
		v, err := adminkey.NewVerifier(cfg.AdminKeyHash)
		if err != nil {
			return nil, fmt.Errorf("RSVP_ADMIN_KEY_HASH: %w", err)
		}
		h.admin = v
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires RSVP routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/rsvp/tokens", h.handleTokenCreate)
	mux.HandleFunc("/rsvp/tokens/batch", h.handleTokenBatch)
	mux.HandleFunc("/rsvp/tokens/revoke", h.handleTokenRevoke)
	mux.HandleFunc("/rsvp/resolve", h.handleResolve)
	mux.HandleFunc("/rsvp/access-codes", h.handleAccessCodeCreate)
	mux.HandleFunc("/rsvp/access-codes/verify", h.handleAccessCodeVerify)
	mux.HandleFunc("/rsvp/integrity", h.handleIntegrity)
}

// AdminAuthorizer exposes the configured operator check (nil when unconfigured).
func (h *Handler) AdminAuthorizer() AdminAuthorizer {
	if h == nil {
		return nil
	}
	return h.admin
}

// ---- admin handlers ----

func (h *Handler) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	var req tokenCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if msg := validateGuest(req.guestRequest); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	g := req.toGuest()
	issued, rec, err := h.svc.Issue(r.Context(), g, rsvptoken.Options{ExpiresIn: strings.TrimSpace(req.ExpiresIn), Purpose: req.Purpose})
	if err != nil {
		h.writeIssueError(w, "rsvp.token.issue.fail", err)
		return
	}

	tokenType := rsvptoken.TokenTypeRSVP
	if g.SubeventID != nil {
		tokenType = rsvptoken.TokenTypeSubeventRSVP
	}
	h.metrics.TokenIssued(string(tokenType))
	h.emit(r.Context(), feedv1.TypeTokenIssued, feedv1.TokenIssuedPayload{
		TokenID:    issued.TokenID,
		GuestID:    rec.GuestID,
		EventID:    rec.EventID,
		SubeventID: rec.SubeventID,
		TokenType:  string(tokenType),
		ExpiresAt:  issued.ExpiresAt,
	})

	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     issued.Token,
		TokenID:   issued.TokenID,
		ExpiresAt: issued.ExpiresAt,
		URL:       rsvptoken.RSVPURL(issued.Token, h.cfg.PublicBaseURL),
	})
}

func (h *Handler) handleTokenBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	var req tokenBatchRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if len(req.Guests) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "guests is required")
		return
	}
	if len(req.Guests) > h.cfg.BatchMax {
		writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", fmt.Sprintf("at most %d guests per batch", h.cfg.BatchMax))
		return
	}

	guests := make([]rsvptoken.Guest, 0, len(req.Guests))
	for i, gr := range req.Guests {
		if gr.SubeventID != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("guest at index %d: subevent_id is not supported in batches", i))
			return
		}
		if msg := validateGuest(gr); msg != "" {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("guest at index %d: %s", i, msg))
			return
		}
		guests = append(guests, gr.toGuest())
	}

	items, err := h.svc.IssueBatch(r.Context(), guests, rsvptoken.Options{ExpiresIn: strings.TrimSpace(req.ExpiresIn), Purpose: req.Purpose})
	if err != nil {
		var be rsvptoken.BatchError
		if errors.As(err, &be) && !isServerError(be.Err) {
			writeError(w, http.StatusBadRequest, issueErrorCode(be.Err), fmt.Sprintf("guest at index %d: %v", be.Index, be.Err))
			return
		}
		h.writeIssueError(w, "rsvp.token.batch.fail", err)
		return
	}

	out := batchResponse{Items: make([]batchItemResponse, 0, len(items))}
	for i, it := range items {
		h.metrics.TokenIssued(string(rsvptoken.TokenTypeRSVP))
		h.emit(r.Context(), feedv1.TypeTokenIssued, feedv1.TokenIssuedPayload{
			TokenID:   it.TokenID,
			GuestID:   it.GuestID,
			EventID:   guests[i].EventID,
			TokenType: string(rsvptoken.TokenTypeRSVP),
			ExpiresAt: it.ExpiresAt,
			Batch:     true,
		})
		out.Items = append(out.Items, batchItemResponse{
			GuestID:    it.GuestID,
			GuestEmail: it.GuestEmail,
			GuestName:  it.GuestName,
			Token:      it.Token,
			TokenID:    it.TokenID,
			ExpiresAt:  it.ExpiresAt,
			URL:        rsvptoken.RSVPURL(it.Token, h.cfg.PublicBaseURL),
		})
	}

	h.log.Info("rsvp.token.batch", "count", len(out.Items))
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	var req tokenRevokeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	tokenID := strings.TrimSpace(req.TokenID)
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id is required")
		return
	}

	if err := h.svc.Revoke(r.Context(), tokenID); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "token not found")
			return
		}
		h.log.Error("rsvp.token.revoke.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("rsvp.token.revoke", "token_id", tokenID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAccessCodeCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	var req accessCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.GuestID <= 0 || req.EventID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "guest_id and event_id must be positive")
		return
	}

	code := h.svc.Manager().GenerateAccessCode(req.GuestID, req.EventID)
	writeJSON(w, http.StatusOK, accessCodeResponse{Code: code})
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	var req integrityRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Token == "" || strings.TrimSpace(req.ExpectedHash) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token and expected_hash are required")
		return
	}

	writeJSON(w, http.StatusOK, validResponse{Valid: rsvptoken.VerifyTokenIntegrity(req.Token, req.ExpectedHash)})
}

// ---- public handlers ----

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req resolveRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	res, err := h.svc.Resolve(ctx, strings.TrimSpace(req.Token))

	var verr rsvptoken.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		h.metrics.TokenValidated(string(verr.Code))
		h.emit(ctx, feedv1.TypeTokenResolved, feedv1.TokenResolvedPayload{Valid: false, Code: string(verr.Code)})

		status := statusForCode(verr.Code)
		if verr.Code == rsvptoken.CodeValidationError {
			h.log.Warn("rsvp.resolve.validation_error", "msg", verr.Msg, "remote", r.RemoteAddr)
		}
		writeError(w, status, string(verr.Code), verr.Msg)
		return
	default:
		h.log.Error("rsvp.resolve.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	p := res.Result.Payload
	usage := 0
	if res.Record != nil {
		usage = res.Record.UsageCount
	}

	h.metrics.TokenValidated(codeValid)
	h.emit(ctx, feedv1.TypeTokenResolved, feedv1.TokenResolvedPayload{
		Valid:      true,
		TokenID:    p.TokenID,
		GuestID:    p.GuestID,
		EventID:    p.EventID,
		UsageCount: usage,
	})

	writeJSON(w, http.StatusOK, resolveResponse{
		Valid:      true,
		Payload:    toPayloadResponse(p),
		UsageCount: usage,
	})
}

func (h *Handler) handleAccessCodeVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	key := h.limiterKey(clientIP(r, h.cfg.TrustProxy))

	// Limit before decoding so malformed floods count too.
	if ok, retryAfter := h.limiter.Allow(key, h.now()); !ok {
		h.metrics.AccessCodeLimited()
		h.log.Info("rsvp.access_code.rate_limited", "client", key[:16])
		// The body is not decoded yet, so the event carries no guest.
		h.emit(ctx, feedv1.TypeAccessCodeChecked, feedv1.AccessCodeCheckedPayload{RateLimited: true})
		writeRateLimited(w, retryAfter)
		return
	}

	var req accessCodeVerifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.GuestID <= 0 || req.EventID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "guest_id and event_id must be positive")
		return
	}

	valid := h.svc.Manager().ValidateAccessCode(strings.TrimSpace(req.Code), req.GuestID, req.EventID)

	h.metrics.AccessCodeChecked(valid)
	h.emit(ctx, feedv1.TypeAccessCodeChecked, feedv1.AccessCodeCheckedPayload{
		GuestID: req.GuestID,
		EventID: req.EventID,
		Valid:   valid,
	})

	writeJSON(w, http.StatusOK, validResponse{Valid: valid})
}

// ---- helpers ----

func validateGuest(g guestRequest) string {
	switch {
	case g.GuestID <= 0:
		return "guest_id must be positive"
	case g.EventID <= 0:
		return "event_id must be positive"
	case g.SubeventID != nil && *g.SubeventID <= 0:
		return "subevent_id must be positive"
	case strings.TrimSpace(g.GuestEmail) == "":
		return "guest_email is required"
	default:
		return ""
	}
}

func statusForCode(c rsvptoken.Code) int {
	switch c {
	case rsvptoken.CodeTokenExpired:
		return http.StatusGone
	case rsvptoken.CodeInvalidToken:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func isServerError(err error) bool {
	return !errors.Is(err, rsvptoken.ErrInvalidGuest) &&
		!errors.Is(err, rsvptoken.ErrInvalidExpiry) &&
		!errors.Is(err, tracking.ErrInvalidInput)
}

func issueErrorCode(err error) string {
	if errors.Is(err, rsvptoken.ErrInvalidExpiry) {
		return "invalid_expiry"
	}
	return "invalid_request"
}

func (h *Handler) writeIssueError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, rsvptoken.ErrInvalidExpiry):
		writeError(w, http.StatusBadRequest, "invalid_expiry", "expires_in must look like 30d, 12h, 15m or 45s")
	case errors.Is(err, rsvptoken.ErrInvalidGuest), errors.Is(err, tracking.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid guest")
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// emit publishes a feed event. Feed failures never fail the request.
func (h *Handler) emit(ctx context.Context, typ string, payload any) {
	if h.feed == nil {
		return
	}
	if err := realtime.Emit(ctx, h.feed, typ, payload); err != nil {
		h.log.Warn("rsvp.feed.publish.fail", "type", typ, "err", err)
	}
}
