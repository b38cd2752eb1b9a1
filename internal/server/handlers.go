package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/vaultum/keygate/internal/authrequest"
	"github.com/vaultum/keygate/internal/orgauth"
	"github.com/vaultum/keygate/internal/storage/postgres"
)

// CreateAuthRequest is the JSON body for recording a device login request.
type CreateAuthRequest struct {
	UserID             string `json:"user_id"`
	Email              string `json:"email"`
	Name               string `json:"name,omitempty"`
	OrganizationUserID string `json:"organization_user_id"`
	DeviceType         int    `json:"device_type"`
	DeviceIdentifier   string `json:"device_identifier,omitempty"`
}

// UpdateAuthRequest is the JSON body for a single admin decision.
type UpdateAuthRequest struct {
	Approved bool   `json:"approved"`
	Key      string `json:"key,omitempty"` // Encrypted user key. Required when approving.
}

// UpdateManyAuthRequests is the JSON body for a batch of admin decisions.
type UpdateManyAuthRequests struct {
	Requests []BatchDecision `json:"requests"`
}

// BatchDecision is one decision inside a batch update.
type BatchDecision struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
	Key      string `json:"key,omitempty"`
}

// AuthRequestResponse is the JSON representation of an auth request.
type AuthRequestResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	OrganizationID     string     `json:"organization_id,omitempty"`
	OrganizationUserID string     `json:"organization_user_id"`
	Device             string     `json:"device"`
	RequestIPAddress   string     `json:"request_ip_address"`
	Approved           *bool      `json:"approved,omitempty"`
	CreationDate       time.Time  `json:"creation_date"`
	ResponseDate       *time.Time `json:"response_date,omitempty"`
}

func toAuthRequestResponse(r *authrequest.AuthRequest) AuthRequestResponse {
	resp := AuthRequestResponse{
		ID:                 r.ID.String(),
		UserID:             r.UserID.String(),
		OrganizationUserID: r.OrganizationUserID.String(),
		Device:             r.DeviceLabel(),
		RequestIPAddress:   r.RequestIPAddress,
		Approved:           r.Approved,
		CreationDate:       r.CreationDate,
		ResponseDate:       r.ResponseDate,
	}
	if r.OrganizationID != nil {
		resp.OrganizationID = r.OrganizationID.String()
	}
	return resp
}

func (g *Gateway) handleCreate(c *okapi.Context) error {
	if err := g.allow(c); err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		return c.AbortBadRequest("invalid organization ID")
	}

	var req CreateAuthRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.AbortBadRequest("user_id must be a UUID")
	}
	orgUserID, err := uuid.Parse(req.OrganizationUserID)
	if err != nil {
		return c.AbortBadRequest("organization_user_id must be a UUID")
	}
	if req.Email == "" {
		return c.AbortBadRequest("email is required")
	}

	ctx := c.Context()
	if err := g.store.Users().Upsert(ctx, orgID, &orgauth.User{
		ID:    userID,
		Email: req.Email,
		Name:  req.Name,
	}); err != nil {
		g.logger.ErrorContext(ctx, "user upsert failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("recording login request failed")
	}

	ar := &authrequest.AuthRequest{
		ID:                      uuid.New(),
		UserID:                  userID,
		OrganizationID:          &orgID,
		OrganizationUserID:      orgUserID,
		RequestDeviceType:       authrequest.DeviceType(req.DeviceType),
		RequestDeviceIdentifier: req.DeviceIdentifier,
		RequestIPAddress:        clientIP(c.Request()),
		CreationDate:            time.Now().UTC(),
	}
	if err := g.store.AuthRequests().Create(ctx, ar); err != nil {
		g.logger.ErrorContext(ctx, "auth request create failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("recording login request failed")
	}

	g.logger.InfoContext(ctx, "auth request recorded",
		slog.String("auth_request_id", ar.ID.String()),
		slog.String("organization_id", orgID.String()),
		slog.String("device", ar.DeviceLabel()),
	)
	return c.JSON(http.StatusCreated, toAuthRequestResponse(ar))
}

func (g *Gateway) handleListPending(c *okapi.Context) error {
	if err := g.allow(c); err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		return c.AbortBadRequest("invalid organization ID")
	}

	pending, err := g.store.AuthRequests().ListPending(c.Context(), orgID)
	if err != nil {
		return c.AbortInternalServerError("listing login requests failed")
	}

	resp := make([]AuthRequestResponse, len(pending))
	for i, r := range pending {
		resp[i] = toAuthRequestResponse(r)
	}
	return c.OK(resp)
}

func (g *Gateway) handleGet(c *okapi.Context) error {
	if err := g.allow(c); err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		return c.AbortBadRequest("invalid organization ID")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid auth request ID")
	}

	ar, err := g.store.AuthRequests().Get(c.Context(), orgID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "auth request not found"})
		}
		return c.AbortInternalServerError("getting login request failed")
	}
	return c.OK(toAuthRequestResponse(ar))
}

func (g *Gateway) handleUpdate(c *okapi.Context) error {
	if err := g.allow(c); err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		return c.AbortBadRequest("invalid organization ID")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid auth request ID")
	}

	var req UpdateAuthRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	err = g.command.Update(c.Context(), orgID, authrequest.Update{
		ID:       id,
		Approved: req.Approved,
		Key:      req.Key,
	})
	if err != nil {
		return decisionError(c, err)
	}

	status := "denied"
	if req.Approved {
		status = "approved"
	}
	return c.OK(okapi.M{"status": status})
}

func (g *Gateway) handleUpdateMany(c *okapi.Context) error {
	if err := g.allow(c); err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		return c.AbortBadRequest("invalid organization ID")
	}

	var req UpdateManyAuthRequests
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if len(req.Requests) == 0 {
		return c.AbortBadRequest("requests must not be empty")
	}

	updates := make([]authrequest.Update, len(req.Requests))
	for i, d := range req.Requests {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return c.AbortBadRequest("requests[].id must be a UUID")
		}
		updates[i] = authrequest.Update{ID: id, Approved: d.Approved, Key: d.Key}
	}

	if err := g.command.UpdateMany(c.Context(), orgID, updates); err != nil {
		g.logger.ErrorContext(c.Context(), "batch decision failed",
			slog.String("organization_id", orgID.String()),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("processing decisions failed")
	}
	return c.OK(okapi.M{"status": "processed"})
}

// HealthResponse is the JSON response for the health probes.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness verifies the store is reachable and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if _, err := g.store.AuthRequests().ListPending(c.Context(), uuid.Nil); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: "degraded"})
	}
	return c.OK(&HealthResponse{Status: "ok"})
}

// --- Helpers ---

// allow applies the per-key rate limit.
func (g *Gateway) allow(c *okapi.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Allow(c.GetString("apiKey")); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}
	return nil
}

// decisionError maps processing errors to HTTP responses.
func decisionError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, authrequest.ErrMissingKey):
		return c.AbortBadRequest("key is required to approve")
	case errors.Is(err, authrequest.ErrCannotBeProcessed):
		return c.JSON(http.StatusConflict, okapi.M{"error": "auth request cannot be processed"})
	default:
		return c.AbortInternalServerError("processing decision failed")
	}
}

// clientIP extracts the originating IP, honoring X-Forwarded-For from the
// reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
