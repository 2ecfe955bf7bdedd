package http

import (
	"encoding/json"
	"net/http"

	"github.com/tagcustody/tagcustody/internal/custody/service"
	"github.com/tagcustody/tagcustody/pkg/custodysdk"
	"github.com/tagcustody/tagcustody/pkg/httpx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

// AuthHandler exposes the mutual-authentication handshake to the relay.
type AuthHandler struct {
	AuthService *service.AuthService
}

// HandleBegin handles POST /v1/auth/begin
//
//	@Summary		Begin mutual authentication
//	@Description	Verifies ownership, leases the token and opens a protocol session.
//	@Description	Returns the first native authenticate command to forward to the card.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.AuthBeginRequest		true	"token, user and key slot"
//	@Success		200		{object}	custodysdk.AuthBeginResponse	"session handle and first frame"
//	@Failure		403		{object}	custodysdk.APIError				"caller is not the current owner"
//	@Failure		404		{object}	custodysdk.APIError				"token not found"
//	@Failure		409		{object}	custodysdk.APIError				"token leased by another authentication"
//	@Router			/v1/auth/begin [post].
func (h *AuthHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.AuthBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.TokenID == "" || req.UserID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("token_id and user_id are required").WriteError(w)
		return
	}

	result, err := h.AuthService.Begin(ctx, req.TokenID, req.UserID, req.KeyNo, req.AllowUnowned)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.AuthBeginResponse{
		SessionID: result.SessionID,
		Frame:     result.Frame,
		ExpiresAt: result.ExpiresAt,
	})
}

// HandleContinue handles POST /v1/auth/continue
//
//	@Summary		Continue mutual authentication
//	@Description	Advances the handshake with the card's raw response. Any protocol
//	@Description	violation destroys the session; the relay must begin again.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.AuthContinueRequest	true	"session and card response"
//	@Success		200		{object}	custodysdk.AuthContinueResponse	"next frame or authenticated"
//	@Failure		404		{object}	custodysdk.APIError				"session not found"
//	@Failure		410		{object}	custodysdk.APIError				"session expired"
//	@Failure		422		{object}	custodysdk.APIError				"protocol violation or weak key"
//	@Router			/v1/auth/continue [post].
func (h *AuthHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.AuthContinueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionID == "" || len(req.CardResponse) == 0 {
		custodysdk.ErrInvalidRequest.WithDescription("session_id and card_response are required").WriteError(w)
		return
	}

	result, err := h.AuthService.Continue(ctx, req.SessionID, req.CardResponse)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.AuthContinueResponse{
		Phase:         string(result.Phase),
		Frame:         result.Frame,
		Authenticated: result.Authenticated,
	})
}
