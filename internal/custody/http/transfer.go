package http

import (
	"encoding/json"
	"net/http"

	"github.com/tagcustody/tagcustody/internal/custody/domain"
	"github.com/tagcustody/tagcustody/internal/custody/service"
	"github.com/tagcustody/tagcustody/pkg/custodysdk"
	"github.com/tagcustody/tagcustody/pkg/httpx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

// TransferHandler exposes token registration and the legacy two-step
// transfer protocol.
type TransferHandler struct {
	TransferService *service.TransferService
}

// HandleRegister handles POST /v1/tokens
//
//	@Summary		Register a token
//	@Description	Provisions a freshly issued card. The supplied key is sealed at rest;
//	@Description	only its fingerprint is ever returned.
//	@Tags			Transfers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.RegisterTokenRequest	true	"token id, owner and card key"
//	@Success		201		{object}	custodysdk.TokenResponse		"registered token"
//	@Failure		409		{object}	custodysdk.APIError				"token id already registered"
//	@Router			/v1/tokens [post].
func (h *TransferHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.TokenID == "" || req.OwnerUID == "" || len(req.Key) == 0 {
		custodysdk.ErrInvalidRequest.WithDescription("token_id, owner_uid and key are required").WriteError(w)
		return
	}

	token, err := h.TransferService.Register(ctx, req.TokenID, req.OwnerUID, req.Key, req.TagUID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, tokenResponse(token))
}

// HandleInitiate handles POST /v1/transfers/initiate
//
//	@Summary		Initiate a transfer
//	@Description	Opens a pending transfer for the caller's token. A live pending
//	@Description	transfer from another owner is a conflict.
//	@Tags			Transfers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.InitiateTransferRequest	true	"token and caller"
//	@Success		200		{object}	custodysdk.InitiateTransferResponse	"opened record"
//	@Failure		403		{object}	custodysdk.APIError					"caller is not the current owner"
//	@Failure		409		{object}	custodysdk.APIError					"another transfer in progress"
//	@Router			/v1/transfers/initiate [post].
func (h *TransferHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.InitiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.TokenID == "" || req.UserID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("token_id and user_id are required").WriteError(w)
		return
	}

	pending, err := h.TransferService.Initiate(ctx, req.TokenID, req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.InitiateTransferResponse{
		TokenID:   pending.TokenID,
		NNext:     pending.NNext,
		ExpiresAt: pending.ExpiresAt,
	})
}

// HandleFinalize handles POST /v1/transfers/finalize
//
//	@Summary		Finalize a transfer
//	@Description	Completes a pending transfer in the caller's favor once the physical
//	@Description	handover happened. Binds the receiver if the record is unbound.
//	@Tags			Transfers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.FinalizeTransferRequest	true	"token, receiver, optional tag uid"
//	@Success		200		{object}	custodysdk.TokenResponse			"token after the transfer"
//	@Failure		403		{object}	custodysdk.APIError					"receiver mismatch or history violation"
//	@Failure		404		{object}	custodysdk.APIError					"no pending transfer"
//	@Failure		410		{object}	custodysdk.APIError					"transfer deadline elapsed"
//	@Router			/v1/transfers/finalize [post].
func (h *TransferHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.FinalizeTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.TokenID == "" || req.UserID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("token_id and user_id are required").WriteError(w)
		return
	}

	token, err := h.TransferService.Finalize(ctx, req.TokenID, req.UserID, req.TagUID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(token))
}

func tokenResponse(t domain.Token) custodysdk.TokenResponse {
	resp := custodysdk.TokenResponse{
		TokenID:        t.ID,
		CurrentOwner:   t.CurrentOwner,
		PreviousOwners: t.PreviousOwners,
		Counter:        t.Counter,
		Status:         string(t.Status),
		KeyHash:        t.KeyHash,
	}
	if t.TagUID != nil {
		resp.TagUID = *t.TagUID
	}
	return resp
}
