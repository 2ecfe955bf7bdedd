package http

import (
	"encoding/json"
	"net/http"

	"github.com/tagcustody/tagcustody/internal/custody/service"
	"github.com/tagcustody/tagcustody/pkg/custodysdk"
	"github.com/tagcustody/tagcustody/pkg/httpx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

// StagedHandler exposes the two-phase stage/commit/rollback protocol.
type StagedHandler struct {
	StagedService *service.StagedTransferService
}

// HandleStage handles POST /v1/transfers/stage
//
//	@Summary		Stage a transfer
//	@Description	Validates and snapshots a transfer on an authenticated session that
//	@Description	already minted a replacement key. The token is not touched.
//	@Tags			Transfers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.StageTransferRequest		true	"session and receiver"
//	@Success		200		{object}	custodysdk.StageTransferResponse	"staged record handle"
//	@Failure		403		{object}	custodysdk.APIError					"caller is not the current owner"
//	@Failure		409		{object}	custodysdk.APIError					"no replacement key or already staged"
//	@Router			/v1/transfers/stage [post].
func (h *StagedHandler) HandleStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.StageTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionID == "" || req.ToUID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("session_id and to_uid are required").WriteError(w)
		return
	}

	staged, err := h.StagedService.Stage(ctx, req.SessionID, req.ToUID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.StageTransferResponse{
		StagedID:  staged.ID,
		TokenID:   staged.TokenID,
		ExpiresAt: staged.ExpiresAt,
	})
}

// HandleCommit handles POST /v1/transfers/commit
//
//	@Summary		Commit a staged transfer
//	@Description	Applies the staged post-image to the token after the relay confirmed
//	@Description	the physical write succeeded.
//	@Tags			Transfers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.CommitTransferRequest	true	"staged record id"
//	@Success		200		{object}	custodysdk.TokenResponse			"token after the transfer"
//	@Failure		404		{object}	custodysdk.APIError					"staged record not found"
//	@Failure		409		{object}	custodysdk.APIError					"not staged or token moved"
//	@Failure		410		{object}	custodysdk.APIError					"staged deadline elapsed"
//	@Router			/v1/transfers/commit [post].
func (h *StagedHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.CommitTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.StagedID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("staged_id is required").WriteError(w)
		return
	}

	token, err := h.StagedService.Commit(ctx, req.StagedID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(token))
}

// HandleRollback handles POST /v1/transfers/rollback
//
//	@Summary		Roll back a staged transfer
//	@Description	Discards a staged transfer after a failed physical write. The session
//	@Description	returns to PENDING; the token was never touched.
//	@Tags			Transfers
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	custodysdk.RollbackTransferRequest	true	"staged record id and reason"
//	@Success		204		"rolled back"
//	@Failure		404		{object}	custodysdk.APIError	"staged record not found"
//	@Failure		409		{object}	custodysdk.APIError	"record is not staged"
//	@Router			/v1/transfers/rollback [post].
func (h *StagedHandler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.RollbackTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.StagedID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("staged_id is required").WriteError(w)
		return
	}

	if err := h.StagedService.Rollback(ctx, req.StagedID, req.Reason); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
