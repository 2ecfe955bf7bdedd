package http

import (
	"encoding/json"
	"net/http"

	"github.com/tagcustody/tagcustody/internal/custody/service"
	"github.com/tagcustody/tagcustody/pkg/custodysdk"
	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/httpx"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

// CardHandler builds secure-messaging frames for authenticated sessions.
type CardHandler struct {
	CardService *service.CardService
}

// HandleWrite handles POST /v1/card/write
//
//	@Summary		Build WriteData frames
//	@Description	Builds the ordered WriteData frame sequence for the session's derived key.
//	@Description	Mode is one of plain, maced, enciphered.
//	@Tags			Card
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.CardWriteRequest		true	"file, offset, data and mode"
//	@Success		200		{object}	custodysdk.CardFramesResponse	"ordered frames"
//	@Failure		404		{object}	custodysdk.APIError				"session not found"
//	@Failure		410		{object}	custodysdk.APIError				"session expired"
//	@Failure		422		{object}	custodysdk.APIError				"session not authenticated"
//	@Router			/v1/card/write [post].
func (h *CardHandler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.CardWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("session_id is required").WriteError(w)
		return
	}

	mode, err := desfire.ParseCommMode(req.Mode)
	if err != nil {
		custodysdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	frames, err := h.CardService.WriteFrames(ctx, req.SessionID, req.FileNo, req.Offset, req.Data, mode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.CardFramesResponse{Frames: frames})
}

// HandleChangeKey handles POST /v1/card/change-key
//
//	@Summary		Build ChangeKey frames
//	@Description	Mints a replacement card key server-side and builds the ChangeKey
//	@Description	cryptogram frames. Only the key fingerprint is returned.
//	@Tags			Card
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.ChangeKeyRequest		true	"session, key slot and version"
//	@Success		200		{object}	custodysdk.ChangeKeyResponse	"frames and new key fingerprint"
//	@Failure		404		{object}	custodysdk.APIError				"session not found"
//	@Failure		422		{object}	custodysdk.APIError				"session not authenticated"
//	@Router			/v1/card/change-key [post].
func (h *CardHandler) HandleChangeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.ChangeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("session_id is required").WriteError(w)
		return
	}

	frames, newKeyHash, err := h.CardService.ChangeKey(ctx, req.SessionID, req.KeyNo, req.KeyVersion)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.ChangeKeyResponse{
		Frames:     frames,
		NewKeyHash: newKeyHash,
	})
}

// HandleRead handles POST /v1/card/read
//
//	@Summary		Build ReadData frames
//	@Description	Builds a ReadData request for write verification plus the empty
//	@Description	continuation frame repeated while the card answers more-frames.
//	@Tags			Card
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		custodysdk.CardReadRequest	true	"file, offset and length"
//	@Success		200		{object}	custodysdk.CardReadResponse	"read and continuation frames"
//	@Failure		404		{object}	custodysdk.APIError			"session not found"
//	@Router			/v1/card/read [post].
func (h *CardHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req custodysdk.CardReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		custodysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.SessionID == "" {
		custodysdk.ErrInvalidRequest.WithDescription("session_id is required").WriteError(w)
		return
	}

	first, continuation, err := h.CardService.ReadFrames(ctx, req.SessionID, req.FileNo, req.Offset, req.Length)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, custodysdk.CardReadResponse{
		Frame:             first,
		ContinuationFrame: continuation,
	})
}
