package custodysdk

import "time"

// RegisterTokenRequest provisions a freshly issued card. Key is the card's
// current master key; the backend seals it at rest and returns only its
// fingerprint.
type RegisterTokenRequest struct {
	TokenID  string `json:"token_id"`
	OwnerUID string `json:"owner_uid"`
	Key      []byte `json:"key"`
	TagUID   string `json:"tag_uid,omitempty"`
}

// AuthBeginRequest opens a mutual-authentication session.
type AuthBeginRequest struct {
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
	KeyNo   byte   `json:"key_no"`

	// AllowUnowned permits authenticating against an unregistered owner
	// slot (first provisioning).
	AllowUnowned bool `json:"allow_unowned,omitempty"`
}

// AuthBeginResponse carries the session handle and the first authenticate
// command for the card.
type AuthBeginResponse struct {
	SessionID string    `json:"session_id"`
	Frame     []byte    `json:"frame"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthContinueRequest advances the handshake with the card's raw response
// (status word included).
type AuthContinueRequest struct {
	SessionID    string `json:"session_id"`
	CardResponse []byte `json:"card_response"`
}

// AuthContinueResponse is one handshake round. Frame is empty once
// Authenticated is true.
type AuthContinueResponse struct {
	Phase         string `json:"phase"`
	Frame         []byte `json:"frame,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// CardWriteRequest asks for the ordered WriteData frame sequence. Mode is
// one of "plain", "maced", "enciphered".
type CardWriteRequest struct {
	SessionID string `json:"session_id"`
	FileNo    byte   `json:"file_no"`
	Offset    int    `json:"offset"`
	Data      []byte `json:"data"`
	Mode      string `json:"mode"`
}

// CardFramesResponse is an ordered frame sequence: send each frame, stop on
// any status other than "more frames".
type CardFramesResponse struct {
	Frames [][]byte `json:"frames"`
}

// ChangeKeyRequest asks the backend to mint a replacement card key and build
// the ChangeKey cryptogram. The plaintext key stays server-side.
type ChangeKeyRequest struct {
	SessionID  string `json:"session_id"`
	KeyNo      byte   `json:"key_no"`
	KeyVersion byte   `json:"key_version"`
}

// ChangeKeyResponse returns the frames plus the fingerprint of the minted
// key, which later appears as the token's key_hash after commit.
type ChangeKeyResponse struct {
	Frames     [][]byte `json:"frames"`
	NewKeyHash string   `json:"new_key_hash"`
}

// CardReadRequest asks for a ReadData request frame for write verification.
type CardReadRequest struct {
	SessionID string `json:"session_id"`
	FileNo    byte   `json:"file_no"`
	Offset    int    `json:"offset"`
	Length    int    `json:"length"`
}

// CardReadResponse carries the initial read frame and the empty continuation
// frame repeated while the card answers "more frames".
type CardReadResponse struct {
	Frame             []byte `json:"frame"`
	ContinuationFrame []byte `json:"continuation_frame"`
}

// InitiateTransferRequest opens a legacy pending transfer.
type InitiateTransferRequest struct {
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
}

// InitiateTransferResponse reports the opened record.
type InitiateTransferResponse struct {
	TokenID   string    `json:"token_id"`
	NNext     int64     `json:"n_next"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FinalizeTransferRequest completes a legacy transfer in the caller's favor.
type FinalizeTransferRequest struct {
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
	TagUID  string `json:"tag_uid,omitempty"`
}

// StageTransferRequest prepares a two-phase transfer on an authenticated
// session that already minted a replacement key.
type StageTransferRequest struct {
	SessionID string `json:"session_id"`
	ToUID     string `json:"to_uid"`
}

// StageTransferResponse is the staged record handle for commit/rollback.
type StageTransferResponse struct {
	StagedID  string    `json:"staged_id"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CommitTransferRequest applies a staged transfer after the physical write
// succeeded.
type CommitTransferRequest struct {
	StagedID string `json:"staged_id"`
}

// RollbackTransferRequest discards a staged transfer after a failed write.
type RollbackTransferRequest struct {
	StagedID string `json:"staged_id"`
	Reason   string `json:"reason"`
}

// TokenResponse is the public view of a token. Key material is reduced to
// its fingerprint.
type TokenResponse struct {
	TokenID        string   `json:"token_id"`
	CurrentOwner   string   `json:"current_owner"`
	PreviousOwners []string `json:"previous_owners"`
	Counter        int64    `json:"counter"`
	Status         string   `json:"status"`
	KeyHash        string   `json:"key_hash"`
	TagUID         string   `json:"tag_uid,omitempty"`
}

// HealthChecks reports dependency status on the readiness probe.
type HealthChecks struct {
	Database string `json:"database"`
}

// HealthResponse is returned by the livez/readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
