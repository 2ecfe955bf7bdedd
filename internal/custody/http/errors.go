package http

import (
	"errors"
	"net/http"

	"github.com/tagcustody/tagcustody/internal/custody/service"
	"github.com/tagcustody/tagcustody/internal/custody/store"
	"github.com/tagcustody/tagcustody/pkg/custodysdk"
	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/slogx"
)

// writeServiceError maps service sentinels onto the API error envelope.
// Anything unmapped is an internal error and gets logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrTokenNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrStagedNotFound),
		errors.Is(err, service.ErrNoPendingTransfer),
		errors.Is(err, store.ErrNotFound):
		custodysdk.ErrNotFound.WithDescription(err.Error()).WriteError(w)

	case errors.Is(err, service.ErrNotCurrentOwner),
		errors.Is(err, service.ErrReceiverMismatch),
		errors.Is(err, service.ErrTagMismatch),
		errors.Is(err, service.ErrHistoryViolation):
		custodysdk.ErrPermissionDenied.WithDescription(err.Error()).WriteError(w)

	case errors.Is(err, service.ErrTransferConflict),
		errors.Is(err, service.ErrTokenLeased),
		errors.Is(err, service.ErrStaleTransfer),
		errors.Is(err, service.ErrNotStaged),
		errors.Is(err, service.ErrSessionNotStaged),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrNoReplacementKey),
		errors.Is(err, store.ErrAlreadyExists):
		custodysdk.ErrConflict.WithDescription(err.Error()).WriteError(w)

	case errors.Is(err, service.ErrSessionExpired),
		errors.Is(err, service.ErrTransferExpired):
		custodysdk.ErrExpired.WithDescription(err.Error()).WriteError(w)

	case errors.Is(err, desfire.ErrWeakKey):
		custodysdk.ErrWeakKey.WriteError(w)

	case errors.Is(err, service.ErrProtocolViolation),
		errors.Is(err, service.ErrNotAuthenticated),
		errors.Is(err, desfire.ErrBadPadding):
		custodysdk.ErrProtocolViolation.WithDescription(err.Error()).WriteError(w)

	default:
		slogx.FromContext(r.Context()).Error("internal error", "err", err, "path", r.URL.Path)
		custodysdk.ErrServerError.WriteError(w)
	}
}
