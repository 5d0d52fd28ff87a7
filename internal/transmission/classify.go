package transmission

import (
	"github.com/angelmondragon/fieldsync/internal/remote"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

// ReasonKind groups failures by what the rep can do about them.
type ReasonKind string

const (
	ReasonSessionExpired ReasonKind = "session_expired"
	ReasonOffline        ReasonKind = "offline"
	ReasonNetwork        ReasonKind = "network"
	ReasonServerRejected ReasonKind = "server_rejected"
	ReasonPrecondition   ReasonKind = "precondition"
	ReasonStorage        ReasonKind = "storage"
	ReasonUnknown        ReasonKind = "unknown"
)

// Reason is a user-facing explanation of a failure.
type Reason struct {
	Kind    ReasonKind
	Message string
}

// ClassifyError maps an error to the message shown next to a failed order.
func ClassifyError(err error) Reason {
	if err == nil {
		return Reason{}
	}
	if remote.IsAuthFailure(err) {
		return Reason{Kind: ReasonSessionExpired, Message: "Session expired. Sign in again and retry."}
	}
	if remote.IsCanceled(err) {
		return Reason{Kind: ReasonNetwork, Message: "Transmission interrupted; the server may not have received the orders. Retry to resend."}
	}

	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodePreconditionFailed:
		if precondition(err) == "session_expired" {
			return Reason{Kind: ReasonSessionExpired, Message: "Session expired. Sign in again and retry."}
		}
		if precondition(err) == "online" {
			return Reason{Kind: ReasonOffline, Message: "No connection. Orders stay saved on the device."}
		}
		return Reason{Kind: ReasonPrecondition, Message: pkgerrors.As(err).Message()}
	case pkgerrors.CodeRemoteUnreachable:
		return Reason{Kind: ReasonNetwork, Message: "Could not reach the server. Check the connection and retry."}
	case pkgerrors.CodeRemoteRejected:
		return Reason{Kind: ReasonServerRejected, Message: "The server rejected the orders: " + err.Error()}
	case pkgerrors.CodeStorageUnavailable:
		return Reason{Kind: ReasonStorage, Message: "Local storage is unavailable."}
	}
	return Reason{Kind: ReasonUnknown, Message: err.Error()}
}

func precondition(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	name, _ := details["precondition"].(string)
	return name
}
