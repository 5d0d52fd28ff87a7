package remote

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/types"
)

// ErrSessionRejected marks a 401/403 from the server.
var ErrSessionRejected = stdErrors.New("session rejected by remote service")

// IsAuthFailure reports whether err came from the server refusing the credential.
func IsAuthFailure(err error) bool {
	return stdErrors.Is(err, ErrSessionRejected)
}

// IsCanceled reports whether the call was abandoned by the caller.
func IsCanceled(err error) bool {
	return stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded)
}

func unreachable(err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeRemoteUnreachable, err, op)
}

// statusError maps a non-2xx response to a typed error. body is the
// (possibly truncated) response payload.
func statusError(op string, status int, body []byte) error {
	details := map[string]any{"status": status}

	var env types.ErrorEnvelope
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		details["remote_code"] = env.Error.Code
		msg = env.Error.Message
		if env.Error.RequestID != "" {
			details["request_id"] = env.Error.RequestID
		}
	}
	if msg != "" {
		details["message"] = msg
	}

	cause := fmt.Errorf("status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cause = fmt.Errorf("%w: status %d", ErrSessionRejected, status)
	case status >= http.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeRemoteRejected, cause, op+" failed on server").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeRemoteRejected, cause, op+" rejected").WithDetails(details)
}
