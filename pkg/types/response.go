package types

// RequestIDHeader carries the per-request correlation id. The backend echoes
// it on every response and repeats it in error envelopes, where the device
// client keeps it in the error details for its own logs.
const RequestIDHeader = "X-FS-Request-ID"

// SuccessEnvelope wraps every 2xx body the backend returns, including the
// reference data sync payloads decoded by the device client.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a typed error. Code is one of the
// pkg/errors codes, so a device can tell REMOTE_REJECTED from
// VALIDATION_FAILED without parsing Message.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
