package fetch

import (
	"strings"

	apperrors "github.com/grabfrom/core/internal/errors"
)

// Error kinds reported alongside a terminal fetch failure. The UI groups
// failures by these.
const (
	ErrKindNetwork     = "network"
	ErrKindPermission  = "permission"
	ErrKindUnsupported = "unsupported"
	ErrKindDiskFull    = "disk_full"
	ErrKindProcessing  = "processing"
	ErrKindUnknown     = "unknown"
)

// FetchFailed builds the classified error a worker records on the task.
func FetchFailed(kind, detail string) *apperrors.AppError {
	return apperrors.FetchError(detail).WithDetails(map[string]any{"kind": kind})
}

// Kind extracts the error kind from a classified fetch error, or unknown.
func Kind(err error) string {
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Details == nil {
		return ErrKindUnknown
	}
	if kind, ok := appErr.Details["kind"].(string); ok {
		return kind
	}
	return ErrKindUnknown
}

// classifyRunError maps a yt-dlp run failure onto the error taxonomy by
// inspecting the message, the only signal the binary gives us.
func classifyRunError(err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "unsupported url", "no video formats", "requested format is not available", "is not a valid url"):
		return FetchFailed(ErrKindUnsupported, err.Error())
	case containsAny(msg, "http error 403", "http error 401", "sign in to confirm", "private video", "members-only", "permission denied"):
		return FetchFailed(ErrKindPermission, err.Error())
	case containsAny(msg, "no space left on device", "disk full", "file too large"):
		return FetchFailed(ErrKindDiskFull, err.Error())
	case containsAny(msg, "unable to download", "connection", "timed out", "timeout", "temporary failure", "network", "eof", "reset by peer", "http error 5"):
		return FetchFailed(ErrKindNetwork, err.Error())
	default:
		return FetchFailed(ErrKindUnknown, err.Error())
	}
}

// classifyProbeError maps a metadata probe failure onto the resolver side
// of the taxonomy.
func classifyProbeError(err error) error {
	msg := strings.ToLower(err.Error())
	if containsAny(msg, "unsupported url", "is not a valid url", "no video formats") {
		return apperrors.UnsupportedURL(err.Error())
	}
	return apperrors.ResolverError(err.Error())
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
