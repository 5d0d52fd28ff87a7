package enums

import "fmt"

// SyncStatus tracks an order's transmission state.
//
//	pending_sync -> transmitted (remote accepted the batch)
//	pending_sync -> error       (remote or local failure)
//	error        -> pending_sync (retry)
//	transmitted  -> synced       (server acknowledgement)
//	transmitted  -> deleted      (row removed)
type SyncStatus string

const (
	SyncStatusPendingSync SyncStatus = "pending_sync"
	SyncStatusTransmitted SyncStatus = "transmitted"
	SyncStatusSynced      SyncStatus = "synced"
	SyncStatusError       SyncStatus = "error"
)

var validSyncStatuses = []SyncStatus{
	SyncStatusPendingSync,
	SyncStatusTransmitted,
	SyncStatusSynced,
	SyncStatusError,
}

// String implements fmt.Stringer.
func (s SyncStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SyncStatus.
func (s SyncStatus) IsValid() bool {
	for _, candidate := range validSyncStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	switch s {
	case SyncStatusPendingSync:
		return next == SyncStatusTransmitted || next == SyncStatusError
	case SyncStatusError:
		return next == SyncStatusPendingSync
	case SyncStatusTransmitted:
		return next == SyncStatusSynced
	}
	return false
}

// ParseSyncStatus converts raw input into a SyncStatus.
func ParseSyncStatus(value string) (SyncStatus, error) {
	for _, candidate := range validSyncStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync status %q", value)
}
