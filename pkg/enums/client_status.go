package enums

import "fmt"

// ClientStatus reflects the outcome of the most recent visit to a client.
type ClientStatus string

const (
	ClientStatusPending    ClientStatus = "pending"
	ClientStatusPositivado ClientStatus = "positivado"
	ClientStatusNegativado ClientStatus = "negativado"
)

var validClientStatuses = []ClientStatus{
	ClientStatusPending,
	ClientStatusPositivado,
	ClientStatusNegativado,
}

// String implements fmt.Stringer.
func (c ClientStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClientStatus.
func (c ClientStatus) IsValid() bool {
	for _, candidate := range validClientStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseClientStatus converts raw input into a ClientStatus.
func ParseClientStatus(value string) (ClientStatus, error) {
	for _, candidate := range validClientStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client status %q", value)
}
