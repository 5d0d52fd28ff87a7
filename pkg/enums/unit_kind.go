package enums

import "fmt"

// UnitKind selects which of a product's units a price or quantity refers to.
type UnitKind string

const (
	UnitKindMain UnitKind = "main"
	UnitKindSub  UnitKind = "sub"
)

func (u UnitKind) String() string {
	return string(u)
}

func (u UnitKind) IsValid() bool {
	return u == UnitKindMain || u == UnitKindSub
}

// ParseUnitKind converts raw input into a UnitKind.
func ParseUnitKind(value string) (UnitKind, error) {
	switch UnitKind(value) {
	case UnitKindMain, UnitKindSub:
		return UnitKind(value), nil
	}
	return "", fmt.Errorf("invalid unit kind %q", value)
}
