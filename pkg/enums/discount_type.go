package enums

import "fmt"

// DiscountType maps to offers.discount_type.
type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFixed   DiscountType = "fixed"
)

// String implements fmt.Stringer.
func (d DiscountType) String() string {
	return string(d)
}

// ParseDiscountType converts raw input into DiscountType.
func ParseDiscountType(value string) (DiscountType, error) {
	switch DiscountType(value) {
	case DiscountTypePercent, DiscountTypeFixed:
		return DiscountType(value), nil
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}
