package enums

import (
	"fmt"
	"strconv"
)

// OfferType identifies the publishable offer variant (offers.offer_type_id).
type OfferType int

const (
	OfferTypeAcquisition OfferType = 1
	OfferTypeRetention   OfferType = 2
	OfferTypeExtension   OfferType = 3
)

var offerTypeNames = map[OfferType]string{
	OfferTypeAcquisition: "acquisition",
	OfferTypeRetention:   "retention",
	OfferTypeExtension:   "extension",
}

// String implements fmt.Stringer.
func (t OfferType) String() string {
	if name, ok := offerTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether the value is a known offer variant.
func (t OfferType) IsValid() bool {
	_, ok := offerTypeNames[t]
	return ok
}

// Campaignable reports whether the variant can be linked to a campaign.
func (t OfferType) Campaignable() bool {
	return t == OfferTypeAcquisition || t == OfferTypeRetention
}

// ParseOfferType converts the offerTypeId query value into OfferType.
func ParseOfferType(value string) (OfferType, error) {
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid offer type %q", value)
	}
	t := OfferType(id)
	if !t.IsValid() {
		return 0, fmt.Errorf("invalid offer type %q", value)
	}
	return t, nil
}
