package enums

import "fmt"

// OfferStatus maps to offers.status_id.
type OfferStatus string

const (
	OfferStatusDraft        OfferStatus = "DRAFT"
	OfferStatusStaging      OfferStatus = "STG"
	OfferStatusStagingFail  OfferStatus = "STG_FAIL"
	OfferStatusStagingPass  OfferStatus = "STG_VALDN_PASS"
	OfferStatusApproved     OfferStatus = "APV_APRVD"
	OfferStatusProdPending  OfferStatus = "PROD_PEND"
	OfferStatusProd         OfferStatus = "PROD"
	OfferStatusProdFail     OfferStatus = "PROD_FAIL"
	OfferStatusProdErrPub   OfferStatus = "PROD_ERR_PUB"
	OfferStatusProdRollback OfferStatus = "PROD_RB_FAIL"
)

var validOfferStatuses = []OfferStatus{
	OfferStatusDraft,
	OfferStatusStaging,
	OfferStatusStagingFail,
	OfferStatusStagingPass,
	OfferStatusApproved,
	OfferStatusProdPending,
	OfferStatusProd,
	OfferStatusProdFail,
	OfferStatusProdErrPub,
	OfferStatusProdRollback,
}

// String implements fmt.Stringer.
func (s OfferStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known offer status.
func (s OfferStatus) IsValid() bool {
	for _, candidate := range validOfferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOfferStatus converts raw input into OfferStatus.
func ParseOfferStatus(value string) (OfferStatus, error) {
	for _, candidate := range validOfferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer status %q", value)
}
