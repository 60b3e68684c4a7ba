package publish

// Step names one saga step. Values double as metric labels and as the
// suffix of idempotency keys.
type Step string

const (
	StepDraftRead              Step = "draft_read"
	StepCouponCreate           Step = "coupon_create"
	StepUpgradeCouponCreate    Step = "upgrade_coupon_create"
	StepConfigWrite            Step = "config_write"
	StepEdgeInvalidate         Step = "edge_invalidate"
	StepPropagationValidate    Step = "propagation_validate"
	StepContentPublish         Step = "content_publish"
	StepContentCacheInvalidate Step = "content_cache_invalidate"
	StepPersist                Step = "persist"

	stepCompensate Step = "compensate"
)

// Phase groups steps so a campaign can advance all items one phase at a time.
type Phase string

const (
	PhasePrepare   Phase = "prepare"
	PhaseConfigure Phase = "configure"
	PhaseRelease   Phase = "release"
)
