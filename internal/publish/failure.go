package publish

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// Kind classifies a saga failure by what it may have left behind.
type Kind string

const (
	// KindPreMutation means no remote system was changed by this attempt.
	KindPreMutation Kind = "pre_mutation"
	// KindRemoteMutation means at least one remote system may hold changes.
	KindRemoteMutation Kind = "remote_mutation"
	// KindLockContention means the configuration lock was held by another writer.
	KindLockContention Kind = "lock_contention"
)

// Failure is a classified step failure. The kind is decided where the step
// runs, never inferred from the error text.
type Failure struct {
	Kind      Kind
	Step      Step
	Subsystem string
	Region    string
	OfferCode string
	// RemoteReached marks a pre-mutation failure where a mutating call was
	// sent but nothing was committed.
	RemoteReached bool
	Err           error
}

// Error is the cause alone; the region-prefixed headline is added once, by typed.
func (f *Failure) Error() string {
	if f.Err == nil {
		return f.headline()
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// LogFields feeds the request error log.
func (f *Failure) LogFields() map[string]any {
	return map[string]any{
		"failure_kind":   string(f.Kind),
		"step":           string(f.Step),
		"subsystem":      f.Subsystem,
		"region":         f.Region,
		"offer_code":     f.OfferCode,
		"remote_reached": f.RemoteReached,
	}
}

// NeedsCompensation reports whether remote state may need undoing.
func (f *Failure) NeedsCompensation() bool {
	return f.Kind != KindPreMutation
}

// headline is the region-prefixed operator message for the failure.
func (f *Failure) headline() string {
	return fmt.Sprintf("[%s] %s %s failed", f.Region, f.Subsystem, f.Step)
}

// typed returns f as the error a caller sees when no compensation failed.
// Pre-mutation failures keep the code of their cause so that a missing draft
// still reads as 404 and bad input as 400.
func (f *Failure) typed() error {
	code := pkgerrors.CodeDependency
	switch f.Kind {
	case KindLockContention:
		code = pkgerrors.CodeLockContention
	case KindPreMutation:
		if inner := pkgerrors.As(f.Err); inner != nil {
			code = inner.Code()
		}
	}
	return pkgerrors.Wrap(code, f, f.headline())
}

// rollbackFailed wraps the original failure once compensation itself failed.
func rollbackFailed(f *Failure, rbErr error) error {
	return pkgerrors.Wrap(pkgerrors.CodeRollback, f.typed(),
		"Rollback failed for Publish Offer: "+pkgerrors.Describe(rbErr))
}
