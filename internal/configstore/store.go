package configstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/offers-backend/internal/lock"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/featureconfig"
	"github.com/angelmondragon/offers-backend/pkg/logger"
	"github.com/angelmondragon/offers-backend/pkg/metrics"
)

// ResourceKey names the configuration document in the distributed lock.
const ResourceKey = "feature-config"

// ErrLockBusy is returned (wrapped as LOCK_CONTENTION) when another writer
// holds the document lock.
var ErrLockBusy = lock.ErrBusy

// Stage identifies where in the cycle an Apply failed.
type Stage string

const (
	StageLock     Stage = "lock"
	StageRead     Stage = "read"
	StageMutate   Stage = "mutate"
	StageValidate Stage = "validate"
	StageWrite    Stage = "write"
)

// StageError tags an Apply failure with its stage. Any stage other than a
// successful write means no new version exists.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("config %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage of an Apply error, or "".
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Commit describes a successful write.
type Commit struct {
	BaseVersion     int64
	Version         int64
	RollbackVersion int64
}

type versionService interface {
	GetCurrentVersion(ctx context.Context, env enums.Environment) (*featureconfig.Snapshot, error)
	ValidateCandidate(ctx context.Context, env enums.Environment, doc *featureconfig.Document) error
	WriteVersion(ctx context.Context, env enums.Environment, baseVersion int64, doc *featureconfig.Document, idempotencyKey string) (int64, error)
	RollbackToVersion(ctx context.Context, env enums.Environment, version int64, idempotencyKey string) error
}

type StoreParams struct {
	Locker  lock.Locker
	Service versionService
	Metrics *metrics.PublishMetrics
	Logger  *logger.Logger
}

// Store serializes read-modify-write cycles on the configuration document.
type Store struct {
	locker  lock.Locker
	service versionService
	metrics *metrics.PublishMetrics
	logg    *logger.Logger
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	if params.Service == nil {
		return nil, errors.New("feature-config service required")
	}
	return &Store{
		locker:  params.Locker,
		service: params.Service,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Apply holds the document lock for the whole read, mutate, validate and
// write sequence. Lock contention fails immediately.
func (s *Store) Apply(ctx context.Context, env enums.Environment, idempotencyKey string, mutate func(*featureconfig.Document) error) (Commit, error) {
	if mutate == nil {
		return Commit{}, &StageError{Stage: StageMutate, Err: errors.New("nil mutation")}
	}
	var commit Commit
	err := s.withLock(ctx, env, func(ctx context.Context) error {
		snap, err := s.service.GetCurrentVersion(ctx, env)
		if err != nil {
			return &StageError{Stage: StageRead, Err: err}
		}
		doc := snap.Document
		if doc == nil {
			doc = &featureconfig.Document{}
		}
		if err := mutate(doc); err != nil {
			return &StageError{Stage: StageMutate, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build configuration candidate")}
		}
		doc.ConfigurationVersion = snap.Version + 1
		if err := s.service.ValidateCandidate(ctx, env, doc); err != nil {
			return &StageError{Stage: StageValidate, Err: err}
		}
		version, err := s.service.WriteVersion(ctx, env, snap.Version, doc, idempotencyKey)
		if err != nil {
			return &StageError{Stage: StageWrite, Err: err}
		}
		commit = Commit{
			BaseVersion:     snap.Version,
			Version:         version,
			RollbackVersion: version - 1,
		}
		return nil
	})
	if err != nil {
		return Commit{}, err
	}
	return commit, nil
}

// Rollback restores version as the live document of env under the lock.
func (s *Store) Rollback(ctx context.Context, env enums.Environment, version int64, idempotencyKey string) error {
	return s.withLock(ctx, env, func(ctx context.Context) error {
		return s.rollbackTo(ctx, env, version, idempotencyKey)
	})
}

func (s *Store) rollbackTo(ctx context.Context, env enums.Environment, version int64, idempotencyKey string) error {
	if err := s.service.RollbackToVersion(ctx, env, version, idempotencyKey); err != nil {
		return &StageError{Stage: StageWrite, Err: err}
	}
	return nil
}

// Revert undoes commit. While commit is still the live version the document
// is restored to commit.RollbackVersion; once another writer has committed on
// top of it, undo is applied to the current document instead so that the
// later writer's changes survive.
func (s *Store) Revert(ctx context.Context, env enums.Environment, commit Commit, idempotencyKey string, undo func(*featureconfig.Document) error) error {
	return s.withLock(ctx, env, func(ctx context.Context) error {
		snap, err := s.service.GetCurrentVersion(ctx, env)
		if err != nil {
			return &StageError{Stage: StageRead, Err: err}
		}
		if snap.Version == commit.Version || undo == nil {
			return s.rollbackTo(ctx, env, commit.RollbackVersion, idempotencyKey)
		}
		doc := snap.Document
		if doc == nil {
			doc = &featureconfig.Document{}
		}
		if err := undo(doc); err != nil {
			return &StageError{Stage: StageMutate, Err: err}
		}
		doc.ConfigurationVersion = snap.Version + 1
		if err := s.service.ValidateCandidate(ctx, env, doc); err != nil {
			return &StageError{Stage: StageValidate, Err: err}
		}
		if _, err := s.service.WriteVersion(ctx, env, snap.Version, doc, idempotencyKey); err != nil {
			return &StageError{Stage: StageWrite, Err: err}
		}
		return nil
	})
}

func (s *Store) withLock(ctx context.Context, env enums.Environment, fn func(context.Context) error) error {
	token, err := s.locker.Acquire(ctx, ResourceKey, env.String())
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			s.metrics.IncLockContention(env.String())
			return &StageError{Stage: StageLock, Err: pkgerrors.Wrap(pkgerrors.CodeLockContention, err, fmt.Sprintf("feature-config lock for %s is held", env))}
		}
		return &StageError{Stage: StageLock, Err: pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire feature-config lock")}
	}
	defer func() {
		if relErr := s.locker.Release(context.WithoutCancel(ctx), ResourceKey, env.String(), token); relErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "feature-config lock release failed; relying on ttl")
		}
	}()
	return fn(ctx)
}
