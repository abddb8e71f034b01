package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/semmidev/dumpcycle/internal/domain"
)

const bucketNotFound = "Cannot find the bucket: "

type DiskSpace interface {
	Free(path string) (uint64, error)
}

// DiskPolicy sizes the free-space check: required bytes are the schema's
// size estimate times SafetyFactor plus MinFreeBytes.
type DiskPolicy struct {
	Check        bool
	Dir          string
	SafetyFactor float64
	MinFreeBytes uint64
}

func (p DiskPolicy) Required(estimate int64) uint64 {
	if estimate < 0 {
		estimate = 0
	}
	return uint64(float64(estimate)*p.SafetyFactor) + p.MinFreeBytes
}

// HealthProber runs the pre-flight checks of a backup, in order, once each.
type HealthProber struct {
	db     domain.Database
	store  domain.ObjectStore
	disk   DiskSpace
	policy DiskPolicy
	logger Logger
}

func NewHealthProber(db domain.Database, store domain.ObjectStore, disk DiskSpace, policy DiskPolicy, logger Logger) *HealthProber {
	return &HealthProber{db: db, store: store, disk: disk, policy: policy, logger: logger}
}

func (h *HealthProber) Check(ctx context.Context, bucket string) error {
	if err := h.db.Probe(ctx); err != nil {
		return healthFailure("database probe", err)
	}
	h.logger.Infof("database probe passed")

	found, err := BucketExists(ctx, h.store, bucket)
	if err != nil {
		return healthFailure("bucket probe", err)
	}
	if !found {
		return healthFailure("bucket probe", errors.New(bucketNotFound+bucket))
	}
	h.logger.Infof("bucket %s found", bucket)

	if !h.policy.Check {
		h.logger.Infof("disk space check disabled")
		return nil
	}
	return h.checkDisk(ctx)
}

func (h *HealthProber) checkDisk(ctx context.Context) error {
	estimate, err := h.db.SizeEstimate(ctx)
	if err != nil {
		return healthFailure("disk space", fmt.Errorf("estimate dump size: %w", err))
	}
	free, err := h.disk.Free(h.policy.Dir)
	if err != nil {
		return healthFailure("disk space", err)
	}

	required := h.policy.Required(estimate)
	if free < required {
		return healthFailure("disk space", fmt.Errorf("insufficient space in %s: %d bytes free, %d required",
			h.policy.Dir, free, required))
	}
	h.logger.Infof("disk space ok: %.2f MB free, %.2f MB required",
		float64(free)/(1024*1024), float64(required)/(1024*1024))
	return nil
}

func healthFailure(check string, err error) error {
	return domain.NewError(domain.KindHealth, fmt.Errorf("%s: %w", check, err))
}
