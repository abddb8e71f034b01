package usecase

import (
	"context"
	"fmt"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// VerifyInventory compares two inventories as sets.
func VerifyInventory(expected, actual domain.TableInventory) *domain.MismatchWarning {
	missing, unexpected := expected.Diff(actual)
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	return &domain.MismatchWarning{Missing: missing, Unexpected: unexpected}
}

// Verifier checks a restored schema against the inventory captured at
// backup time.
type Verifier struct {
	db     domain.Database
	logger Logger
}

func NewVerifier(db domain.Database, logger Logger) *Verifier {
	return &Verifier{db: db, logger: logger}
}

// Verify reads the expected inventory, snapshots the restored one to
// restoredPath and compares them. The returned warning never fails a run;
// err reports that the comparison could not be made at all.
func (v *Verifier) Verify(ctx context.Context, expectedPath, restoredPath string) (*domain.MismatchWarning, error) {
	expected, err := domain.ReadInventoryFile(expectedPath)
	if err != nil {
		return nil, fmt.Errorf("expected inventory: %w", err)
	}

	actual, err := v.db.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("restored inventory: %w", err)
	}
	if err := actual.WriteFile(restoredPath); err != nil {
		return nil, err
	}

	v.logger.Infof("comparing %d expected tables with %d restored tables", len(expected), len(actual))
	return VerifyInventory(expected, actual), nil
}
