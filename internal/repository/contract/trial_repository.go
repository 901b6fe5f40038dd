package contract

import (
	"context"

	"ctgov-compliance-be/internal/repository/specification"
)

type TrialRepository interface {
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
