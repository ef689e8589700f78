package port

import (
	"context"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// ReviewCache stores review snapshots for display. It is never the source of truth:
// a miss or an error means the claim is rescored.
type ReviewCache interface {
	Get(ctx context.Context, claimID string) (*entity.ReviewSnapshot, bool, error)
	Set(ctx context.Context, snapshot *entity.ReviewSnapshot) error
	Invalidate(ctx context.Context, claimID string) error
}
