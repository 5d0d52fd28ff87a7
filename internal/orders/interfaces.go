package orders

import (
	"context"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
)

// Service builds orders on the device. Deleting and status changes after
// creation belong to the transmission engine.
type Service interface {
	CreateOrder(ctx context.Context, input Input) (models.Order, error)
	RegisterNegation(ctx context.Context, input NegationInput) (models.Order, error)
}
