package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront/internal/model"
)

type PaymentRequest struct {
	UserID     uuid.UUID
	Method     model.PaymentMethod
	Amount     decimal.Decimal
	CardNumber string
	Card       *model.CardDetails
}

type Authorization struct {
	Approved     bool
	Reference    string
	AuthorizedAt time.Time
}

// PaymentAuthorizer decides whether a checkout may be treated as paid.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, req PaymentRequest) (Authorization, error)
}

// SimulatedAuthorizer approves every card without contacting a gateway.
// Cash on delivery is never authorized up front.
type SimulatedAuthorizer struct {
	Now func() time.Time
}

func (a SimulatedAuthorizer) Authorize(_ context.Context, req PaymentRequest) (Authorization, error) {
	if req.Method != model.PaymentCard {
		return Authorization{}, nil
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return Authorization{
		Approved:     true,
		Reference:    "sim_" + uuid.NewString(),
		AuthorizedAt: now().UTC(),
	}, nil
}
