package loyalty

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CodeRequest struct {
	Code        string
	OrderDate   time.Time
	PartnerID   int64
	PricelistID int64
}

// CodeValidation is the payload shape shared by the remote validation
// call and the offline validator, so the redemption controller never
// branches on online/offline.
type CodeValidation struct {
	Successful     bool            `json:"successful"`
	Reason         Reason          `json:"reason,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CouponID       int64           `json:"coupon_id,omitempty"`
	ProgramID      int64           `json:"program_id,omitempty"`
	PartnerID      int64           `json:"partner_id,omitempty"`
	Points         decimal.Decimal `json:"points"`
	HasSourceOrder bool            `json:"has_source_order,omitempty"`
}

const StatusDone = "done"

// StatusResult is the payment-adjacent status shape. Anything other than
// success with a done status counts as failure.
type StatusResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

func (r StatusResult) OK() bool {
	return r.Success && r.Status == StatusDone
}

// RemoteValidator is the server boundary. Implementations must be safe to
// retry; network failures and timeouts surface as transient errors, which
// the controller turns into an offline reconciliation attempt.
type RemoteValidator interface {
	ValidateCode(ctx context.Context, req CodeRequest) (*CodeValidation, error)
	// CardPartnerByCode resolves a loyalty-card code to its owning
	// partner, 0 when the code does not belong to a loyalty card.
	CardPartnerByCode(ctx context.Context, code string) (int64, error)
	FetchCard(ctx context.Context, programID, partnerID int64) (*Card, error)
	Status(ctx context.Context, ref string) (*StatusResult, error)
}
