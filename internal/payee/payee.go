package payee

import (
	"context"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payee"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*payee.Payee, error)
	UpdatePocketBalance(ctx context.Context, id int64, balanceKop int64, refreshedAt time.Time) error
}

type BalanceView struct {
	PayeeID     int64      `json:"payee_id"`
	SdRef       string     `json:"sd_ref"`
	BalanceKop  int64      `json:"balance_kop"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	Stale       bool       `json:"stale"`
}
