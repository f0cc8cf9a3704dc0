package payee

import "time"

type Payee struct {
	ID                 int64      `db:"id"`
	Name               string     `db:"name"`
	SdRef              *string    `db:"sd_ref"`
	PocketBalanceKop   *int64     `db:"pocket_balance_kop"`
	BalanceRefreshedAt *time.Time `db:"balance_refreshed_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (p *Payee) Pocket() string {
	if p.SdRef == nil {
		return ""
	}
	return *p.SdRef
}
