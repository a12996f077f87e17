package entity

// Patron is a supporter record synced from Patreon.
type Patron struct {
	ID              int64   `db:"id" json:"id"`
	Email           string  `db:"email" json:"email"`
	Username        string  `db:"username" json:"username"`
	PledgeCents     int     `db:"pledge_cents" json:"pledge_cents"`
	RewardID        *string `db:"reward_id" json:"reward_id,omitempty"`
	Suspended       bool    `db:"suspended" json:"suspended"`
	SuspendedReason *string `db:"suspended_reason" json:"suspended_reason,omitempty"`
}
