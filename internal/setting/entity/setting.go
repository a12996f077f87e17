package entity

import "encoding/json"

// CategoryPatreon is the category of the single patreon settings row.
const CategoryPatreon = "patreon"

// Setting represents a configuration record. Metadata is category specific.
type Setting struct {
	ID         string          `db:"id" json:"id"`
	ParentID   string          `db:"parent_id" json:"parent_id,omitempty"`
	RootID     string          `db:"root_id" json:"root_id,omitempty"`
	RecordMeta json.RawMessage `db:"record_meta" json:"record_meta,omitempty"`
	Category   string          `db:"category" json:"category,omitempty"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// NewSetting creates a new top-level Setting.
func NewSetting(id string, category string, metadata json.RawMessage) *Setting {
	return &Setting{ID: id, Category: category, RecordMeta: json.RawMessage("{}"), Metadata: metadata}
}

// PatreonSettings is the metadata of the patreon settings row.
type PatreonSettings struct {
	DevBuildsRewardID string `json:"devbuilds_reward_id"`
	VIPRewardID       string `json:"vip_reward_id"`
	// MinPledgeCents grants entitlement by pledge amount when > 0.
	MinPledgeCents int `json:"min_pledge_cents"`
}

// IsEntitledToDevBuilds reports whether a patron with the given reward and
// pledge is on the DevBuilds tier or higher.
func (p PatreonSettings) IsEntitledToDevBuilds(rewardID *string, pledgeCents int) bool {
	if rewardID != nil && *rewardID != "" {
		if *rewardID == p.DevBuildsRewardID || *rewardID == p.VIPRewardID {
			return true
		}
	}
	return p.MinPledgeCents > 0 && pledgeCents >= p.MinPledgeCents
}
