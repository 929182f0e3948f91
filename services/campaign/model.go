package campaign

import (
	"math"
	"time"
)

type Platform string
type ActionType string
type Status string

const (
	PlatformInstagram Platform = "Instagram"
	PlatformTikTok    Platform = "TikTok"
	PlatformYouTube   Platform = "YouTube"
	PlatformTwitter   Platform = "Twitter"

	ActionLike   ActionType = "Like"
	ActionFollow ActionType = "Follow"
	ActionView   ActionType = "View"

	StatusActive    Status = "Active"
	StatusPaused    Status = "Paused"
	StatusCompleted Status = "Completed"
)

// Geo-targeted campaigns pay a premium per action.
const geoPremium = 1.3

type Campaign struct {
	ID                  string     `gorm:"column:id;primaryKey" json:"id"`
	UserID              string     `gorm:"column:user_id;index;not null" json:"user_id"`
	Code                string     `gorm:"column:code" json:"code"`
	Platform            Platform   `gorm:"column:platform;not null" json:"platform"`
	Type                ActionType `gorm:"column:type;not null" json:"type"`
	TargetURL           string     `gorm:"column:target_url;not null" json:"target_url"`
	Description         string     `gorm:"column:description" json:"description"`
	Country             string     `gorm:"column:country;not null;default:'Worldwide'" json:"country"`
	TargetingExpression string     `gorm:"column:targeting_expression" json:"targeting_expression,omitempty"`
	ThumbnailURL        string     `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	Reward              int64      `gorm:"column:reward;not null" json:"reward"`
	CostPerAction       int64      `gorm:"column:cost_per_action;not null" json:"cost_per_action"`
	TotalRequested      int64      `gorm:"column:total_requested;not null" json:"total_requested"`
	CompletedCount      int64      `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	Status              Status     `gorm:"column:status;not null;default:'Active'" json:"status"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func validActionType(t ActionType) bool {
	switch t {
	case ActionLike, ActionFollow, ActionView:
		return true
	default:
		return false
	}
}

// GeoMultiplier returns the premium factor for country-targeted campaigns.
// "Worldwide" means no targeting and no premium.
func GeoMultiplier(country string) float64 {
	if country == "" || country == "Worldwide" {
		return 1.0
	}
	return geoPremium
}

// CostPerAction is the creator's price for one action: the task reward
// scaled by the geo premium, rounded up.
func CostPerAction(reward int64, country string) int64 {
	return int64(math.Ceil(float64(reward) * GeoMultiplier(country)))
}

// Remaining is the number of actions not yet fulfilled.
func (c *Campaign) Remaining() int64 {
	remaining := c.TotalRequested - c.CompletedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
