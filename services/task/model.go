package task

import (
	"time"

	"github.com/founoun2/FollowMe/services/campaign"
)

type Status string
type ReportReason string

const (
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusReported  Status = "reported"

	ReasonSpam      ReportReason = "spam"
	ReasonBroken    ReportReason = "broken"
	ReasonOffensive ReportReason = "offensive"
)

// Completing a task raises the worker's reputation by one point.
const reputationPerTask int64 = 1

// Task is the feed-facing projection of a campaign. The economic fields are
// denormalized at creation so the feed never joins back for display data.
type Task struct {
	ID           string              `gorm:"column:id;primaryKey" json:"id"`
	Code         string              `gorm:"column:code" json:"code"`
	CampaignID   string              `gorm:"column:campaign_id;uniqueIndex;not null" json:"campaign_id"`
	Platform     campaign.Platform   `gorm:"column:platform;not null" json:"platform"`
	Type         campaign.ActionType `gorm:"column:type;not null" json:"type"`
	Reward       int64               `gorm:"column:reward;not null" json:"reward"`
	Description  string              `gorm:"column:description" json:"description"`
	TargetURL    string              `gorm:"column:target_url;not null" json:"target_url"`
	ThumbnailURL string              `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	Country      string              `gorm:"column:country;not null;default:'Worldwide'" json:"country"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

// UserTask tracks one user's progress on one task. At most one row exists per
// (user, task) pair.
type UserTask struct {
	ID           string       `gorm:"column:id;primaryKey" json:"id"`
	UserID       string       `gorm:"column:user_id;uniqueIndex:idx_user_task;not null" json:"user_id"`
	TaskID       string       `gorm:"column:task_id;uniqueIndex:idx_user_task;not null" json:"task_id"`
	Status       Status       `gorm:"column:status;not null;default:'pending'" json:"status"`
	ReportReason ReportReason `gorm:"column:report_reason" json:"report_reason,omitempty"`
	CompletedAt  *time.Time   `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (UserTask) TableName() string {
	return "user_tasks"
}

func validReportReason(r ReportReason) bool {
	switch r {
	case ReasonSpam, ReasonBroken, ReasonOffensive:
		return true
	default:
		return false
	}
}
