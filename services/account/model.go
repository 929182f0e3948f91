package account

import "time"

// Seed values applied at signup. The welcome bonus itself is written through
// the ledger so the balance always equals the signed sum of transactions.
const (
	WelcomeBonus      int64 = 50
	InitialReputation int64 = 100
	InitialStreak     int64 = 1

	// DefaultCountry marks an account that has not picked a country yet.
	DefaultCountry = "Worldwide"
)

type User struct {
	ID             string     `gorm:"column:id;primaryKey" json:"id"`
	Username       string     `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash   string     `gorm:"column:password_hash" json:"-"`
	Credits        int64      `gorm:"column:credits;not null;default:0" json:"credits"`
	Reputation     int64      `gorm:"column:reputation;not null;default:0" json:"reputation"`
	Streak         int64      `gorm:"column:streak;not null;default:0" json:"streak"`
	LastLoginAt    *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	AdWatchesToday int64      `gorm:"column:ad_watches_today;not null;default:0" json:"ad_watches_today"`
	LastAdAt       *time.Time `gorm:"column:last_ad_at" json:"last_ad_at,omitempty"`
	Country        string     `gorm:"column:country;not null;default:'Worldwide'" json:"country"`
	Language       string     `gorm:"column:language" json:"language"`
	AvatarURL      string     `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Onboarded reports whether the user finished onboarding by picking a
// concrete country.
func (u *User) Onboarded() bool {
	return u.Country != "" && u.Country != DefaultCountry
}
