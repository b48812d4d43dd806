package models

import "time"

// SocialAccount stores the OAuth credential set linking a user to one external
// platform. Token columns hold ciphertext; plaintext is never persisted.
type SocialAccount struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"index:user_platform,unique" json:"user_id"`
	Platform          Platform   `gorm:"index:user_platform,unique;type:varchar(50)" json:"platform"`
	ExternalAccountID string     `gorm:"type:varchar(191)" json:"external_account_id"`
	AccessTokenEnc    string     `gorm:"type:text" json:"-"`
	RefreshTokenEnc   string     `gorm:"type:text" json:"-"`
	ExpiresAt         *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Disabled          bool       `gorm:"default:false" json:"disabled"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TokenFresh reports whether the access token expiry is further out than the
// given horizon. Accounts without a stored expiry are treated as fresh.
func (a *SocialAccount) TokenFresh(now time.Time, horizon time.Duration) bool {
	if a.ExpiresAt == nil {
		return true
	}
	return a.ExpiresAt.After(now.Add(horizon))
}
