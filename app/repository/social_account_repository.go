package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// socialAccountRepository implements the SocialAccountRepository interface
type socialAccountRepository struct {
	db *gorm.DB
}

// NewSocialAccountRepository creates a new social account repository instance
func NewSocialAccountRepository(db *gorm.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) GetByUserAndPlatform(userID uint, platform models.Platform) (*models.SocialAccount, error) {
	var acc models.SocialAccount
	err := r.db.Where("user_id = ? AND platform = ?", userID, platform).First(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *socialAccountRepository) ListByUser(userID uint) ([]models.SocialAccount, error) {
	var accs []models.SocialAccount
	err := r.db.Where("user_id = ?", userID).Order("platform ASC").Find(&accs).Error
	return accs, err
}

// Upsert creates or refreshes the credential row for (user, platform). The
// disabled flag is cleared: completing the OAuth flow re-authorizes the
// account.
func (r *socialAccountRepository) Upsert(account *models.SocialAccount) error {
	var existing models.SocialAccount
	err := r.db.Where("user_id = ? AND platform = ?", account.UserID, account.Platform).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account.Disabled = false
		return r.db.Create(account).Error
	}
	if err != nil {
		return err
	}

	return r.db.Model(&models.SocialAccount{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"external_account_id": account.ExternalAccountID,
			"access_token_enc":    account.AccessTokenEnc,
			"refresh_token_enc":   account.RefreshTokenEnc,
			"expires_at":          account.ExpiresAt,
			"disabled":            false,
		}).Error
}

// UpdateTokens persists refreshed credentials. The disabled guard keeps a
// concurrent disconnect from being overwritten by an in-flight refresh.
func (r *socialAccountRepository) UpdateTokens(id uint, accessTokenEnc, refreshTokenEnc string, expiresAt *time.Time) (bool, error) {
	res := r.db.Model(&models.SocialAccount{}).
		Where("id = ? AND disabled = ?", id, false).
		Updates(map[string]interface{}{
			"access_token_enc":  accessTokenEnc,
			"refresh_token_enc": refreshTokenEnc,
			"expires_at":        expiresAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Disable soft-deletes the account: tokens cleared, row kept for history.
func (r *socialAccountRepository) Disable(id uint) (bool, error) {
	res := r.db.Model(&models.SocialAccount{}).
		Where("id = ? AND disabled = ?", id, false).
		Updates(map[string]interface{}{
			"disabled":          true,
			"access_token_enc":  "",
			"refresh_token_enc": "",
			"expires_at":        nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
