package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

const (
	stateKeyPrefix = "oauth_state:"

	// StateTTL bounds the window between starting and completing a connect
	// flow; older states are rejected even if never consumed.
	StateTTL = 5 * time.Minute
)

// State binds one in-flight OAuth connect flow to a user and carries the goth
// provider session across the redirect.
type State struct {
	UserID          uint            `json:"user_id"`
	Platform        models.Platform `json:"platform"`
	RedirectAfter   string          `json:"redirect_after"`
	ProviderSession string          `json:"provider_session"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StateStore persists single-use OAuth states in Redis. Expiry is enforced by
// the key TTL; single use by the atomic GETDEL in Consume.
type StateStore struct {
	client *redis.Client
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

// NewStateToken returns a crypto-random token for one connect flow. The token
// is generated before the provider session exists because it has to be baked
// into the provider authorization URL.
func NewStateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create persists the bound state under the given token.
func (s *StateStore) Create(ctx context.Context, token string, state State) error {
	state.CreatedAt = time.Now()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, stateKeyPrefix+token, raw, StateTTL).Err()
}

// Consume atomically retrieves and invalidates a state. It returns nil for
// missing, expired or already consumed tokens; callers must treat nil as an
// invalid-state failure.
func (s *StateStore) Consume(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := s.client.GetDel(ctx, stateKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	if time.Since(state.CreatedAt) > StateTTL {
		return nil, nil
	}
	return &state, nil
}
