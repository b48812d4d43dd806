package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/platforms"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/tokens"
)

// fakeScheduleRepo is an in-memory ScheduleRepository with the same
// conditional-update claim semantics as the gorm implementation. claimHook
// runs once before the next claim, for interleaving a competing worker.
type fakeScheduleRepo struct {
	mu        sync.Mutex
	records   map[uint]*models.ScheduleRecord
	claimHook func()
}

func newFakeScheduleRepo(records ...*models.ScheduleRecord) *fakeScheduleRepo {
	m := make(map[uint]*models.ScheduleRecord, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return &fakeScheduleRepo{records: m}
}

func (f *fakeScheduleRepo) CreateAll(records []*models.ScheduleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeScheduleRepo) GetByID(id uint) (*models.ScheduleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeScheduleRepo) GetByUUID(uuid string) (*models.ScheduleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UUID == uuid {
			copied := *r
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeScheduleRepo) ListByUser(userID uint) ([]models.ScheduleRecord, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ListByContent(contentID uint) ([]models.ScheduleRecord, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) FindDue(now time.Time, limit int) ([]models.ScheduleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.ScheduleRecord
	for _, r := range f.records {
		if r.IsDue(now) && len(due) < limit {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (f *fakeScheduleRepo) Claim(id uint, now time.Time) (*models.ScheduleRecord, error) {
	f.mu.Lock()
	hook := f.claimHook
	f.claimHook = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.Status != models.ScheduleStatusPending || r.ScheduledTime.After(now) {
		return nil, nil
	}
	r.Status = models.ScheduleStatusPublishing
	copied := *r
	return &copied, nil
}

func (f *fakeScheduleRepo) MarkPublished(id uint, externalPostID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = models.ScheduleStatusPublished
	r.ExternalPostID = externalPostID
	r.LastError = ""
	return nil
}

func (f *fakeScheduleRepo) Requeue(id uint, tries int, nextAttempt time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = models.ScheduleStatusPending
	r.Tries = tries
	r.ScheduledTime = nextAttempt
	r.LastError = lastError
	return nil
}

func (f *fakeScheduleRepo) MarkFailed(id uint, tries int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = models.ScheduleStatusFailed
	r.Tries = tries
	r.LastError = lastError
	return nil
}

func (f *fakeScheduleRepo) FindStuck(before time.Time) ([]models.ScheduleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stuck []models.ScheduleRecord
	for _, r := range f.records {
		if r.Status == models.ScheduleStatusPublishing && r.UpdatedAt.Before(before) {
			stuck = append(stuck, *r)
		}
	}
	return stuck, nil
}

func (f *fakeScheduleRepo) DeletePending(uuid string, userID uint) (bool, error) {
	return false, nil
}

// fakeAccountRepo serves a single account
type fakeAccountRepo struct {
	account *models.SocialAccount
}

func (f *fakeAccountRepo) GetByUserAndPlatform(userID uint, platform models.Platform) (*models.SocialAccount, error) {
	if f.account == nil || f.account.UserID != userID || f.account.Platform != platform {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.account
	return &copied, nil
}

func (f *fakeAccountRepo) ListByUser(userID uint) ([]models.SocialAccount, error) { return nil, nil }
func (f *fakeAccountRepo) Upsert(account *models.SocialAccount) error             { return nil }
func (f *fakeAccountRepo) UpdateTokens(id uint, a, r string, e *time.Time) (bool, error) {
	return true, nil
}
func (f *fakeAccountRepo) Disable(id uint) (bool, error) { return true, nil }

// fakeAdapter counts publish calls and replays a scripted result
type fakeAdapter struct {
	mu         sync.Mutex
	platform   models.Platform
	publishErr error
	externalID string
	calls      int
	delay      time.Duration
}

func (a *fakeAdapter) Platform() models.Platform          { return a.platform }
func (a *fakeAdapter) Validate(platforms.PostContent) error { return nil }

func (a *fakeAdapter) Publish(ctx context.Context, post platforms.PostContent, creds platforms.Credentials) (string, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.publishErr != nil {
		return "", a.publishErr
	}
	return a.externalID, nil
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeTokenSource returns a static token or error
type fakeTokenSource struct {
	token string
	err   error
	calls int
}

func (f *fakeTokenSource) AccessToken(ctx context.Context, userID uint, platform models.Platform) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// fakeNotifier records fallback alerts
type fakeNotifier struct {
	mu        sync.Mutex
	fallbacks []string
}

func (n *fakeNotifier) SendFallbackAlert(userID uint, record *models.ScheduleRecord, publishErr error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fallbacks = append(n.fallbacks, record.UUID)
}

func (n *fakeNotifier) SendAdminAlert(subject, message string) {}

func (n *fakeNotifier) fallbackCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.fallbacks)
}

func pendingRecord(id uint, platform models.Platform, due time.Time) *models.ScheduleRecord {
	return &models.ScheduleRecord{
		ID:            id,
		UUID:          "rec-" + platform.String(),
		UserID:        1,
		ContentID:     10,
		Platform:      platform,
		Body:          "scheduled text",
		ScheduledTime: due,
		Status:        models.ScheduleStatusPending,
	}
}

func linkedinAccount() *models.SocialAccount {
	return &models.SocialAccount{
		ID:                3,
		UserID:            1,
		Platform:          models.PlatformLinkedIn,
		ExternalAccountID: "ext-1",
	}
}

func newTestPublisher(repo *fakeScheduleRepo, accounts *fakeAccountRepo, adapter *fakeAdapter, ts TokenSource, n Notifier) *Publisher {
	return NewPublisher(repo, accounts, platforms.NewRegistryWith(adapter), ts, n)
}

func TestTick_PublishesDueRecord(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	rec.LastError = "previous transient failure"
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn, externalID: "urn:li:ugcPost:1"}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, notifier)
	require.NoError(t, p.Tick(context.Background()))

	got, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPublished, got.Status)
	assert.Equal(t, "urn:li:ugcPost:1", got.ExternalPostID)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 1, adapter.callCount())
	assert.Zero(t, notifier.fallbackCount())
}

func TestTick_IgnoresFutureRecords(t *testing.T) {
	repo := newFakeScheduleRepo(pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(time.Hour)))
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, &fakeNotifier{})
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusPending, got.Status)
	assert.Zero(t, adapter.callCount())
}

// Three consecutive transient failures with MaxRetries=3 end in failed with
// exactly one fallback notification.
func TestTick_TransientFailuresExhaustRetries(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{
		platform:   models.PlatformLinkedIn,
		publishErr: &platforms.PublishError{Platform: models.PlatformLinkedIn, Message: "timeout", Transient: true},
	}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, notifier)

	clock := time.Now()
	p.now = func() time.Time { return clock }

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		require.NoError(t, p.Tick(context.Background()))
		// Jump past the backoff so the next tick sees the record as due
		clock = clock.Add(time.Hour)
	}

	got, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Equal(t, MaxRetries, got.Tries)
	assert.Contains(t, got.LastError, "retries exhausted")
	assert.Equal(t, MaxRetries, adapter.callCount())
	assert.Equal(t, 1, notifier.fallbackCount())

	// Terminal: a further tick must not touch the record again
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, MaxRetries, adapter.callCount())
}

func TestTick_TransientFailureRequeuesWithBackoff(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{
		platform:   models.PlatformLinkedIn,
		publishErr: &platforms.PublishError{Platform: models.PlatformLinkedIn, Message: "429", Transient: true},
	}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, &fakeNotifier{})

	now := time.Now()
	p.now = func() time.Time { return now }
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusPending, got.Status)
	assert.Equal(t, 1, got.Tries)
	assert.Equal(t, now.Add(BackoffBase), got.ScheduledTime)
	assert.Contains(t, got.LastError, "429")
}

func TestTick_PermanentFailureDoesNotRetry(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{
		platform:   models.PlatformLinkedIn,
		publishErr: &platforms.PublishError{Platform: models.PlatformLinkedIn, Code: 401, Message: "revoked", Transient: false},
	}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, notifier)
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Equal(t, 1, got.Tries)
	assert.Equal(t, 1, adapter.callCount())
	assert.Equal(t, 1, notifier.fallbackCount())
}

func TestTick_MissingAccountFailsWithoutNetworkCall(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn}
	toks := &fakeTokenSource{token: "tok"}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{}, adapter, toks, notifier)
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "no connected")
	assert.Zero(t, adapter.callCount())
	assert.Zero(t, toks.calls)
	assert.Equal(t, 1, notifier.fallbackCount())
}

// Disconnected account: the record fails immediately, no platform call is made.
func TestTick_DisabledAccountFailsImmediately(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn}

	account := linkedinAccount()
	account.Disabled = true
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: account}, adapter, &fakeTokenSource{token: "tok"}, notifier)
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "disconnected")
	assert.Zero(t, adapter.callCount())
	assert.Equal(t, 1, notifier.fallbackCount())
}

func TestTick_RefreshFailureFailsRecord(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter,
		&fakeTokenSource{err: tokens.ErrRefreshFailed}, notifier)
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Zero(t, adapter.callCount())
	assert.Equal(t, 1, notifier.fallbackCount())
}

func TestTick_TokenEndpointOutageRetries(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter,
		&fakeTokenSource{err: errors.New("dial tcp: connection refused")}, &fakeNotifier{})
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusPending, got.Status)
	assert.Equal(t, 1, got.Tries)
}

func TestTick_UnknownPlatformFails(t *testing.T) {
	rec := pendingRecord(1, models.PlatformInstagram, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	// Registry only knows linkedin
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, notifier)
	require.NoError(t, p.Tick(context.Background()))

	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "no adapter registered")
	assert.Equal(t, 1, notifier.fallbackCount())
}

// Concurrent ticks race for the same due record; the claim must let exactly
// one of them publish.
func TestTick_ConcurrentTicksClaimOnce(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn, externalID: "x", delay: 20 * time.Millisecond}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, &fakeNotifier{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Tick(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, adapter.callCount())
	got, _ := repo.GetByID(1)
	assert.Equal(t, models.ScheduleStatusPublished, got.Status)
}

// A competing worker that claims, transiently fails and requeues the record
// between this worker's scan and claim must win: the backoff it scheduled is
// honored and the stale snapshot never triggers an immediate extra attempt.
func TestTick_RequeuedBetweenScanAndClaimKeepsBackoff(t *testing.T) {
	rec := pendingRecord(1, models.PlatformLinkedIn, time.Now().Add(-time.Second))
	rec.Tries = 1
	repo := newFakeScheduleRepo(rec)
	adapter := &fakeAdapter{platform: models.PlatformLinkedIn, externalID: "x"}
	notifier := &fakeNotifier{}

	p := newTestPublisher(repo, &fakeAccountRepo{account: linkedinAccount()}, adapter, &fakeTokenSource{token: "tok"}, notifier)
	now := time.Now()
	p.now = func() time.Time { return now }

	next := now.Add(2 * time.Minute)
	repo.claimHook = func() {
		other, err := repo.Claim(1, now)
		require.NoError(t, err)
		require.NotNil(t, other)
		require.NoError(t, repo.Requeue(1, other.Tries+1, next, "rate limited"))
	}

	require.NoError(t, p.Tick(context.Background()))

	got, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPending, got.Status)
	assert.Equal(t, 2, got.Tries)
	assert.Equal(t, next, got.ScheduledTime)
	assert.Zero(t, adapter.callCount(), "backoff skipped: record was dispatched from a stale scan")
	assert.Zero(t, notifier.fallbackCount())
}

// Stuck recovery counts as a failed attempt so a record that keeps killing its
// worker cannot cycle pending -> publishing -> recovered forever.
func TestRecoverStuck_CountsAgainstRetryBudget(t *testing.T) {
	now := time.Now()

	abandoned := pendingRecord(1, models.PlatformLinkedIn, now.Add(-time.Hour))
	abandoned.Status = models.ScheduleStatusPublishing
	abandoned.UpdatedAt = now.Add(-time.Hour)

	active := pendingRecord(2, models.PlatformInstagram, now.Add(-time.Minute))
	active.Status = models.ScheduleStatusPublishing
	active.UpdatedAt = now

	repo := newFakeScheduleRepo(abandoned, active)
	notifier := &fakeNotifier{}
	p := newTestPublisher(repo, &fakeAccountRepo{}, &fakeAdapter{platform: models.PlatformLinkedIn}, &fakeTokenSource{token: "tok"}, notifier)
	p.now = func() time.Time { return now }

	p.RecoverStuck()

	got, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPending, got.Status)
	assert.Equal(t, 1, got.Tries)
	assert.Equal(t, now.Add(BackoffBase), got.ScheduledTime)
	assert.Contains(t, got.LastError, "interrupted")
	assert.Zero(t, notifier.fallbackCount())

	// The record still being worked on is untouched
	untouched, err := repo.GetByID(2)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPublishing, untouched.Status)
	assert.Zero(t, untouched.Tries)
}

func TestRecoverStuck_ExhaustedBudgetFailsAndNotifies(t *testing.T) {
	now := time.Now()

	rec := pendingRecord(1, models.PlatformLinkedIn, now.Add(-time.Hour))
	rec.Status = models.ScheduleStatusPublishing
	rec.UpdatedAt = now.Add(-time.Hour)
	rec.Tries = MaxRetries - 1

	repo := newFakeScheduleRepo(rec)
	notifier := &fakeNotifier{}
	p := newTestPublisher(repo, &fakeAccountRepo{}, &fakeAdapter{platform: models.PlatformLinkedIn}, &fakeTokenSource{token: "tok"}, notifier)
	p.now = func() time.Time { return now }

	p.RecoverStuck()

	got, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusFailed, got.Status)
	assert.Equal(t, MaxRetries, got.Tries)
	assert.Contains(t, got.LastError, "retries exhausted")
	assert.Equal(t, 1, notifier.fallbackCount())
}

func TestBackoffDoubles(t *testing.T) {
	p := &Publisher{backoffBase: time.Minute}

	assert.Equal(t, time.Minute, p.backoff(1))
	assert.Equal(t, 2*time.Minute, p.backoff(2))
	assert.Equal(t, 4*time.Minute, p.backoff(3))
}
