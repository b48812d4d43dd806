package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/platforms"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/tokens"
)

const (
	// MaxRetries bounds transient-failure attempts per record.
	MaxRetries = 3
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase = time.Minute
	// PublishTimeout bounds a single adapter dispatch.
	PublishTimeout = 30 * time.Second
	// StuckAge is how long a record may sit in publishing before the sweeper
	// assumes the worker died and returns it to pending.
	StuckAge = 10 * time.Minute

	defaultBatchSize = 50
)

// TokenSource yields a usable access token for (user, platform).
type TokenSource interface {
	AccessToken(ctx context.Context, userID uint, platform models.Platform) (string, error)
}

// Publisher drives due schedule records from pending to a terminal state.
// All state lives in the database; the publisher itself is stateless and safe
// to run concurrently thanks to the conditional-update claim.
type Publisher struct {
	schedules repository.ScheduleRepository
	accounts  repository.SocialAccountRepository
	registry  *platforms.Registry
	tokens    TokenSource
	notifier  Notifier

	maxRetries     int
	backoffBase    time.Duration
	publishTimeout time.Duration
	batchSize      int

	now func() time.Time
}

func NewPublisher(
	schedules repository.ScheduleRepository,
	accounts repository.SocialAccountRepository,
	registry *platforms.Registry,
	tokenSource TokenSource,
	notifier Notifier,
) *Publisher {
	return &Publisher{
		schedules:      schedules,
		accounts:       accounts,
		registry:       registry,
		tokens:         tokenSource,
		notifier:       notifier,
		maxRetries:     MaxRetries,
		backoffBase:    BackoffBase,
		publishTimeout: PublishTimeout,
		batchSize:      defaultBatchSize,
		now:            time.Now,
	}
}

// Tick scans for due pending records and attempts publication of each. It is
// idempotent with respect to records already claimed, published or failed:
// the claim decides ownership, so concurrent ticks never double-publish. One
// record's failure never blocks the rest of the batch.
func (p *Publisher) Tick(ctx context.Context) error {
	due, err := p.schedules.FindDue(p.now(), p.batchSize)
	if err != nil {
		return fmt.Errorf("scan due schedules: %w", err)
	}

	for i := range due {
		rec := due[i]

		// The claim re-checks dueness and returns the current row: between
		// the scan and this point another worker may have claimed, failed and
		// requeued the record, so the snapshot's tries and scheduled_time
		// cannot be trusted.
		claimed, err := p.schedules.Claim(rec.ID, p.now())
		if err != nil {
			log.Errorf("[Scheduler] Claim of record %s failed: %v", rec.UUID, err)
			continue
		}
		if claimed == nil {
			// Another worker owns this record, or its backoff moved it out
			// of the due window
			continue
		}

		p.process(ctx, claimed)
	}
	return nil
}

// RecoverStuck handles records abandoned mid-publish (crash, kill). Each
// recovery counts as a failed attempt against the retry budget, so a record
// that reliably kills its worker still reaches the terminal failed state and
// triggers the fallback notification instead of cycling forever.
func (p *Publisher) RecoverStuck() {
	stuck, err := p.schedules.FindStuck(p.now().Add(-StuckAge))
	if err != nil {
		log.Errorf("[Scheduler] Stuck recovery failed: %v", err)
		return
	}

	for i := range stuck {
		p.retryOrFail(&stuck[i], errors.New("recovered after interrupted publish"))
	}
	if len(stuck) > 0 {
		log.Warnf("[Scheduler] Recovered %d record(s) stuck in publishing", len(stuck))
	}
}

// process drives one claimed record to published, failed, or back to pending
// for a later retry.
func (p *Publisher) process(ctx context.Context, rec *models.ScheduleRecord) {
	adapter, err := p.registry.Get(rec.Platform)
	if err != nil {
		p.fail(rec, rec.Tries, err)
		return
	}

	account, err := p.accounts.GetByUserAndPlatform(rec.UserID, rec.Platform)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.fail(rec, rec.Tries, fmt.Errorf("no connected %s account", rec.Platform))
		return
	}
	if err != nil {
		log.Errorf("[Scheduler] Account lookup for record %s failed: %v", rec.UUID, err)
		p.retryOrFail(rec, err)
		return
	}
	if account.Disabled {
		p.fail(rec, rec.Tries, fmt.Errorf("%s account is disconnected", rec.Platform))
		return
	}

	accessToken, err := p.tokens.AccessToken(ctx, rec.UserID, rec.Platform)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrRefreshFailed),
			errors.Is(err, tokens.ErrAccountDisabled),
			errors.Is(err, tokens.ErrAccountNotFound):
			p.fail(rec, rec.Tries, err)
		default:
			// Network trouble reaching the token endpoint: worth a retry
			p.retryOrFail(rec, err)
		}
		return
	}

	pctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	externalID, err := adapter.Publish(pctx, postContent(rec), platforms.Credentials{
		AccessToken:       accessToken,
		ExternalAccountID: account.ExternalAccountID,
	})
	if err == nil {
		if err := p.schedules.MarkPublished(rec.ID, externalID); err != nil {
			log.Errorf("[Scheduler] Record %s published as %s but state update failed: %v", rec.UUID, externalID, err)
			return
		}
		log.Infof("[Scheduler] Published record %s to %s as %s", rec.UUID, rec.Platform, externalID)
		return
	}

	if platforms.IsTransient(err) {
		p.retryOrFail(rec, err)
		return
	}
	p.fail(rec, rec.Tries+1, err)
}

// retryOrFail increments the retry counter and either requeues the record
// with exponential backoff or, once retries are exhausted, fails it for good.
func (p *Publisher) retryOrFail(rec *models.ScheduleRecord, cause error) {
	tries := rec.Tries + 1
	if tries < p.maxRetries {
		next := p.now().Add(p.backoff(tries))
		if err := p.schedules.Requeue(rec.ID, tries, next, cause.Error()); err != nil {
			log.Errorf("[Scheduler] Requeue of record %s failed: %v", rec.UUID, err)
			return
		}
		log.Warnf("[Scheduler] Record %s attempt %d/%d failed, retrying at %s: %v",
			rec.UUID, tries, p.maxRetries, next.Format(time.RFC3339), cause)
		return
	}
	p.fail(rec, tries, fmt.Errorf("retries exhausted: %w", cause))
}

// fail moves the record to its terminal failed state and triggers the
// fallback notification.
func (p *Publisher) fail(rec *models.ScheduleRecord, tries int, cause error) {
	if err := p.schedules.MarkFailed(rec.ID, tries, cause.Error()); err != nil {
		log.Errorf("[Scheduler] Marking record %s failed errored: %v", rec.UUID, err)
		return
	}
	log.Errorf("[Scheduler] Record %s permanently failed: %v", rec.UUID, cause)
	p.notifier.SendFallbackAlert(rec.UserID, rec, cause)
}

func (p *Publisher) backoff(tries int) time.Duration {
	d := p.backoffBase
	for i := 1; i < tries; i++ {
		d *= 2
	}
	return d
}

func postContent(rec *models.ScheduleRecord) platforms.PostContent {
	return platforms.PostContent{
		Body:        rec.Body,
		Title:       rec.Title,
		Description: rec.Description,
		AssetURL:    rec.AssetURL,
	}
}
