// Package syncbridge propagates changes between the SoR and the mirror in
// both directions. Failed propagations are retried in-process, then parked
// in the durable retry queue.
package syncbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/mirror"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/retries"
	"github.com/dmitrijs2005/remindsync/internal/syncx"
	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/sethvargo/go-retry"
)

// Records is the slice of the Store Adapter the bridge writes through.
type Records interface {
	GetByID(ctx context.Context, id string) (*models.Reminder, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Reminder, error)
	SetExternalID(ctx context.Context, id, externalID string) (bool, error)
	ReplaceFromMirror(ctx context.Context, cur, incoming *models.Reminder) (*models.Reminder, error)
	InsertFromMirror(ctx context.Context, incoming *models.Reminder) (*models.Reminder, error)
	Delete(ctx context.Context, id, userID string) (*models.Reminder, error)
}

type Mirror interface {
	Create(ctx context.Context, doc *mirror.Document, origin string) (string, error)
	Upsert(ctx context.Context, doc *mirror.Document, origin string) error
	Delete(ctx context.Context, externalID, origin string) (bool, error)
	Get(ctx context.Context, externalID string) (*mirror.Document, error)
}

type Invalidator interface {
	Bump(ctx context.Context, userID string) error
}

// Scheduler is notified after every inbound write.
type Scheduler interface {
	Schedule(ctx context.Context, r *models.Reminder) error
	Cancel(id string)
}

type Options struct {
	// Attempts made in-process before a propagation is queued.
	Attempts uint64
	BaseDelay time.Duration
	// MaxAttempts bounds replays from the durable queue.
	MaxAttempts int
}

type Bridge struct {
	records Records
	mirror  Mirror
	cache   Invalidator
	sched   Scheduler
	queue   retries.Repository
	clk     clock.Clock
	opts    Options
	locks   *syncx.KeyedMutex
	log     logging.Logger
}

func New(records Records, m Mirror, cache Invalidator, sched Scheduler, queue retries.Repository, clk clock.Clock, opts Options, log logging.Logger) *Bridge {
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	return &Bridge{
		records: records,
		mirror:  m,
		cache:   cache,
		sched:   sched,
		queue:   queue,
		clk:     clk,
		opts:    opts,
		locks:   syncx.NewKeyedMutex(),
		log:     log.With("module", "syncbridge"),
	}
}

// SetScheduler wires the scheduler after construction; the scheduler itself
// depends on the bridge for mirroring occurrences.
func (b *Bridge) SetScheduler(s Scheduler) {
	b.sched = s
}

func withCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationID(ctx) != "" {
		return ctx
	}
	return logging.WithCorrelationID(ctx, uuid.NewString())
}

// attempt runs fn with exponential backoff while it fails transiently.
func (b *Bridge) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(b.opts.Attempts-1, retry.NewExponential(b.opts.BaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && common.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func permanent(err error) bool {
	var ve *common.ValidationError
	return errors.As(err, &ve)
}

// PushUpsert mirrors the current state of record id. Errors are queued and
// logged, never returned: the SoR write has already committed.
func (b *Bridge) PushUpsert(ctx context.Context, id string) {
	_ = b.SyncRecord(ctx, id)
}

// SyncRecord is PushUpsert that also reports the propagation error.
func (b *Bridge) SyncRecord(ctx context.Context, id string) error {
	ctx = withCorrelation(ctx)
	err := b.attempt(ctx, func(ctx context.Context) error { return b.upsertOnce(ctx, id) })
	if err == nil {
		return nil
	}
	b.park(ctx, &models.SyncRetry{Direction: models.DirectionOutbound, Op: models.OpUpsert, RecordID: id}, err)
	return err
}

// SyncDocument applies a mirror document to the SoR as an inbound change.
// Failures are queued and reported.
func (b *Bridge) SyncDocument(ctx context.Context, doc *mirror.Document) error {
	ctx = withCorrelation(ctx)
	c := mirror.Change{Kind: mirror.KindModify, ExternalID: doc.ExternalID, UserID: doc.UserID, Doc: doc}
	err := b.attempt(ctx, func(ctx context.Context) error { return b.applyInbound(ctx, c) })
	if err == nil {
		return nil
	}
	if perr := b.parkChange(ctx, c, err); perr != nil {
		b.log.Error(ctx, "inbound repair lost", "external_id", doc.ExternalID, "error", perr)
	}
	return err
}

// PushDelete removes the mirror document of a deleted record.
func (b *Bridge) PushDelete(ctx context.Context, rec *models.Reminder) {
	if rec.ExternalID == nil {
		return
	}
	ctx = withCorrelation(ctx)
	ext := *rec.ExternalID
	err := b.attempt(ctx, func(ctx context.Context) error { return b.deleteOnce(ctx, rec.ID, ext) })
	if err == nil {
		return
	}
	b.park(ctx, &models.SyncRetry{
		Direction: models.DirectionOutbound, Op: models.OpDelete,
		RecordID: rec.ID, UserID: rec.UserID, ExternalID: ext,
	}, err)
}

func (b *Bridge) upsertOnce(ctx context.Context, id string) error {
	unlock := b.locks.Lock(id)
	defer unlock()

	rec, err := b.records.GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	doc := ToDocument(rec)
	if rec.ExternalID != nil {
		return b.mirror.Upsert(ctx, doc, mirror.OriginBridge)
	}

	ext, err := b.mirror.Create(ctx, doc, mirror.OriginBridge)
	if err != nil {
		return err
	}
	ok, err := b.records.SetExternalID(ctx, id, ext)
	if err == nil && ok {
		b.bump(ctx, rec.UserID)
		b.log.Info(ctx, "record mirrored", "reminder_id", id, "external_id", ext)
		return nil
	}

	// Another writer linked the record first, or it is gone.
	if _, derr := b.mirror.Delete(ctx, ext, mirror.OriginBridge); derr != nil {
		b.log.Warn(ctx, "orphan mirror document left behind", "external_id", ext, "error", derr)
	}
	if err != nil && !errors.Is(err, common.ErrExternalIDTaken) {
		return err
	}
	cur, gerr := b.records.GetByID(ctx, id)
	if errors.Is(gerr, common.ErrorNotFound) {
		return nil
	}
	if gerr != nil {
		return gerr
	}
	if cur.ExternalID == nil {
		return fmt.Errorf("external id for %s was not recorded", id)
	}
	return b.mirror.Upsert(ctx, ToDocument(cur), mirror.OriginBridge)
}

func (b *Bridge) deleteOnce(ctx context.Context, id, externalID string) error {
	unlock := b.locks.Lock(id)
	defer unlock()
	_, err := b.mirror.Delete(ctx, externalID, mirror.OriginBridge)
	return err
}

// HandleChange applies one mirror change to the SoR. It is the handler of
// the inbound subscription; an error means the change could not even be
// queued and must be redelivered.
func (b *Bridge) HandleChange(ctx context.Context, c mirror.Change) error {
	ctx = withCorrelation(ctx)
	err := b.attempt(ctx, func(ctx context.Context) error { return b.applyInbound(ctx, c) })
	if err == nil {
		return nil
	}
	return b.parkChange(ctx, c, err)
}

func (b *Bridge) parkChange(ctx context.Context, c mirror.Change, err error) error {
	payload, merr := json.Marshal(c)
	if merr != nil {
		return merr
	}
	op := models.OpUpsert
	if c.Kind == mirror.KindRemove {
		op = models.OpDelete
	}
	return b.park(ctx, &models.SyncRetry{
		Direction: models.DirectionInbound, Op: op,
		UserID: c.UserID, ExternalID: c.ExternalID, Payload: payload,
	}, err)
}

func (b *Bridge) applyInbound(ctx context.Context, c mirror.Change) error {
	if c.Kind == mirror.KindRemove {
		return b.inboundRemove(ctx, c.ExternalID)
	}

	doc := c.Doc
	if doc == nil {
		d, err := b.mirror.Get(ctx, c.ExternalID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		doc = d
	}
	return b.inboundUpsert(ctx, doc)
}

func (b *Bridge) inboundUpsert(ctx context.Context, doc *mirror.Document) error {
	unlockExt := b.locks.Lock("ext:" + doc.ExternalID)
	defer unlockExt()

	cur, err := b.records.GetByExternalID(ctx, doc.ExternalID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	incoming := FromDocument(doc)
	var rec *models.Reminder
	if cur == nil {
		rec, err = b.records.InsertFromMirror(ctx, incoming)
		if err != nil {
			return err
		}
		b.log.Info(ctx, "record created from mirror", "reminder_id", rec.ID, "external_id", doc.ExternalID)
	} else {
		unlock := b.locks.Lock(cur.ID)
		defer unlock()

		if SameContent(cur, doc) {
			return nil
		}
		if cur.UpdatedAt.After(doc.UpdatedAt) {
			b.log.Warn(ctx, "overwriting newer record",
				"conflict", &common.SyncConflict{RecordID: cur.ID, ExternalID: doc.ExternalID, Winner: "mirror"})
		}
		rec, err = b.records.ReplaceFromMirror(ctx, cur, incoming)
		if err != nil {
			return err
		}
	}

	b.bump(ctx, rec.UserID)
	if b.sched != nil {
		if err := b.sched.Schedule(ctx, rec); err != nil {
			b.log.Warn(ctx, "reschedule after inbound write failed", "reminder_id", rec.ID, "error", err)
		}
	}
	return nil
}

func (b *Bridge) inboundRemove(ctx context.Context, externalID string) error {
	cur, err := b.records.GetByExternalID(ctx, externalID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	unlock := b.locks.Lock(cur.ID)
	defer unlock()

	if _, err := b.records.Delete(ctx, cur.ID, cur.UserID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if b.sched != nil {
		b.sched.Cancel(cur.ID)
	}
	b.bump(ctx, cur.UserID)
	b.log.Info(ctx, "record deleted from mirror", "reminder_id", cur.ID, "external_id", externalID)
	return nil
}

func (b *Bridge) bump(ctx context.Context, userID string) {
	if err := b.cache.Bump(ctx, userID); err != nil {
		b.log.Warn(ctx, "cache bump failed", "user_id", userID, "error", err)
	}
}

// park logs a failed propagation and stores it in the retry queue.
// Permanent failures are only logged.
func (b *Bridge) park(ctx context.Context, item *models.SyncRetry, cause error) error {
	cid := logging.CorrelationID(ctx)
	if permanent(cause) {
		b.log.Error(ctx, "propagation rejected", "direction", item.Direction, "op", item.Op,
			"reminder_id", item.RecordID, "external_id", item.ExternalID, "error", cause)
		return nil
	}

	now := b.clk.Now().UTC()
	item.ID = uuid.NewString()
	item.Attempts = 0
	item.MaxAttempts = b.opts.MaxAttempts
	item.NextAttemptAt = now.Add(b.opts.BaseDelay)
	item.LastError = cause.Error()
	item.Status = models.RetryPending
	item.CorrelationID = cid
	item.CreatedAt = now

	b.log.Warn(ctx, "propagation failed, queued for retry", "direction", item.Direction, "op", item.Op,
		"reminder_id", item.RecordID, "external_id", item.ExternalID, "retry_id", item.ID, "error", cause)
	if err := b.queue.Enqueue(ctx, item); err != nil {
		b.log.Error(ctx, "retry enqueue failed", "retry_id", item.ID, "error", err)
		return err
	}
	return nil
}

// Replay re-runs a queued propagation once.
func (b *Bridge) Replay(ctx context.Context, item *models.SyncRetry) error {
	if item.CorrelationID != "" {
		ctx = logging.WithCorrelationID(ctx, item.CorrelationID)
	}
	switch {
	case item.Direction == models.DirectionOutbound && item.Op == models.OpUpsert:
		return b.upsertOnce(ctx, item.RecordID)
	case item.Direction == models.DirectionOutbound && item.Op == models.OpDelete:
		return b.deleteOnce(ctx, item.RecordID, item.ExternalID)
	case item.Direction == models.DirectionInbound:
		var c mirror.Change
		if err := json.Unmarshal(item.Payload, &c); err != nil {
			return common.NewValidationError("payload", err.Error())
		}
		return b.applyInbound(ctx, c)
	}
	return common.NewValidationError("op", item.Direction+"/"+item.Op)
}
