// Package auditor reconciles the SoR and the mirror after the fact. A full
// sweep compares both universes keyed by externalId; an incremental sweep
// only looks at what changed since the last checkpoint.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/mirror"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/checkpoints"
	"github.com/dmitrijs2005/remindsync/internal/server/syncbridge"
	"github.com/jmhodges/clock"
)

type Records interface {
	ListAll(ctx context.Context) ([]*models.Reminder, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Reminder, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Reminder, error)
}

type Documents interface {
	List(ctx context.Context) ([]*mirror.Document, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*mirror.Document, error)
	Get(ctx context.Context, externalID string) (*mirror.Document, error)
}

// Repairer propagates one side onto the other.
type Repairer interface {
	SyncRecord(ctx context.Context, id string) error
	SyncDocument(ctx context.Context, doc *mirror.Document) error
}

type Archiver interface {
	Archive(ctx context.Context, r *Report) error
}

const checkpointName = "incremental"

type Auditor struct {
	records     Records
	docs        Documents
	repair      Repairer
	checkpoints checkpoints.Repository
	archiver    Archiver
	clk         clock.Clock
	skew        time.Duration
	log         logging.Logger
}

// New builds an Auditor. archiver may be nil. skew widens every incremental
// window to tolerate clock drift between writers.
func New(records Records, docs Documents, repair Repairer, cps checkpoints.Repository, archiver Archiver, clk clock.Clock, skew time.Duration, log logging.Logger) *Auditor {
	return &Auditor{
		records:     records,
		docs:        docs,
		repair:      repair,
		checkpoints: cps,
		archiver:    archiver,
		clk:         clk,
		skew:        skew,
		log:         log.With("module", "auditor"),
	}
}

// FullSweep compares every record with every document.
func (a *Auditor) FullSweep(ctx context.Context) (*Report, error) {
	rep := &Report{Kind: KindFull, StartedAt: a.clk.Now().UTC()}

	recs, err := a.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	docs, err := a.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	rep.Records, rep.Documents = len(recs), len(docs)

	byExt := make(map[string]*mirror.Document, len(docs))
	for _, d := range docs {
		byExt[d.ExternalID] = d
	}

	for _, r := range recs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var d *mirror.Document
		if r.ExternalID != nil {
			d = byExt[*r.ExternalID]
			delete(byExt, *r.ExternalID)
		}
		a.reconcile(ctx, rep, r, d)
	}
	for _, d := range byExt {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.reconcile(ctx, rep, nil, d)
	}

	a.finish(ctx, rep)
	return rep, nil
}

// IncrementalSweep reconciles what changed on either side since the last
// checkpoint. The checkpoint only advances when the sweep had no errors.
func (a *Auditor) IncrementalSweep(ctx context.Context) (*Report, error) {
	rep := &Report{Kind: KindIncremental, StartedAt: a.clk.Now().UTC()}

	var since time.Time
	cp, err := a.checkpoints.Get(ctx, checkpointName)
	switch {
	case err == nil:
		since = cp.SweptUntil.Add(-a.skew)
	case errors.Is(err, common.ErrorNotFound):
	default:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	recs, err := a.records.ListUpdatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	docs, err := a.docs.ListUpdatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	rep.Records, rep.Documents = len(recs), len(docs)

	seen := make(map[string]bool)
	for _, r := range recs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var d *mirror.Document
		if r.ExternalID != nil {
			seen[*r.ExternalID] = true
			d, err = a.docs.Get(ctx, *r.ExternalID)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				rep.fail(fmt.Errorf("load document %s: %w", *r.ExternalID, err))
				continue
			}
		}
		a.reconcile(ctx, rep, r, d)
	}
	for _, d := range docs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if seen[d.ExternalID] {
			continue
		}
		r, err := a.records.GetByExternalID(ctx, d.ExternalID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			rep.fail(fmt.Errorf("load record for %s: %w", d.ExternalID, err))
			continue
		}
		a.reconcile(ctx, rep, r, d)
	}

	if len(rep.Errors) == 0 {
		err := a.checkpoints.Save(ctx, &models.AuditCheckpoint{Name: checkpointName, SweptUntil: rep.StartedAt})
		if err != nil {
			rep.fail(fmt.Errorf("save checkpoint: %w", err))
		}
	}
	a.finish(ctx, rep)
	return rep, nil
}

// reconcile repairs one pair. Either side may be nil, not both.
func (a *Auditor) reconcile(ctx context.Context, rep *Report, r *models.Reminder, d *mirror.Document) {
	switch {
	case d == nil:
		a.outbound(ctx, rep, r.ID)
	case r == nil:
		a.inbound(ctx, rep, d)
	case syncbridge.SameContent(r, d):
		rep.InSync++
	case d.UpdatedAt.After(r.UpdatedAt):
		a.inbound(ctx, rep, d)
	default:
		a.outbound(ctx, rep, r.ID)
	}
}

func (a *Auditor) outbound(ctx context.Context, rep *Report, id string) {
	if err := a.repair.SyncRecord(ctx, id); err != nil {
		rep.fail(fmt.Errorf("record %s: %w", id, err))
		return
	}
	rep.Outbound = append(rep.Outbound, id)
}

func (a *Auditor) inbound(ctx context.Context, rep *Report, d *mirror.Document) {
	if err := a.repair.SyncDocument(ctx, d); err != nil {
		rep.fail(fmt.Errorf("document %s: %w", d.ExternalID, err))
		return
	}
	rep.Inbound = append(rep.Inbound, d.ExternalID)
}

func (a *Auditor) finish(ctx context.Context, rep *Report) {
	rep.Duration = a.clk.Now().UTC().Sub(rep.StartedAt)

	args := []any{"kind", rep.Kind, "records", rep.Records, "documents", rep.Documents,
		"in_sync", rep.InSync, "repaired", rep.Repaired(), "errors", len(rep.Errors), "duration", rep.Duration}
	if len(rep.Errors) > 0 {
		a.log.Warn(ctx, "audit finished with errors", append(args, "first_error", rep.Errors[0])...)
	} else {
		a.log.Info(ctx, "audit finished", args...)
	}

	if a.archiver == nil {
		return
	}
	if err := a.archiver.Archive(ctx, rep); err != nil {
		a.log.Warn(ctx, "audit report not archived", "kind", rep.Kind, "error", err)
	}
}
