package store

import (
	"context"
	"log/slog"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
)

// VerdictRecorder is a dispatch.Observer appending every verdict to the
// store. Other stages are ignored.
type VerdictRecorder struct {
	store *Store
}

// NewVerdictRecorder creates a recorder writing to s.
func NewVerdictRecorder(s *Store) *VerdictRecorder {
	return &VerdictRecorder{store: s}
}

// Observe implements dispatch.Observer. Write failures are logged; they
// never change the verdict returned to the caller.
func (r *VerdictRecorder) Observe(ctx context.Context, ev dispatch.Event) {
	if ev.Stage != dispatch.StageInterpreted {
		return
	}
	rec := RecordFromEvent(ev)
	if err := r.store.WriteVerdict(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("failed to record verdict",
			"token", ev.Token,
			"app", ev.App,
			"error", err,
		)
	}
}

// RecordFromEvent converts an interpreted-stage event to a verdict record.
func RecordFromEvent(ev dispatch.Event) ir.VerdictRecord {
	rec := ir.VerdictRecord{
		Seq:          ev.Seq,
		Token:        ev.Token,
		InvocationID: ev.InvocationID,
		App:          ev.App,
		EntryType:    ev.EntryType,
		EntryAddress: ev.EntryAddress,
		Function:     ev.Function,
		Outcome:      ev.Outcome,
		Reason:       ev.Reason,
	}
	if ev.Module != (ir.ModuleIdentity{}) {
		rec.Module = ev.Module.Module
	}
	return rec
}
