package wallet

import (
	"context"

	"github.com/nutsack/nutsack/nip60"
)

// recordHistory publishes a history entry. The entry is informational,
// so a failure is logged and not returned: the ledger it describes
// is already published.
func (w *Wallet) recordHistory(
	ctx context.Context,
	direction nip60.Direction,
	amount uint64,
	unit string,
	refs []nip60.EventRef,
) {
	entry := nip60.HistoryEntry{Direction: direction, Amount: amount, Unit: unit, Refs: refs}
	event, err := nip60.NewHistoryEvent(ctx, w.signer, entry)
	if err == nil {
		err = w.publish(ctx, event)
	}
	if err != nil {
		w.logger.Error().
			Str("direction", string(direction)).
			Uint64("amount", amount).
			Err(err).
			Msg("could not publish history entry")
	}
}

// History returns the spending history, newest first. Entries that
// cannot be decrypted are skipped.
func (w *Wallet) History(ctx context.Context) ([]nip60.HistoryEntry, error) {
	events, err := w.fetch(ctx, nip60.HistoryFilter(w.signer.PublicKey()))
	if err != nil {
		return nil, err
	}

	entries, skipped := nip60.DecodeHistoryEvents(ctx, w.signer, events)
	for _, id := range skipped {
		w.logger.Warn().Str("event", id).Msg("skipping history event that could not be read")
	}
	return entries, nil
}

type HistorySummary struct {
	Entries int
	// per unit
	TotalIn  map[string]uint64
	TotalOut map[string]uint64
	Net      map[string]int64
}

func SummarizeHistory(entries []nip60.HistoryEntry) HistorySummary {
	summary := HistorySummary{
		Entries:  len(entries),
		TotalIn:  make(map[string]uint64),
		TotalOut: make(map[string]uint64),
		Net:      make(map[string]int64),
	}
	for _, entry := range entries {
		switch entry.Direction {
		case nip60.DirectionIn:
			summary.TotalIn[entry.Unit] += entry.Amount
			summary.Net[entry.Unit] += int64(entry.Amount)
		case nip60.DirectionOut:
			summary.TotalOut[entry.Unit] += entry.Amount
			summary.Net[entry.Unit] -= int64(entry.Amount)
		}
	}
	return summary
}

func (w *Wallet) HistorySummary(ctx context.Context) (HistorySummary, error) {
	entries, err := w.History(ctx)
	if err != nil {
		return HistorySummary{}, err
	}
	return SummarizeHistory(entries), nil
}
