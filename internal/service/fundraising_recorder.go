package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// FundraisingWriter persists launchpad events
type FundraisingWriter interface {
	SaveFundraisingEvent(ctx context.Context, f *models.FundraisingEvent) error
}

// FundraisingRecorder stores launchpad purchases, claims and fee withdrawals
type FundraisingRecorder struct {
	writer FundraisingWriter
}

// NewFundraisingRecorder creates a recorder
func NewFundraisingRecorder(writer FundraisingWriter) *FundraisingRecorder {
	return &FundraisingRecorder{writer: writer}
}

var fundraisingKinds = map[types.EventKind]types.FundraisingKind{
	types.EventTokensPurchased: types.FundraisingTokensPurchased,
	types.EventTokensClaimed:   types.FundraisingTokensClaimed,
	types.EventFeesWithdrawn:   types.FundraisingFeesWithdrawn,
}

// Record stores the event
func (r *FundraisingRecorder) Record(ctx context.Context, ev *types.ChainEvent) error {
	kind, ok := fundraisingKinds[ev.Kind]
	if !ok || ev.Fundraising == nil {
		return missingPayload(ev)
	}

	f := &models.FundraisingEvent{
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Kind:        kind,
		Participant: ev.Fundraising.Participant,
		Amount:      ev.Fundraising.Amount,
		Cost:        ev.Fundraising.Cost,
		BlockNumber: ev.BlockNumber,
		Timestamp:   time.Unix(ev.Timestamp, 0).UTC(),
	}
	if err := r.writer.SaveFundraisingEvent(ctx, f); err != nil {
		return apperrors.NewDatabaseError(fmt.Sprintf("save fundraising event %s/%d", ev.TxHash, ev.LogIndex), err)
	}
	return nil
}
