package submit

import (
	"context"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// SubscriptionSubmitter pushes batches as JSON-RPC subscription
// notifications to one connected websocket client, via go-ethereum's
// rpc.Notifier/Subscription pair (notify per batch, watch the
// subscription's error channel for close). Empty batches
// are treated as success without sending anything, per spec §4.C.
type SubscriptionSubmitter struct {
	notifier *gethrpc.Notifier
	sub      *gethrpc.Subscription
}

func NewSubscriptionSubmitter(notifier *gethrpc.Notifier, sub *gethrpc.Subscription) *SubscriptionSubmitter {
	return &SubscriptionSubmitter{notifier: notifier, sub: sub}
}

func (s *SubscriptionSubmitter) SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool {
	if len(batch) == 0 {
		return true
	}
	return s.notifier.Notify(s.sub.ID, batch) == nil && !s.IsClosed()
}

func (s *SubscriptionSubmitter) SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool {
	if len(batch) == 0 {
		return true
	}
	return s.notifier.Notify(s.sub.ID, batch) == nil && !s.IsClosed()
}

// IsClosed reflects whether the client has unsubscribed or the
// connection dropped.
func (s *SubscriptionSubmitter) IsClosed() bool {
	select {
	case <-s.sub.Err():
		return true
	default:
		return false
	}
}

var _ Submitter = (*SubscriptionSubmitter)(nil)
