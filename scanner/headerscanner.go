package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/axonweb3/ckb-emitter/chainclient"
	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/metrics"
	"github.com/axonweb3/ckb-emitter/submit"
	"github.com/ethereum/go-ethereum/log"
)

// HeaderStep bounds how far one HeaderScanner iteration advances, so a
// single submitted batch and the recovery cost after a crash both stay
// bounded.
const HeaderStep = 256

// HeaderScanner is the single long-running task that streams block
// headers to the downstream light client, independent of any cell
// filter.
type HeaderScanner struct {
	tip       *TipCell
	client    chainclient.ChainClient
	submitter submit.Submitter

	stopped atomic.Bool
}

func NewHeaderScanner(tip *TipCell, client chainclient.ChainClient, submitter submit.Submitter) *HeaderScanner {
	return &HeaderScanner{tip: tip, client: client, submitter: submitter}
}

func (s *HeaderScanner) Stop() { s.stopped.Store(true) }

func (s *HeaderScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(IdleTick)
	defer ticker.Stop()

	for {
		if s.stopped.Load() || s.submitter.IsClosed() || ctx.Err() != nil {
			return
		}

		worked, err := s.scanOnce(ctx)
		if err != nil {
			log.Error("header scanner: aborting task", "err", err)
			return
		}
		if s.stopped.Load() {
			return
		}
		if worked {
			continue
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// scanOnce fetches [old_tip.number, new_tip.number) ascending and
// submits it as one batch, deliberately leaving new_tip's own header
// unfetched here: it is picked up once the window that starts at
// new_tip opens, per the half-open range fixed as canonical.
func (s *HeaderScanner) scanOnce(ctx context.Context) (worked bool, err error) {
	chainTip, err := s.client.GetTip(ctx)
	if err != nil {
		return false, nil
	}
	oldTip := s.tip.Load()

	if chainTip.Number < SafetyOffset || chainTip.Number-SafetyOffset <= oldTip.Number {
		return false, nil
	}

	target := chainTip.Number - SafetyOffset
	if oldTip.Number+HeaderStep < target {
		target = oldTip.Number + HeaderStep
	}

	newHeader, err := s.client.GetHeaderByNumber(ctx, target)
	if err != nil {
		return false, nil
	}
	newTip := newHeader.BlockIdentifier()

	batch := make([]ckbmodel.Header, 0, newTip.Number-oldTip.Number)
	for n := oldTip.Number; n < newTip.Number; n++ {
		h, err := s.client.GetHeaderByNumber(ctx, n)
		if err != nil {
			return false, nil
		}
		batch = append(batch, h)
	}

	if ok := s.submitter.SubmitHeaders(ctx, batch); !ok {
		metrics.SubmitFailures.WithLabelValues("headers").Inc()
		s.stopped.Store(true)
		return true, nil
	}
	metrics.HeadersSubmitted.Add(float64(len(batch)))

	s.tip.Update(newTip)
	metrics.HeaderScanTip.Set(float64(newTip.Number))
	return true, nil
}
