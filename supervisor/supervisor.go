// Package supervisor owns scanner task lifecycle: spawning, cancelling,
// reaping finished tasks, and periodically checkpointing the aggregate
// state to disk. It is the only component that mutates the set of
// active filters.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/axonweb3/ckb-emitter/chainclient"
	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/metrics"
	"github.com/axonweb3/ckb-emitter/scanner"
	"github.com/axonweb3/ckb-emitter/store"
	"github.com/axonweb3/ckb-emitter/submit"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
)

// CheckpointInterval is how often Run dumps state and reaps finished
// scanner tasks.
const CheckpointInterval = 60 * time.Second

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Supervisor spawns/cancels CellScanner and HeaderScanner tasks,
// exposes the four control-plane operations, and checkpoints state.
type Supervisor struct {
	mu sync.Mutex

	state  *store.State
	store  *store.StateStore
	client chainclient.ChainClient

	defaultSubmitter submit.Submitter
	cellTasks        map[string]*task // keyed by FilterKey.ID()
	headerTask       *task
}

func New(state *store.State, st *store.StateStore, client chainclient.ChainClient, defaultSubmitter submit.Submitter) *Supervisor {
	return &Supervisor{
		state:            state,
		store:            st,
		client:           client,
		defaultSubmitter: defaultSubmitter,
		cellTasks:        make(map[string]*task),
	}
}

// SpawnCells starts a CellScanner for every filter already present in
// the loaded state, used once at startup.
func (sv *Supervisor) SpawnCells(ctx context.Context) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	for id, filter := range sv.state.Filters {
		sv.spawnCellLocked(ctx, id, filter, sv.state.CellTips[id], sv.defaultSubmitter)
	}
}

// SpawnHeaderSync starts the single HeaderScanner, used once at startup.
func (sv *Supervisor) SpawnHeaderSync(ctx context.Context, submitter submit.Submitter) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.spawnHeaderLocked(ctx, submitter)
}

func (sv *Supervisor) spawnCellLocked(ctx context.Context, id string, filter ckbmodel.FilterKey, tip *scanner.TipCell, submitter submit.Submitter) {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s := scanner.NewCellScanner(filter, tip, sv.client, submitter)
	go func() {
		defer close(done)
		s.Run(taskCtx)
	}()
	sv.cellTasks[id] = &task{cancel: cancel, done: done}
}

func (sv *Supervisor) spawnHeaderLocked(ctx context.Context, submitter submit.Submitter) {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s := scanner.NewHeaderScanner(sv.state.HeaderTip, sv.client, submitter)
	go func() {
		defer close(done)
		s.Run(taskCtx)
	}()
	sv.headerTask = &task{cancel: cancel, done: done}
}

// Run drives the periodic checkpoint/reap loop until ctx is cancelled,
// then performs one final dump before returning (the drop-guard
// equivalent spec §9 asks for).
func (sv *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sv.reap()
			sv.checkpoint()
		case <-ctx.Done():
			sv.checkpoint()
			return
		}
	}
}

func (sv *Supervisor) reap() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for id, t := range sv.cellTasks {
		if t.finished() {
			delete(sv.cellTasks, id)
			delete(sv.state.Filters, id)
			delete(sv.state.CellTips, id)
		}
	}
}

func (sv *Supervisor) checkpoint() {
	sv.mu.Lock()
	state := sv.state
	sv.mu.Unlock()

	timer := prometheus.NewTimer(metrics.CheckpointDuration)
	defer timer.ObserveDuration()

	if err := sv.store.Dump(state); err != nil {
		log.Error("supervisor: checkpoint dump failed", "err", err)
	}
}

// Register adds a new filter starting at start, spawning a CellScanner
// bound to the supervisor's default submitter. Returns false if the
// filter already exists or the chain tip is not past start.
func (sv *Supervisor) Register(ctx context.Context, filter ckbmodel.FilterKey, start uint64) bool {
	return sv.registerWith(ctx, filter, start, sv.defaultSubmitter)
}

// RegisterWithSubmitter is Register, but bound to an explicit
// submitter — used by the subscription dispatcher to attach a
// SubscriptionSubmitter instead of the default relayer.
func (sv *Supervisor) RegisterWithSubmitter(ctx context.Context, filter ckbmodel.FilterKey, start uint64, submitter submit.Submitter) bool {
	return sv.registerWith(ctx, filter, start, submitter)
}

func (sv *Supervisor) registerWith(ctx context.Context, filter ckbmodel.FilterKey, start uint64, submitter submit.Submitter) bool {
	id := filter.ID()

	sv.mu.Lock()
	defer sv.mu.Unlock()

	if _, exists := sv.state.Filters[id]; exists {
		return false
	}

	chainTip, err := sv.client.GetTip(ctx)
	if err != nil {
		return false
	}
	if chainTip.Number <= start {
		return false
	}

	header, err := sv.client.GetHeaderByNumber(ctx, start)
	if err != nil {
		return false
	}

	tip := scanner.NewTipCell(header.BlockIdentifier())
	sv.state.Filters[id] = filter
	sv.state.CellTips[id] = tip
	sv.spawnCellLocked(ctx, id, filter, tip, submitter)
	return true
}

// Delete removes a filter and cancels its scanner task, if any.
// Returns whether a filter by this key existed.
func (sv *Supervisor) Delete(filter ckbmodel.FilterKey) bool {
	id := filter.ID()

	sv.mu.Lock()
	defer sv.mu.Unlock()

	_, existed := sv.state.Filters[id]
	delete(sv.state.Filters, id)
	delete(sv.state.CellTips, id)

	if t, ok := sv.cellTasks[id]; ok {
		t.cancel()
		delete(sv.cellTasks, id)
	}
	return existed
}

// HeaderSyncStart replaces the header tip unconditionally once number
// clears the current tip — the one legal non-monotonic TipCell update,
// for an operator-initiated rewind/fast-forward.
func (sv *Supervisor) HeaderSyncStart(ctx context.Context, number uint64) bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if number < sv.state.HeaderTip.Load().Number {
		return false
	}

	header, err := sv.client.GetHeaderByNumber(ctx, number)
	if err != nil {
		return false
	}
	sv.state.HeaderTip.ForceSet(header.BlockIdentifier())
	return true
}

// HeaderTip exposes the shared header TipCell so the rpcapi package
// can attach extra HeaderScanner instances (one per websocket
// subscriber) without the supervisor tracking each one individually.
func (sv *Supervisor) HeaderTip() *scanner.TipCell {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state.HeaderTip
}

// Client exposes the shared ChainClient for the same reason.
func (sv *Supervisor) Client() chainclient.ChainClient {
	return sv.client
}

// Info is a snapshot of every tracked filter's tip plus the header tip.
type Info struct {
	CellTips   map[string]ckbmodel.BlockIdentifier
	HeaderTip  ckbmodel.BlockIdentifier
	FilterKeys map[string]ckbmodel.FilterKey
}

func (sv *Supervisor) Info() Info {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	info := Info{
		CellTips:   make(map[string]ckbmodel.BlockIdentifier, len(sv.state.CellTips)),
		FilterKeys: make(map[string]ckbmodel.FilterKey, len(sv.state.Filters)),
		HeaderTip:  sv.state.HeaderTip.Load(),
	}
	for id, tip := range sv.state.CellTips {
		info.CellTips[id] = tip.Load()
	}
	for id, filter := range sv.state.Filters {
		info.FilterKeys[id] = filter
	}
	return info
}
