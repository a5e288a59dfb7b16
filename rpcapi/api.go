// Package rpcapi is the thin control-plane surface binding four
// JSON-RPC commands 1:1 to Supervisor operations, plus a subscription
// dispatcher that spawns a scanner bound to a SubscriptionSubmitter for
// the lifetime of one websocket connection. Built on go-ethereum/rpc's
// server, whose subscription convention (a method returning
// (*rpc.Subscription, error), dispatched as "<namespace>_subscribe" /
// "<namespace>_unsubscribe" with the Go method name, first letter
// lowercased, as the first wire argument) serves it under the "emitter"
// namespace as emitter_subscribe("subscription", kind, req) and
// emitter_unsubscribe; no method named emitter_subscription is served.
package rpcapi

import (
	"context"
	"errors"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/scanner"
	"github.com/axonweb3/ckb-emitter/submit"
	"github.com/axonweb3/ckb-emitter/supervisor"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// EmitterAPI implements the Namespace "emitter" JSON-RPC API.
type EmitterAPI struct {
	sv *supervisor.Supervisor
}

func NewEmitterAPI(sv *supervisor.Supervisor) *EmitterAPI {
	return &EmitterAPI{sv: sv}
}

// Register binds to the "register" command.
func (api *EmitterAPI) Register(ctx context.Context, filter ckbmodel.FilterKey, start uint64) bool {
	return api.sv.Register(ctx, filter, start)
}

// Delete binds to the "delete" command.
func (api *EmitterAPI) Delete(filter ckbmodel.FilterKey) bool {
	return api.sv.Delete(filter)
}

// Info binds to the "info" command.
func (api *EmitterAPI) Info() supervisor.Info {
	return api.sv.Info()
}

// HeaderSyncStart binds to the "header_sync_start" command.
func (api *EmitterAPI) HeaderSyncStart(ctx context.Context, number uint64) bool {
	return api.sv.HeaderSyncStart(ctx, number)
}

// subscriptionRequest is the parameter shape for the "cell_filter" and
// "header_sync" subscription kinds.
type subscriptionRequest struct {
	Filter *ckbmodel.FilterKey `json:"filter_key,omitempty"`
	Start  uint64              `json:"start"`
}

// Subscription implements both subscription kinds spec §4.H names:
// kind == "cell_filter" spawns a CellScanner for filter starting at
// start; kind == "header_sync" attaches a HeaderScanner to the shared
// header TipCell, so it streams from the current header tip (start is
// not used for this kind). Either way the scanner is bound to a
// SubscriptionSubmitter tied to this connection's notifier, so the
// scanner stops the moment the client disconnects or unsubscribes.
func (api *EmitterAPI) Subscription(ctx context.Context, kind string, req subscriptionRequest) (*gethrpc.Subscription, error) {
	notifier, supported := gethrpc.NotifierFromContext(ctx)
	if !supported {
		return nil, gethrpc.ErrNotificationsUnsupported
	}

	sub := notifier.CreateSubscription()
	submitter := submit.NewSubscriptionSubmitter(notifier, sub)

	switch kind {
	case "cell_filter":
		if req.Filter == nil {
			return nil, errors.New("rpcapi: cell_filter subscription requires filter_key")
		}
		if ok := api.sv.RegisterWithSubmitter(context.Background(), *req.Filter, req.Start, submitter); !ok {
			return nil, errors.New("rpcapi: filter already registered or chain tip not past start")
		}
	case "header_sync":
		// Each subscriber gets its own HeaderScanner instance bound to
		// the shared HeaderTip and ChainClient: concurrent readers of
		// one TipCell are safe by construction, so fan-out needs no
		// coordination beyond that.
		hs := scanner.NewHeaderScanner(api.sv.HeaderTip(), api.sv.Client(), submitter)
		taskCtx, cancel := context.WithCancel(context.Background())
		go func() {
			<-sub.Err()
			cancel()
		}()
		go hs.Run(taskCtx)
	default:
		return nil, errors.New("rpcapi: unknown subscription kind " + kind)
	}

	return sub, nil
}
