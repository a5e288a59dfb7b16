// Command emitter runs the CKB event emitter: it scans a CKB node's
// indexer for subscribed cell activity and block headers and relays
// them downstream, either to an EVM-compatible chain via signed
// transactions or to websocket subscribers.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Shopify/sarama"
	"github.com/axonweb3/ckb-emitter/chainclient"
	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/metrics"
	"github.com/axonweb3/ckb-emitter/relay"
	"github.com/axonweb3/ckb-emitter/rpcapi"
	"github.com/axonweb3/ckb-emitter/rpcerr"
	"github.com/axonweb3/ckb-emitter/store"
	"github.com/axonweb3/ckb-emitter/submit"
	"github.com/axonweb3/ckb-emitter/supervisor"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

var (
	ckbRPCFlag = cli.StringFlag{
		Name:  "ckb-rpc",
		Usage: "CKB node JSON-RPC endpoint",
		Value: "http://127.0.0.1:8114",
	}
	storeDirFlag = cli.StringFlag{
		Name:  "store-dir",
		Usage: "directory holding scan_state",
		Value: "./data",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "control-plane and subscription HTTP/WS listen address",
		Value: "127.0.0.1:8214",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Prometheus /metrics listen address, empty disables it",
		Value: "127.0.0.1:9100",
	}
	ethRPCFlag = cli.StringFlag{
		Name:  "eth-rpc",
		Usage: "EVM-compatible chain JSON-RPC endpoint, required in relayer mode",
	}
	privateKeyFlag = cli.StringFlag{
		Name:  "private-key",
		Usage: "hex-encoded secp256k1 key signing relayed transactions",
	}
	subscriptionOnlyFlag = cli.BoolFlag{
		Name:  "ws",
		Usage: "run in subscription-only mode: no relayer, filters are registered over websocket",
	}
	genesisNumberFlag = cli.Uint64Flag{
		Name:  "genesis-number",
		Usage: "block number seeding header_state when no store exists",
	}
	pprofAddrFlag = cli.StringFlag{
		Name:  "pprofaddr",
		Usage: "pprof HTTP server listening address, empty disables it",
	}
	kafkaBrokersFlag = cli.StringFlag{
		Name:  "kafka-brokers",
		Usage: "comma-separated Kafka broker addresses; selects the Kafka submitter instead of the relayer",
	}
	kafkaCellTopicFlag = cli.StringFlag{
		Name:  "kafka-cell-topic",
		Usage: "Kafka topic cell diff batches are published to",
		Value: "ckb-emitter-cells",
	}
	kafkaHeaderTopicFlag = cli.StringFlag{
		Name:  "kafka-header-topic",
		Usage: "Kafka topic header batches are published to",
		Value: "ckb-emitter-headers",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "emitter"
	app.Usage = "CKB blockchain event emitter"
	app.Flags = []cli.Flag{
		ckbRPCFlag, storeDirFlag, listenFlag, metricsAddrFlag,
		ethRPCFlag, privateKeyFlag, subscriptionOnlyFlag, genesisNumberFlag, pprofAddrFlag,
		kafkaBrokersFlag, kafkaCellTopicFlag, kafkaHeaderTopicFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw, err := chainclient.Dial(ctx, c.String(ckbRPCFlag.Name))
	if err != nil {
		return err
	}
	client := chainclient.NewRetrying(raw, rpcerr.NewLogAndExit())

	genesisHeader, err := client.GetHeaderByNumber(ctx, c.Uint64(genesisNumberFlag.Name))
	if err != nil {
		return errors.Wrap(err, "emitter: fetch genesis header")
	}

	stateStore := store.NewStateStore(c.String(storeDirFlag.Name))
	state := stateStore.Load(genesisHeader)

	var defaultSubmitter submit.Submitter
	switch {
	case c.Bool(subscriptionOnlyFlag.Name):
		defaultSubmitter = noopSubmitter{}
	case c.String(kafkaBrokersFlag.Name) != "":
		defaultSubmitter, err = newKafkaSubmitter(c)
		if err != nil {
			return err
		}
	default:
		defaultSubmitter, err = newRelayerSubmitter(ctx, c)
		if err != nil {
			return err
		}
	}

	sv := supervisor.New(state, stateStore, client, defaultSubmitter)
	sv.SpawnCells(ctx)
	sv.SpawnHeaderSync(ctx, defaultSubmitter)

	if addr := c.String(metricsAddrFlag.Name); addr != "" {
		go serveMetrics(addr)
	}
	if addr := c.String(pprofAddrFlag.Name); addr != "" {
		go servePprof(addr)
	}

	server := gethrpc.NewServer()
	if err := server.RegisterName("emitter", rpcapi.NewEmitterAPI(sv)); err != nil {
		return fmt.Errorf("emitter: register rpc api: %w", err)
	}
	go serveRPC(c.String(listenFlag.Name), server)

	go sv.Run(ctx)

	waitForSignal()
	log.Info("emitter: shutting down")
	cancel()
	return nil
}

func newRelayerSubmitter(ctx context.Context, c *cli.Context) (submit.Submitter, error) {
	ethURL := c.String(ethRPCFlag.Name)
	keyHex := c.String(privateKeyFlag.Name)
	if ethURL == "" || keyHex == "" {
		return nil, fmt.Errorf("emitter: -eth-rpc and -private-key are required outside -ws mode")
	}

	eth, err := ethclient.DialContext(ctx, ethURL)
	if err != nil {
		return nil, fmt.Errorf("emitter: dial eth rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("emitter: parse private key: %w", err)
	}

	backend := relay.NewClient(eth, key)
	return submit.NewRelayerSubmitter(backend), nil
}

// newKafkaSubmitter builds a sarama.SyncProducer the same way the
// teacher's chaindatafetcher Kafka broker does (Producer.Return.Successes
// on, MaxVersion), for deployments that want the emitter's output fed
// into a stream-processing pipeline instead of relayed on-chain.
func newKafkaSubmitter(c *cli.Context) (submit.Submitter, error) {
	brokers := strings.Split(c.String(kafkaBrokersFlag.Name), ",")

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Version = sarama.MaxVersion

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("emitter: dial kafka brokers: %w", err)
	}

	return submit.NewKafkaSubmitter(producer, c.String(kafkaCellTopicFlag.Name), c.String(kafkaHeaderTopicFlag.Name)), nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info("emitter: serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("emitter: metrics server stopped", "err", err)
	}
}

// servePprof exposes the net/http/pprof handlers registered by the
// blank import above, the same opt-in debug surface the teacher ships
// behind its own -pprofaddr flag.
func servePprof(addr string) {
	log.Info("emitter: serving pprof", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error("emitter: pprof server stopped", "err", err)
	}
}

func serveRPC(addr string, server *gethrpc.Server) {
	handler := server.WebsocketHandler([]string{"*"})
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	log.Info("emitter: serving control plane", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("emitter: control plane server stopped", "err", err)
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

// noopSubmitter backs the header scanner in -ws mode, where the real
// work happens on per-connection SubscriptionSubmitters spawned by
// rpcapi.Subscription; the supervisor's own startup-spawned header
// task has nothing to deliver to until a subscriber exists.
type noopSubmitter struct{}

func (noopSubmitter) SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool {
	return true
}

func (noopSubmitter) SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool {
	return true
}

func (noopSubmitter) IsClosed() bool { return false }
