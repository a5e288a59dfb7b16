package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// fixed per spec §6: the relayer never estimates gas or queries a fee
// market, it always spends exactly this much.
const (
	relayGasLimit = 21000
	relayGasPrice = 1
)

// Client sends image-cell and ckb-light-client update transactions to
// an EVM-compatible chain. It implements submit.Backend.
type Client struct {
	eth *ethclient.Client
	key *ecdsa.PrivateKey
}

// NewClient binds an already dialed EVM JSON-RPC client and the signing
// key that every outgoing transaction is signed with.
func NewClient(eth *ethclient.Client, key *ecdsa.PrivateKey) *Client {
	return &Client{eth: eth, key: key}
}

func (c *Client) SendCellUpdate(ctx context.Context, batch []ckbmodel.CellDiff) error {
	blocks := make([]BlockUpdate, 0, len(batch))
	for _, diff := range batch {
		blocks = append(blocks, BlockUpdate{
			BlockNumber: diff.Header.Number,
			TxInputs:    convertInputs(diff.Inputs),
			TxOutputs:   convertOutputs(diff.Outputs),
		})
	}
	data, err := EncodeBlockUpdate(blocks)
	if err != nil {
		return fmt.Errorf("relay: encode block update: %w", err)
	}
	return c.send(ctx, ImageCellAddress, data)
}

func (c *Client) SendHeaderUpdate(ctx context.Context, batch []ckbmodel.Header) error {
	headers := make([]Header, 0, len(batch))
	for _, h := range batch {
		headers = append(headers, convertHeader(h))
	}
	data, err := EncodeHeaderUpdate(headers)
	if err != nil {
		return fmt.Errorf("relay: encode header update: %w", err)
	}
	return c.send(ctx, CKBLightClientAddress, data)
}

// send builds, signs, and broadcasts one legacy transaction carrying
// data, fetching chain id and nonce fresh for every send (spec §6:
// "chain id and nonce fetched per send").
func (c *Client) send(ctx context.Context, to common.Address, data []byte) error {
	from := crypto.PubkeyToAddress(c.key.PublicKey)

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("relay: chain id: %w", err)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("relay: nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), relayGasLimit, big.NewInt(relayGasPrice), data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), c.key)
	if err != nil {
		return fmt.Errorf("relay: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("relay: send tx: %w", err)
	}
	log.Info("relay: sent transaction", "to", to, "hash", signed.Hash(), "nonce", nonce)
	return nil
}

func convertInputs(inputs []ckbmodel.OutPoint) []OutPoint {
	out := make([]OutPoint, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, OutPoint{TxHash: in.TxHash, Index: uint32(in.Index)})
	}
	return out
}

func convertOutputs(outputs []ckbmodel.OutputWithCellInfo) []CellInfo {
	out := make([]CellInfo, 0, len(outputs))
	for _, o := range outputs {
		var data []byte
		if o.CellInfo.Data != nil {
			data = o.CellInfo.Data.Content
		}
		var typeScript []Script
		if o.CellInfo.Output.Type != nil {
			typeScript = []Script{convertScript(*o.CellInfo.Output.Type)}
		}
		out = append(out, CellInfo{
			OutPoint: OutPoint{TxHash: o.OutPoint.TxHash, Index: uint32(o.OutPoint.Index)},
			Output: CellOutput{
				Capacity: uint64(o.CellInfo.Output.Capacity),
				Lock:     convertScript(o.CellInfo.Output.Lock),
				Type:     typeScript,
			},
			Data: data,
		})
	}
	return out
}

func convertScript(s ckbmodel.Script) Script {
	var hashType uint8
	switch s.HashType {
	case ckbmodel.HashTypeData:
		hashType = 0
	case ckbmodel.HashTypeType:
		hashType = 1
	case ckbmodel.HashTypeData1:
		hashType = 2
	}
	return Script{Args: s.Args, CodeHash: s.CodeHash, HashType: hashType}
}

func convertHeader(h ckbmodel.Header) Header {
	var nonce [16]byte
	h.Nonce.FillBytes(nonce[:])
	return Header{
		Version:          uint32(h.Version),
		CompactTarget:    uint32(h.CompactTarget),
		Timestamp:        uint64(h.Timestamp),
		Number:           h.Number,
		Epoch:            uint64(h.Epoch),
		ParentHash:       h.ParentHash,
		TransactionsRoot: h.TransactionsRoot,
		ProposalsHash:    h.ProposalsHash,
		ExtraHash:        h.ExtraHash,
		Dao:              h.Dao,
		Nonce:            nonce,
		BlockHash:        h.Hash,
		Extension:        h.Extension,
	}
}
