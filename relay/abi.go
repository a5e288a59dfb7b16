// Package relay implements the EVM-compatible downstream: ABI-encoding
// a batch of cell diffs or headers into the image-cell/ckb-light-client
// system contracts' update(...) calldata, then constructing, signing,
// and sending a legacy transaction carrying it, per spec §6.
package relay

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// OutPoint, Script, CellOutput, CellInfo, and BlockUpdate mirror the
// Solidity structs the image-cell system contract's update(...) ABI
// expects one-for-one; field names and order must match the JSON ABI
// below exactly since abi.Pack matches struct fields by name.
type OutPoint struct {
	TxHash common.Hash `json:"tx_hash"`
	Index  uint32      `json:"index"`
}

type Script struct {
	Args     []byte      `json:"args"`
	CodeHash common.Hash `json:"code_hash"`
	HashType uint8       `json:"hash_type"`
}

type CellOutput struct {
	Capacity uint64   `json:"capacity"`
	Lock     Script   `json:"lock"`
	Type     []Script `json:"type_"`
}

type CellInfo struct {
	OutPoint OutPoint   `json:"out_point"`
	Output   CellOutput `json:"output"`
	Data     []byte     `json:"data"`
}

type BlockUpdate struct {
	BlockNumber uint64     `json:"block_number"`
	TxInputs    []OutPoint `json:"tx_inputs"`
	TxOutputs   []CellInfo `json:"tx_outputs"`
}

// Header mirrors the ckb-light-client system contract's Header struct.
type Header struct {
	Version          uint32      `json:"version"`
	CompactTarget    uint32      `json:"compact_target"`
	Timestamp        uint64      `json:"timestamp"`
	Number           uint64      `json:"number"`
	Epoch            uint64      `json:"epoch"`
	ParentHash       common.Hash `json:"parent_hash"`
	TransactionsRoot common.Hash `json:"transactions_root"`
	ProposalsHash    common.Hash `json:"proposals_hash"`
	ExtraHash        common.Hash `json:"extra_hash"`
	Dao              common.Hash `json:"dao"`
	Nonce            [16]byte    `json:"nonce"`
	BlockHash        common.Hash `json:"block_hash"`
	Extension        []byte      `json:"extension"`
}

const imageCellABIJSON = `[
	{"type":"function","name":"update","stateMutability":"nonpayable",
	 "inputs":[{"name":"blocks","type":"tuple[]","components":[
		{"name":"block_number","type":"uint64"},
		{"name":"tx_inputs","type":"tuple[]","components":[
			{"name":"tx_hash","type":"bytes32"},
			{"name":"index","type":"uint32"}
		]},
		{"name":"tx_outputs","type":"tuple[]","components":[
			{"name":"out_point","type":"tuple","components":[
				{"name":"tx_hash","type":"bytes32"},
				{"name":"index","type":"uint32"}
			]},
			{"name":"output","type":"tuple","components":[
				{"name":"capacity","type":"uint64"},
				{"name":"lock","type":"tuple","components":[
					{"name":"args","type":"bytes"},
					{"name":"code_hash","type":"bytes32"},
					{"name":"hash_type","type":"uint8"}
				]},
				{"name":"type_","type":"tuple[]","components":[
					{"name":"args","type":"bytes"},
					{"name":"code_hash","type":"bytes32"},
					{"name":"hash_type","type":"uint8"}
				]}
			]},
			{"name":"data","type":"bytes"}
		]}
	 ]}],
	 "outputs":[]}
]`

const ckbLightClientABIJSON = `[
	{"type":"function","name":"update","stateMutability":"nonpayable",
	 "inputs":[{"name":"headers","type":"tuple[]","components":[
		{"name":"version","type":"uint32"},
		{"name":"compact_target","type":"uint32"},
		{"name":"timestamp","type":"uint64"},
		{"name":"number","type":"uint64"},
		{"name":"epoch","type":"uint64"},
		{"name":"parent_hash","type":"bytes32"},
		{"name":"transactions_root","type":"bytes32"},
		{"name":"proposals_hash","type":"bytes32"},
		{"name":"extra_hash","type":"bytes32"},
		{"name":"dao","type":"bytes32"},
		{"name":"nonce","type":"bytes16"},
		{"name":"block_hash","type":"bytes32"},
		{"name":"extension","type":"bytes"}
	 ]}],
	 "outputs":[]}
]`

var imageCellABI, ckbLightClientABI abi.ABI

func init() {
	var err error
	imageCellABI, err = abi.JSON(strings.NewReader(imageCellABIJSON))
	if err != nil {
		panic("relay: invalid image-cell ABI: " + err.Error())
	}
	ckbLightClientABI, err = abi.JSON(strings.NewReader(ckbLightClientABIJSON))
	if err != nil {
		panic("relay: invalid ckb-light-client ABI: " + err.Error())
	}
}

// EncodeBlockUpdate packs UpdateCall{blocks} for the image-cell contract.
func EncodeBlockUpdate(blocks []BlockUpdate) ([]byte, error) {
	return imageCellABI.Pack("update", blocks)
}

// EncodeHeaderUpdate packs UpdateCall{headers} for the ckb-light-client contract.
func EncodeHeaderUpdate(headers []Header) ([]byte, error) {
	return ckbLightClientABI.Pack("update", headers)
}

// systemAddress builds a 20-byte system contract address: 19 bytes of
// 0xff followed by a one-byte service selector, per spec §6.
func systemAddress(selector byte) common.Address {
	var addr common.Address
	for i := 0; i < 19; i++ {
		addr[i] = 0xff
	}
	addr[19] = selector
	return addr
}

// ImageCellAddress and CKBLightClientAddress are the two system
// contracts the relayer sends update(...) transactions to.
var (
	ImageCellAddress      = systemAddress(0x03)
	CKBLightClientAddress = systemAddress(0x02)
)
