// Package ckbmodel defines the wire and domain types the emitter scans,
// groups, and relays: block identifiers, scripts, cells, headers, the
// subscription filter key, and the indexer search-key projection.
//
// Field encodings mirror the hex-everything convention CKB's own
// jsonrpc-types crate uses, expressed here with go-ethereum's common and
// hexutil packages so every 32-byte digest, address-shaped value, and
// byte blob round-trips through JSON the same way it does on the wire.
package ckbmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockIdentifier pairs a block number with its hash. It is the unit a
// TipCell snapshots and the unit every scan window is expressed in.
type BlockIdentifier struct {
	Number uint64      `json:"block_number"`
	Hash   common.Hash `json:"block_hash"`
}

// ScriptHashType mirrors ckb_jsonrpc_types::ScriptHashType.
type ScriptHashType string

const (
	HashTypeData  ScriptHashType = "data"
	HashTypeType  ScriptHashType = "type"
	HashTypeData1 ScriptHashType = "data1"
)

// Script is a CKB lock/type script.
type Script struct {
	CodeHash common.Hash    `json:"code_hash"`
	HashType ScriptHashType `json:"hash_type"`
	Args     hexutil.Bytes  `json:"args"`
}

// EstimatedMoleculeSize approximates the serialized size of the script as
// encoded by ckb_types::packed::Script, used only for the scanner's flush
// accounting, not for consensus-critical encoding.
func (s *Script) EstimatedMoleculeSize() int {
	if s == nil {
		return 0
	}
	// 32 (code_hash) + 1 (hash_type) + molecule table/vector overhead + args
	return 32 + 1 + 4 + len(s.Args)
}

// CellOutput is a CKB cell output (capacity, lock, optional type script).
type CellOutput struct {
	Capacity hexutil.Uint64 `json:"capacity"`
	Lock     Script         `json:"lock"`
	Type     *Script        `json:"type"`
}

// EstimatedMoleculeSize approximates ckb_types::packed::CellOutput::total_size().
func (o *CellOutput) EstimatedMoleculeSize() int {
	return 8 + o.Lock.EstimatedMoleculeSize() + o.Type.EstimatedMoleculeSize() + 4
}

// CellData is the raw cell data plus its CKB data hash.
type CellData struct {
	Hash    common.Hash   `json:"hash"`
	Content hexutil.Bytes `json:"content"`
}

// CellInfo bundles an output with its data, as returned for Output cells.
type CellInfo struct {
	Output CellOutput `json:"output"`
	Data   *CellData  `json:"data"`
}

// OutPoint identifies a cell by transaction hash and output index.
type OutPoint struct {
	TxHash common.Hash    `json:"tx_hash"`
	Index  hexutil.Uint32 `json:"index"`
}

// CellInput is a transaction input: the cell it consumes plus a since value.
type CellInput struct {
	PreviousOutput OutPoint       `json:"previous_output"`
	Since          hexutil.Uint64 `json:"since"`
}

// Uint128 is a 128-bit unsigned integer, hex-encoded on the wire like
// ckb_jsonrpc_types::Uint128 (and every other CKB numeric type).
type Uint128 struct{ big.Int }

func (u Uint128) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", "0x"+u.Text(16))), nil
}

func (u *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	if s == "" {
		s = "0"
	}
	_, ok := u.SetString(s, 16)
	if !ok {
		return fmt.Errorf("ckbmodel: invalid uint128 %q", s)
	}
	return nil
}

// Header is a full CKB block header, extended with its own hash and the
// optional extension field carried by the light-client relay payload.
type Header struct {
	Version          hexutil.Uint32 `json:"version"`
	CompactTarget    hexutil.Uint32 `json:"compact_target"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	Number           uint64         `json:"number"`
	Epoch            hexutil.Uint64 `json:"epoch"`
	ParentHash       common.Hash    `json:"parent_hash"`
	TransactionsRoot common.Hash    `json:"transactions_root"`
	ProposalsHash    common.Hash    `json:"proposals_hash"`
	ExtraHash        common.Hash    `json:"extra_hash"`
	Dao              common.Hash    `json:"dao"`
	Nonce            Uint128        `json:"nonce"`
	Hash             common.Hash    `json:"hash"`
	Extension        hexutil.Bytes  `json:"extension,omitempty"`
}

// BlockIdentifier projects a header down to the pair a TipCell tracks.
func (h Header) BlockIdentifier() BlockIdentifier {
	return BlockIdentifier{Number: h.Number, Hash: h.Hash}
}

// Transaction is the subset of a CKB transaction the scanner needs: its
// inputs (to resolve Input cell positions) and outputs/outputs_data (to
// resolve Output cell positions).
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	Inputs      []CellInput     `json:"inputs"`
	Outputs     []CellOutput    `json:"outputs"`
	OutputsData []hexutil.Bytes `json:"outputs_data"`
}

// CellType distinguishes an indexed cell position as an input or output.
type CellType string

const (
	CellTypeInput  CellType = "input"
	CellTypeOutput CellType = "output"
)

// GroupedCell is one (type, io_index) pair inside a grouped transaction.
type GroupedCell struct {
	Type  CellType       `json:"io_type"`
	Index hexutil.Uint32 `json:"io_index"`
}

// GroupedTx is the indexer's get_transactions response shape when
// group_by_transaction is true: every matching position of one
// transaction collected under a single record.
type GroupedTx struct {
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	TxIndex     hexutil.Uint32 `json:"tx_index"`
	Cells       []GroupedCell  `json:"cells"`
}

// Order is the indexer pagination order.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Pagination wraps a page of grouped transactions plus the cursor to
// resume from.
type Pagination struct {
	Objects    []GroupedTx   `json:"objects"`
	LastCursor hexutil.Bytes `json:"last_cursor"`
}

// Cell is a single indexed cell, as returned by get_cells (control plane
// only, not used by the core scan loop).
type Cell struct {
	Output      CellOutput     `json:"output"`
	OutputData  *hexutil.Bytes `json:"output_data"`
	OutPoint    OutPoint       `json:"out_point"`
	BlockNumber uint64         `json:"block_number"`
	TxIndex     hexutil.Uint32 `json:"tx_index"`
}

// CellPagination is the get_cells analogue of Pagination.
type CellPagination struct {
	Objects    []Cell        `json:"objects"`
	LastCursor hexutil.Bytes `json:"last_cursor"`
}

// CellsCapacity is the get_cells_capacity response.
type CellsCapacity struct {
	Capacity    hexutil.Uint64 `json:"capacity"`
	BlockHash   common.Hash    `json:"block_hash"`
	BlockNumber uint64         `json:"block_number"`
}

// ScriptType selects whether a filter matches on lock or type script.
type ScriptType string

const (
	ScriptTypeLock ScriptType = "lock"
	ScriptTypeType ScriptType = "type"
)

// ScriptSearchMode selects prefix or exact script matching. Prefix is
// the default per spec.
type ScriptSearchMode string

const (
	SearchModePrefix ScriptSearchMode = "prefix"
	SearchModeExact  ScriptSearchMode = "exact"
)

// Range is an inclusive-exclusive [from, to) range of uint64 values,
// used for script-length, data-length, capacity, and block-number
// filtering, matching ckb_jsonrpc_types's [Uint64; 2] idiom.
type Range [2]hexutil.Uint64

// FilterOpts narrows a FilterKey beyond its base script match.
type FilterOpts struct {
	Script              *Script `json:"script,omitempty"`
	ScriptLenRange      *Range  `json:"script_len_range,omitempty"`
	OutputDataLenRange  *Range  `json:"output_data_len_range,omitempty"`
	OutputCapacityRange *Range  `json:"output_capacity_range,omitempty"`
}

// FilterKey is the identity of a subscription: which script to watch,
// how to match it, and any extra narrowing filters.
type FilterKey struct {
	Script           Script           `json:"script"`
	ScriptType       ScriptType       `json:"script_type"`
	ScriptSearchMode ScriptSearchMode `json:"script_search_mode,omitempty"`
	Filter           *FilterOpts      `json:"filter,omitempty"`
}

// NormalizedSearchMode returns the effective search mode, defaulting to
// Prefix when unset, per spec §3.
func (k FilterKey) NormalizedSearchMode() ScriptSearchMode {
	if k.ScriptSearchMode == "" {
		return SearchModePrefix
	}
	return k.ScriptSearchMode
}

// ID is a stable content-addressed identity for a FilterKey, used as a
// map key everywhere a FilterKey needs to be hashed: the struct itself
// holds byte slices and pointers and is not Go-comparable, so identity
// is derived from its canonical JSON encoding instead.
func (k FilterKey) ID() string {
	// canonical encoding: Go's encoding/json already emits map-free,
	// deterministic field order for structs, so a direct marshal is
	// stable across calls for an identical value.
	k.ScriptSearchMode = k.NormalizedSearchMode()
	b, err := json.Marshal(k)
	if err != nil {
		// FilterKey fields are all JSON-safe by construction; a marshal
		// failure here indicates a programming error, not bad input.
		panic(fmt.Sprintf("ckbmodel: filter key is not serializable: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SearchKeyFilter is the upstream filter shape, with block_range injected
// by Project.
type SearchKeyFilter struct {
	Script              *Script `json:"script,omitempty"`
	ScriptLenRange      *Range  `json:"script_len_range,omitempty"`
	OutputDataLenRange  *Range  `json:"output_data_len_range,omitempty"`
	OutputCapacityRange *Range  `json:"output_capacity_range,omitempty"`
	BlockRange          *Range  `json:"block_range,omitempty"`
}

// SearchKey is the query sent to the indexer's get_transactions/get_cells
// methods.
type SearchKey struct {
	Script             Script           `json:"script"`
	ScriptType         ScriptType       `json:"script_type"`
	ScriptSearchMode   ScriptSearchMode `json:"script_search_mode,omitempty"`
	Filter             *SearchKeyFilter `json:"filter,omitempty"`
	WithData           *bool            `json:"with_data,omitempty"`
	GroupByTransaction *bool            `json:"group_by_transaction,omitempty"`
}

// Project turns a FilterKey plus a half-open-at-neither-end [from, to]
// block range into the SearchKey sent upstream: it preserves every
// field of the filter, injects block_range, and fixes
// group_by_transaction to true. with_data is deliberately left unset
// (the scanner resolves cell data itself via get_transaction).
func Project(key FilterKey, from, to uint64) SearchKey {
	groupByTx := true
	sk := SearchKey{
		Script:           key.Script,
		ScriptType:       key.ScriptType,
		ScriptSearchMode: key.NormalizedSearchMode(),
		Filter: &SearchKeyFilter{
			BlockRange: &Range{hexutil.Uint64(from), hexutil.Uint64(to)},
		},
		GroupByTransaction: &groupByTx,
	}
	if key.Filter != nil {
		sk.Filter.Script = key.Filter.Script
		sk.Filter.ScriptLenRange = key.Filter.ScriptLenRange
		sk.Filter.OutputDataLenRange = key.Filter.OutputDataLenRange
		sk.Filter.OutputCapacityRange = key.Filter.OutputCapacityRange
	}
	return sk
}

// CellDiff ("Submit") is the per-block batch of cell changes matching a
// filter: every entry in Inputs/Outputs belongs to a block with this
// Header's hash.
type CellDiff struct {
	Header  Header              `json:"header"`
	Inputs  []OutPoint          `json:"inputs"`
	Outputs []OutputWithCellInfo `json:"outputs"`
}

// OutputWithCellInfo pairs an output's location with its contents,
// mirroring the (OutPoint, CellInfo) tuple of spec §3.
type OutputWithCellInfo struct {
	OutPoint OutPoint `json:"out_point"`
	CellInfo CellInfo `json:"cell_info"`
}
