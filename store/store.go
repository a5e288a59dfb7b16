// Package store persists the aggregate scan state — every cell
// filter's tip plus the header tip — as a single JSON document,
// written crash-safe via a write-to-tmp-then-rename sequence.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/axonweb3/ckb-emitter/scanner"
	"github.com/ethereum/go-ethereum/log"
)

const stateFileName = "scan_state"

// filterEntry is one (FilterKey, TipCell snapshot) pair as persisted;
// FilterKey round-trips through its own JSON tags, TipCell through its
// snapshot only.
type filterEntry struct {
	Filter ckbmodel.FilterKey       `json:"filter_key"`
	Tip    ckbmodel.BlockIdentifier `json:"tip"`
}

// document is the on-disk shape: a list rather than a JSON object
// keyed by filter, since FilterKey is not a valid JSON object key.
type document struct {
	CellStates  []filterEntry           `json:"cell_states"`
	HeaderState ckbmodel.BlockIdentifier `json:"header_state"`
}

// State is the in-memory aggregate StateStore dumps and loads:
// every registered filter's TipCell plus the single header TipCell.
type State struct {
	CellTips  map[string]*scanner.TipCell // keyed by FilterKey.ID()
	Filters   map[string]ckbmodel.FilterKey
	HeaderTip *scanner.TipCell
}

func newEmptyState(genesis ckbmodel.Header) *State {
	return &State{
		CellTips:  make(map[string]*scanner.TipCell),
		Filters:   make(map[string]ckbmodel.FilterKey),
		HeaderTip: scanner.NewTipCell(genesis.BlockIdentifier()),
	}
}

// StateStore owns the on-disk location of the persisted document.
type StateStore struct {
	dir string
}

func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir}
}

// Load reads the persisted document, or constructs a default state
// seeded from genesis if the file is absent, unreadable, or corrupt.
// It never returns an error: a broken persistence file must not stop
// the process from starting.
func (s *StateStore) Load(genesis ckbmodel.Header) *State {
	path := filepath.Join(s.dir, stateFileName)
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("store: failed to open state file, starting fresh", "path", path, "err", err)
		}
		return newEmptyState(genesis)
	}
	defer f.Close()

	var doc document
	data, err := io.ReadAll(f)
	if err != nil {
		log.Warn("store: failed to read state file, starting fresh", "path", path, "err", err)
		return newEmptyState(genesis)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn("store: corrupt state file, starting fresh", "path", path, "err", err)
		return newEmptyState(genesis)
	}

	st := newEmptyState(genesis)
	for _, entry := range doc.CellStates {
		id := entry.Filter.ID()
		st.Filters[id] = entry.Filter
		st.CellTips[id] = scanner.NewTipCell(entry.Tip)
	}
	if doc.HeaderState.Hash != (ckbmodel.BlockIdentifier{}).Hash || doc.HeaderState.Number != 0 {
		st.HeaderTip = scanner.NewTipCell(doc.HeaderState)
	}
	return st
}

// Dump persists state crash-safely: write the full document to
// <dir>/tmp/scan_state, fsync, then atomically move it over
// <dir>/scan_state (rename, falling back to copy+delete across
// filesystem boundaries).
func (s *StateStore) Dump(state *State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", s.dir, err)
	}
	tmpDir := filepath.Join(s.dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", tmpDir, err)
	}

	doc := document{HeaderState: state.HeaderTip.Load()}
	for id, filter := range state.Filters {
		doc.CellStates = append(doc.CellStates, filterEntry{
			Filter: filter,
			Tip:    state.CellTips[id].Load(),
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}

	tmpPath := filepath.Join(tmpDir, stateFileName)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("store: write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("store: fsync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w", tmpPath, err)
	}

	finalPath := filepath.Join(s.dir, stateFileName)
	return moveFile(tmpPath, finalPath)
}

// moveFile renames src to dst, falling back to copy-then-delete when
// rename fails (e.g. src and dst are on different devices).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("store: reopen %s for copy fallback: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: create %s for copy fallback: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("store: copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("store: fsync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
