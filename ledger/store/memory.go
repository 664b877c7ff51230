// Package store provides an in-memory ledger.TxStore for tests and local runs.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/channel-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	channels map[ledger.ChannelID]ledger.Channel
	entries  map[ledger.ChannelID][]ledger.Entry
	sales    map[saleKey]ledger.Entry
}

// saleKey indexes sale entries. Sale ids are unique per owner.
type saleKey struct {
	owner  ledger.OwnerID
	saleID string
}

func NewMemory() *Memory {
	return &Memory{
		channels: make(map[ledger.ChannelID]ledger.Channel),
		entries:  make(map[ledger.ChannelID][]ledger.Entry),
		sales:    make(map[saleKey]ledger.Entry),
	}
}

func (m *Memory) InsertChannel(_ context.Context, ch ledger.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertChannelLocked(ch)
}

func (m *Memory) UpdateChannel(_ context.Context, ch ledger.Channel, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateChannelLocked(ch, expectedVersion)
}

func (m *Memory) GetChannel(_ context.Context, id ledger.ChannelID) (ledger.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getChannelLocked(id)
}

func (m *Memory) ListChannels(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listChannelsLocked(ownerID, false), nil
}

func (m *Memory) AllChannels(_ context.Context) ([]ledger.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listChannelsLocked("", true), nil
}

// AppendEntry adds a single entry. Append-only.
func (m *Memory) AppendEntry(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(e)
}

func (m *Memory) LoadEntries(_ context.Context, channelID ledger.ChannelID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(channelID), nil
}

func (m *Memory) LoadEntriesRange(_ context.Context, channelID ledger.ChannelID, from, to time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return inRange(m.entries[channelID], from, to), nil
}

func (m *Memory) LoadOwnerEntries(_ context.Context, ownerID ledger.OwnerID, from, to time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownerEntriesLocked(ownerID, from, to), nil
}

func (m *Memory) LatestEntry(_ context.Context, channelID ledger.ChannelID) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(channelID), nil
}

func (m *Memory) FindByReference(_ context.Context, ownerID ledger.OwnerID, refType ledger.ReferenceType, refID string) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(ownerID, refType, refID), nil
}

// Reset drops all channels and entries.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = make(map[ledger.ChannelID]ledger.Channel)
	m.entries = make(map[ledger.ChannelID][]ledger.Entry)
	m.sales = make(map[saleKey]ledger.Entry)
	return nil
}

// =============================================================================
// LOCKED HELPERS - callers hold m.mu
// =============================================================================

func (m *Memory) insertChannelLocked(ch ledger.Channel) error {
	if _, ok := m.channels[ch.ID]; ok {
		return &ledger.ConflictError{ChannelID: ch.ID, Reason: "channel already exists"}
	}
	m.channels[ch.ID] = ch
	return nil
}

func (m *Memory) updateChannelLocked(ch ledger.Channel, expectedVersion int64) error {
	cur, ok := m.channels[ch.ID]
	if !ok {
		return &ledger.NotFoundError{Resource: "channel", ID: string(ch.ID)}
	}
	if cur.Version != expectedVersion {
		return ledger.ErrVersionConflict
	}
	m.channels[ch.ID] = ch
	return nil
}

func (m *Memory) getChannelLocked(id ledger.ChannelID) (ledger.Channel, error) {
	ch, ok := m.channels[id]
	if !ok {
		return ledger.Channel{}, &ledger.NotFoundError{Resource: "channel", ID: string(id)}
	}
	return ch, nil
}

func (m *Memory) listChannelsLocked(ownerID ledger.OwnerID, all bool) []ledger.Channel {
	result := make([]ledger.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		if all || ch.OwnerID == ownerID {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) appendLocked(e ledger.Entry) error {
	if _, ok := m.channels[e.ChannelID]; !ok {
		return &ledger.NotFoundError{Resource: "channel", ID: string(e.ChannelID)}
	}
	if e.ReferenceType == ledger.RefSale {
		if _, dup := m.sales[saleKey{e.OwnerID, e.ReferenceID}]; dup {
			return ledger.ErrDuplicateReference
		}
	}

	entries := m.entries[e.ChannelID]

	// Binary search for insertion point
	i := sort.Search(len(entries), func(i int) bool {
		return ledger.EntryBefore(e, entries[i])
	})
	entries = append(entries, ledger.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.ChannelID] = entries

	if e.ReferenceType == ledger.RefSale {
		m.sales[saleKey{e.OwnerID, e.ReferenceID}] = e
	}
	return nil
}

func (m *Memory) loadLocked(channelID ledger.ChannelID) []ledger.Entry {
	result := make([]ledger.Entry, len(m.entries[channelID]))
	copy(result, m.entries[channelID])
	return result
}

func (m *Memory) ownerEntriesLocked(ownerID ledger.OwnerID, from, to time.Time) []ledger.Entry {
	var result []ledger.Entry
	for id, entries := range m.entries {
		if m.channels[id].OwnerID != ownerID {
			continue
		}
		result = append(result, inRange(entries, from, to)...)
	}
	sort.Slice(result, func(i, j int) bool { return ledger.EntryBefore(result[i], result[j]) })
	return result
}

func (m *Memory) latestLocked(channelID ledger.ChannelID) *ledger.Entry {
	entries := m.entries[channelID]
	if len(entries) == 0 {
		return nil
	}
	latest := entries[len(entries)-1]
	return &latest
}

func (m *Memory) findLocked(ownerID ledger.OwnerID, refType ledger.ReferenceType, refID string) *ledger.Entry {
	if refType == ledger.RefSale {
		if e, ok := m.sales[saleKey{ownerID, refID}]; ok {
			return &e
		}
		return nil
	}
	// Non-sale references are not indexed.
	for _, entries := range m.entries {
		for _, e := range entries {
			if e.OwnerID == ownerID && e.ReferenceType == refType && e.ReferenceID == refID {
				found := e
				return &found
			}
		}
	}
	return nil
}

func inRange(entries []ledger.Entry, from, to time.Time) []ledger.Entry {
	var result []ledger.Entry
	for _, e := range entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			result = append(result, e)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized by the store lock.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	channels map[ledger.ChannelID]ledger.Channel
	entries  map[ledger.ChannelID][]ledger.Entry
	sales    map[saleKey]ledger.Entry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	channels := make(map[ledger.ChannelID]ledger.Channel, len(tm.channels))
	for k, v := range tm.channels {
		channels[k] = v
	}
	entries := make(map[ledger.ChannelID][]ledger.Entry, len(tm.entries))
	for k, v := range tm.entries {
		entries[k] = append([]ledger.Entry{}, v...)
	}
	sales := make(map[saleKey]ledger.Entry, len(tm.sales))
	for k, v := range tm.sales {
		sales[k] = v
	}
	return memorySnapshot{channels: channels, entries: entries, sales: sales}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.channels = s.channels
	tm.entries = s.entries
	tm.sales = s.sales
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it calls the locked helpers directly.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) InsertChannel(_ context.Context, ch ledger.Channel) error {
	return tv.parent.insertChannelLocked(ch)
}

func (tv *txMemoryView) UpdateChannel(_ context.Context, ch ledger.Channel, expectedVersion int64) error {
	return tv.parent.updateChannelLocked(ch, expectedVersion)
}

func (tv *txMemoryView) GetChannel(_ context.Context, id ledger.ChannelID) (ledger.Channel, error) {
	return tv.parent.getChannelLocked(id)
}

func (tv *txMemoryView) ListChannels(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Channel, error) {
	return tv.parent.listChannelsLocked(ownerID, false), nil
}

func (tv *txMemoryView) AllChannels(_ context.Context) ([]ledger.Channel, error) {
	return tv.parent.listChannelsLocked("", true), nil
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e ledger.Entry) error {
	return tv.parent.appendLocked(e)
}

func (tv *txMemoryView) LoadEntries(_ context.Context, channelID ledger.ChannelID) ([]ledger.Entry, error) {
	return tv.parent.loadLocked(channelID), nil
}

func (tv *txMemoryView) LoadEntriesRange(_ context.Context, channelID ledger.ChannelID, from, to time.Time) ([]ledger.Entry, error) {
	return inRange(tv.parent.entries[channelID], from, to), nil
}

func (tv *txMemoryView) LoadOwnerEntries(_ context.Context, ownerID ledger.OwnerID, from, to time.Time) ([]ledger.Entry, error) {
	return tv.parent.ownerEntriesLocked(ownerID, from, to), nil
}

func (tv *txMemoryView) LatestEntry(_ context.Context, channelID ledger.ChannelID) (*ledger.Entry, error) {
	return tv.parent.latestLocked(channelID), nil
}

func (tv *txMemoryView) FindByReference(_ context.Context, ownerID ledger.OwnerID, refType ledger.ReferenceType, refID string) (*ledger.Entry, error) {
	return tv.parent.findLocked(ownerID, refType, refID), nil
}
