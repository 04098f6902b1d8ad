// Package ledger keeps the append-only, hash-chained journal of every
// event emitted by a committed transaction.
//
//   - One entry per emitted event, in emission order
//   - Each entry is hash-chained to its predecessor
//   - Rolled-back transactions never reach the journal
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const genesis = "genesis"

// Entry is an immutable, hash-chained journal record.
type Entry struct {
	Sequence    uint64            `json:"sequence"`
	TxID        string            `json:"tx_id"`
	Sender      string            `json:"sender"`
	Contract    string            `json:"contract"`
	Attributes  map[string]string `json:"attributes"`
	ContentHash string            `json:"content_hash"`
	PrevHash    string            `json:"prev_hash"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Journal is an append-only, hash-chained log.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		entries:  make([]Entry, 0),
		headHash: genesis,
		clock:    time.Now,
	}
}

// WithClock overrides clock for testing.
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

func contentHash(seq uint64, txID, sender, contract string, attrs map[string]string, prev string) (string, error) {
	// encoding/json sorts map keys, so the digest is stable.
	hashInput := struct {
		Seq      uint64            `json:"seq"`
		TxID     string            `json:"tx"`
		Sender   string            `json:"sender"`
		Contract string            `json:"contract"`
		Attrs    map[string]string `json:"attrs"`
		PrevHash string            `json:"prev"`
	}{seq, txID, sender, contract, attrs, prev}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Record is one event to be journaled.
type Record struct {
	Contract   string
	Attributes map[string]string
}

// Append adds an event to the journal and returns the stored entry.
func (j *Journal) Append(txID, sender, contract string, attrs map[string]string) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.chain(txID, sender, []Record{{Contract: contract, Attributes: attrs}})
	if err != nil {
		return Entry{}, err
	}
	j.extend(entries)
	return entries[0], nil
}

// Prepare builds the entries Append would add for records, chained from
// the current head, without changing the journal. Pass them to Extend
// once the transaction that produced them has committed.
func (j *Journal) Prepare(txID, sender string, records []Record) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.chain(txID, sender, records)
}

// Extend appends prepared entries. They must chain from the current head.
func (j *Journal) Extend(entries []Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	if first := entries[0]; first.PrevHash != j.headHash || first.Sequence != uint64(len(j.entries))+1 {
		return fmt.Errorf("entry %d does not extend head %s", first.Sequence, j.headHash)
	}
	j.extend(entries)
	return nil
}

// Restore loads persisted entries into an empty journal after verifying
// their chain.
func (j *Journal) Restore(entries []Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) > 0 {
		return fmt.Errorf("restore into non-empty journal (%d entries)", len(j.entries))
	}
	prev := genesis
	for i := range entries {
		e := &entries[i]
		if e.Attributes == nil {
			e.Attributes = map[string]string{}
		}
		if e.Sequence != uint64(i)+1 || e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d", i+1)
		}
		computed, err := contentHash(e.Sequence, e.TxID, e.Sender, e.Contract, e.Attributes, e.PrevHash)
		if err != nil {
			return err
		}
		if computed != e.ContentHash {
			return fmt.Errorf("hash mismatch at entry %d", i+1)
		}
		prev = e.ContentHash
	}
	j.extend(entries)
	return nil
}

func (j *Journal) chain(txID, sender string, records []Record) ([]Entry, error) {
	out := make([]Entry, 0, len(records))
	prev := j.headHash
	seq := uint64(len(j.entries))
	now := j.clock()
	for _, r := range records {
		copied := make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			copied[k] = v
		}
		seq++
		hash, err := contentHash(seq, txID, sender, r.Contract, copied, prev)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entry: %w", err)
		}
		out = append(out, Entry{
			Sequence:    seq,
			TxID:        txID,
			Sender:      sender,
			Contract:    r.Contract,
			Attributes:  copied,
			ContentHash: hash,
			PrevHash:    prev,
			Timestamp:   now,
		})
		prev = hash
	}
	return out, nil
}

func (j *Journal) extend(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	j.entries = append(j.entries, entries...)
	j.headHash = entries[len(entries)-1].ContentHash
}

// Get retrieves an entry by sequence number.
func (j *Journal) Get(seq uint64) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if seq == 0 || seq > uint64(len(j.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := j.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Length returns the number of entries.
func (j *Journal) Length() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Entries returns a snapshot of every entry.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Find returns the entries carrying attribute key with the given value.
func (j *Journal) Find(key, value string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Entry
	for _, e := range j.entries {
		if v, ok := e.Attributes[key]; ok && v == value {
			out = append(out, e)
		}
	}
	return out
}

// Verify checks the integrity of the entire chain.
func (j *Journal) Verify() (bool, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	prevHash := genesis
	for i, entry := range j.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := contentHash(entry.Sequence, entry.TxID, entry.Sender, entry.Contract, entry.Attributes, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to marshal entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}
