package ledger

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// fileRecord is one ndjson line persisted by FileLog. PolicyData is the
// codec-encoded payload needed to reconstruct a live Policy on load.
type fileRecord struct {
	Index         int             `json:"index"`
	PolicyTypeID  string          `json:"policy_type_id"`
	PolicyName    string          `json:"policy_name"`
	PolicyDesc    string          `json:"policy_description"`
	PolicyPrio    int             `json:"policy_priority"`
	EffectiveAt   time.Time       `json:"effective_at"`
	PreviousHash  string          `json:"previous_hash"`
	RootChainHash string          `json:"root_chain_hash"`
	Signature     string          `json:"signature"`
	PolicyData    json.RawMessage `json:"policy_data"`
}

// FileLog is a Log backed by an append-only newline-delimited JSON file.
// Every Append is fsynced before it returns. Loading tolerates a torn
// write at the tail: the first line that fails to parse or fails its
// chain link truncates the in-memory log at that point rather than
// aborting the whole load, on the assumption that only the very last
// write could have been interrupted mid-flush.
type FileLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	signer Signer
	codec  PolicyCodec
	seals  []*Seal

	verifyCached bool
	verifyErr    error
}

// OpenFileLog opens (creating if absent) the ndjson file at path and
// replays it into memory, truncating at the first malformed or
// chain-broken record.
func OpenFileLog(path string, signer Signer, codec PolicyCodec) (*FileLog, error) {
	if signer == nil {
		signer = SHA256Signer{}
	}
	if codec == nil {
		codec = NewFuncCodec()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ledger: open file log: %w", err)
	}

	l := &FileLog{path: path, file: f, signer: signer, codec: codec}
	if err := l.load(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *FileLog) load() error {
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("ledger: seek file log: %w", err)
	}

	scanner := bufio.NewScanner(l.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var seals []*Seal
	var previous *Seal
	var validBytes int64

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			validBytes += 1
			continue
		}

		seal, ok := l.decodeRecord(line)
		if !ok {
			break
		}
		if err := seal.VerifyLink(previous, l.signer); err != nil {
			break
		}

		seals = append(seals, seal)
		previous = seal
		validBytes += int64(len(line)) + 1
	}

	if err := l.file.Truncate(validBytes); err != nil {
		return fmt.Errorf("ledger: truncate torn tail: %w", err)
	}
	if _, err := l.file.Seek(validBytes, 0); err != nil {
		return fmt.Errorf("ledger: seek past replay: %w", err)
	}

	l.seals = seals
	return nil
}

func (l *FileLog) decodeRecord(line []byte) (*Seal, bool) {
	var rec fileRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, false
	}

	policy, err := l.codec.Decode(rec.PolicyTypeID, rec.PolicyData)
	if err != nil {
		return nil, false
	}

	seal := &Seal{
		Index:        rec.Index,
		PolicyTypeID: rec.PolicyTypeID,
		PolicyName:   rec.PolicyName,
		PolicyDesc:   rec.PolicyDesc,
		PolicyPrio:   rec.PolicyPrio,
		EffectiveAt:  rec.EffectiveAt.UTC(),
		Policy:       policy,
	}
	if !decodeHash(rec.PreviousHash, &seal.PreviousHash) {
		return nil, false
	}
	if !decodeHash(rec.RootChainHash, &seal.RootChainHash) {
		return nil, false
	}
	if rec.Signature == "" || !decodeHash(rec.Signature, &seal.Signature) {
		return nil, false
	}
	return seal, true
}

// decodeHash fills dst from a hex string; an empty string leaves dst all
// zeros, which is how a genesis previous_hash and an omitted
// root_chain_hash are persisted.
func decodeHash(s string, dst *[32]byte) bool {
	if s == "" {
		return true
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(dst) {
		return false
	}
	copy(dst[:], raw)
	return true
}

func (l *FileLog) Append(policy Policy, effectiveAt time.Time) (*Seal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var previous *Seal
	if len(l.seals) > 0 {
		previous = l.seals[len(l.seals)-1]
	}

	seal, err := NewSeal(len(l.seals), policy, effectiveAt, previous, l.signer, [32]byte{})
	if err != nil {
		return nil, err
	}

	policyData, err := l.codec.Encode(policy)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode policy payload: %w", err)
	}

	rec := fileRecord{
		Index:         seal.Index,
		PolicyTypeID:  seal.PolicyTypeID,
		PolicyName:    seal.PolicyName,
		PolicyDesc:    seal.PolicyDesc,
		PolicyPrio:    seal.PolicyPrio,
		EffectiveAt:   seal.EffectiveAt,
		PreviousHash:  fmt.Sprintf("%x", seal.PreviousHash),
		RootChainHash: fmt.Sprintf("%x", seal.RootChainHash),
		Signature:     fmt.Sprintf("%x", seal.Signature),
		PolicyData:    policyData,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal seal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return nil, fmt.Errorf("ledger: write seal record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return nil, fmt.Errorf("ledger: fsync seal record: %w", err)
	}

	l.seals = append(l.seals, seal)
	l.verifyCached = false
	return seal, nil
}

func (l *FileLog) GetPolicyAt(ts time.Time) (Policy, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := sort.Search(len(l.seals), func(i int) bool {
		return l.seals[i].EffectiveAt.After(ts)
	})
	if idx == 0 {
		return nil, false
	}
	return l.seals[idx-1].Policy, true
}

func (l *FileLog) GetAllSeals() []*Seal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Seal, len(l.seals))
	copy(out, l.seals)
	return out
}

func (l *FileLog) VerifyChain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.verifyCached {
		return l.verifyErr
	}

	var previous *Seal
	for _, s := range l.seals {
		if err := s.VerifyLink(previous, l.signer); err != nil {
			l.verifyErr = err
			l.verifyCached = true
			return err
		}
		previous = s
	}
	l.verifyErr = nil
	l.verifyCached = true
	return nil
}

// InvalidateChainCache forces the next VerifyChain call to recompute.
func (l *FileLog) InvalidateChainCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verifyCached = false
}

// Close releases the underlying file handle.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
