package ledgerclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/bookpost/internal/journal"
)

const ProviderSandbox = "sandbox"

// Sandbox is an in-memory ledger for local runs. It deduplicates on idempotency key
// and rejects entries that do not balance, like the hosted ledgers do.
type Sandbox struct {
	mu       sync.Mutex
	seq      int
	byKey    map[string]string
	entries  map[string]JournalEntry
	requests int
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		byKey:   make(map[string]string),
		entries: make(map[string]JournalEntry),
	}
}

func (s *Sandbox) Provider() string { return ProviderSandbox }

func (s *Sandbox) Submit(ctx context.Context, entry JournalEntry, idempotencyKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", UnavailableError(0, "ledger request canceled", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		if docID, ok := s.byKey[key]; ok {
			return docID, nil
		}
	}

	if verr := journal.Validate(entry.Lines); verr != nil {
		return "", ValidationError(400, verr.Message)
	}

	s.seq++
	docID := fmt.Sprintf("SBX-%d", s.seq)
	s.entries[docID] = entry
	if key != "" {
		s.byKey[key] = docID
	}
	return docID, nil
}

// Documents returns how many distinct journal entries were created.
func (s *Sandbox) Documents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Requests returns how many submissions were received, including replays.
func (s *Sandbox) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Sandbox) Entry(docID string) (JournalEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[docID]
	return entry, ok
}
