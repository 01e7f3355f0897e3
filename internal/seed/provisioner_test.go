package seed

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/profile"
	"github.com/louisbranch/authserver/internal/storage"
)

// fakeEnroller mimics the onboarding core: a successful enrollment lands in
// the backing store, a failed one leaves nothing behind.
type fakeEnroller struct {
	store  *memStore
	failAt int // 1-based record index to fail, 0 for none
	calls  int
}

func (f *fakeEnroller) Enroll(ctx context.Context, c account.Candidate, p profile.Payload) (account.Account, error) {
	f.calls++
	if f.failAt != 0 && f.calls == f.failAt {
		return account.Account{}, &profile.RemoteError{Detail: "profile service unavailable"}
	}
	a, err := account.New(c, nil, nil)
	if err != nil {
		return account.Account{}, err
	}
	f.store.accounts[a.ID] = a
	return a, nil
}

type memStore struct {
	accounts map[string]account.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]account.Account)}
}

func (s *memStore) Begin(ctx context.Context) (storage.Tx, error) {
	return nil, errors.New("not supported")
}

func (s *memStore) FindByID(ctx context.Context, id string) (account.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *memStore) FindByUsername(ctx context.Context, username string) (account.Account, error) {
	for _, a := range s.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return account.Account{}, storage.ErrNotFound
}

func (s *memStore) FindCredentials(ctx context.Context, username string) (account.Account, string, error) {
	return account.Account{}, "", storage.ErrNotFound
}

func (s *memStore) Update(ctx context.Context, a account.Account) error { return nil }

func (s *memStore) Delete(ctx context.Context, id string) error { return nil }

func (s *memStore) DeleteAllAccounts(ctx context.Context) error {
	s.accounts = make(map[string]account.Account)
	return nil
}

func newTestProvisioner(failAt int) (*Provisioner, *memStore) {
	store := newMemStore()
	enroller := &fakeEnroller{store: store, failAt: failAt}
	logger := log.New(io.Discard, "", 0)
	return New(enroller, store, NewGenerator(42), logger), store
}

func TestProvisionBatch(t *testing.T) {
	p, store := newTestProvisioner(0)

	results, err := p.ProvisionBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Ok() {
			t.Fatalf("record %d failed: %v", i+1, r.Err)
		}
	}
	if len(store.accounts) != 10 {
		t.Fatalf("expected 10 accounts, got %d", len(store.accounts))
	}
}

func TestProvisionBatchIsolatesFailures(t *testing.T) {
	p, store := newTestProvisioner(4)

	results, err := p.ProvisionBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	ok, failed := 0, 0
	for _, r := range results {
		if r.Ok() {
			ok++
		} else {
			failed++
		}
	}
	if ok != 9 || failed != 1 {
		t.Fatalf("expected 9 ok and 1 failed, got %d ok %d failed", ok, failed)
	}
	if results[3].Ok() {
		t.Fatal("expected record 4 to be the failed one")
	}
	if len(store.accounts) != 9 {
		t.Fatalf("expected 9 stored accounts, got %d", len(store.accounts))
	}
}

func TestProvisionBatchHonorsCancellation(t *testing.T) {
	p, _ := newTestProvisioner(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ProvisionBatch(ctx, 10)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestReseedIdempotence(t *testing.T) {
	p, store := newTestProvisioner(0)
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		if err := p.Reset(ctx); err != nil {
			t.Fatalf("reset: %v", err)
		}
		if _, err := p.ProvisionBatch(ctx, 7); err != nil {
			t.Fatalf("provision: %v", err)
		}
	}
	if len(store.accounts) != 7 {
		t.Fatalf("expected exactly 7 accounts after reseed, got %d", len(store.accounts))
	}
}

func TestGeneratorDeterminism(t *testing.T) {
	a := NewGenerator(7)
	b := NewGenerator(7)

	for i := 0; i < 5; i++ {
		ca, pa := a.Identity(i)
		cb, pb := b.Identity(i)
		if ca != cb {
			t.Fatalf("candidates diverged at %d: %+v vs %+v", i, ca, cb)
		}
		if pa != pb {
			t.Fatalf("payloads diverged at %d: %+v vs %+v", i, pa, pb)
		}
	}
}

func TestGeneratorProducesValidIdentities(t *testing.T) {
	g := NewGenerator(1)
	seen := make(map[string]bool)

	for i := 0; i < 20; i++ {
		c, p := g.Identity(i)
		if _, err := account.NormalizeCandidate(c); err != nil {
			t.Fatalf("identity %d invalid: %v", i, err)
		}
		if seen[c.Username] {
			t.Fatalf("duplicate username %q in batch", c.Username)
		}
		seen[c.Username] = true
		if p.DateOfBirth.After(time.Now()) {
			t.Fatalf("identity %d born in the future: %v", i, p.DateOfBirth)
		}
	}
}
