// Package seed bulk-provisions synthetic accounts for development and test
// environments.
package seed

import (
	"context"
	"fmt"
	"log"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/profile"
	"github.com/louisbranch/authserver/internal/storage"
)

// Enroller runs one onboarding enrollment end to end.
type Enroller interface {
	Enroll(ctx context.Context, c account.Candidate, p profile.Payload) (account.Account, error)
}

// ProvisionResult records the outcome of one seeded record.
type ProvisionResult struct {
	Account account.Account
	Err     error
}

// Ok reports whether the record was provisioned.
func (r ProvisionResult) Ok() bool {
	return r.Err == nil
}

// Provisioner seeds batches of synthetic accounts through the same
// enrollment path the register flow uses.
type Provisioner struct {
	enroller Enroller
	store    storage.AccountStore
	gen      *Generator
	logger   *log.Logger
}

// New assembles a provisioner. The generator controls the synthetic
// identities; pass the same seed for reproducible batches.
func New(enroller Enroller, store storage.AccountStore, gen *Generator, logger *log.Logger) *Provisioner {
	return &Provisioner{enroller: enroller, store: store, gen: gen, logger: logger}
}

// ProvisionBatch enrolls n synthetic accounts serially, one transaction per
// record. A failed record is logged and recorded; it never blocks or rolls
// back the rest of the batch. Only context cancellation aborts early.
func (p *Provisioner) ProvisionBatch(ctx context.Context, n int) ([]ProvisionResult, error) {
	results := make([]ProvisionResult, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("provision batch aborted after %d records: %w", i, err)
		}

		candidate, payload := p.gen.Identity(i)
		created, err := p.enroller.Enroll(ctx, candidate, payload)
		if err != nil {
			p.logger.Printf("seed record %d (%s) failed: %v", i+1, candidate.Username, err)
			results = append(results, ProvisionResult{Err: err})
			continue
		}
		p.logger.Printf("seed record %d created account %s (%s)", i+1, created.ID, created.Username)
		results = append(results, ProvisionResult{Account: created})
	}
	return results, nil
}

// Reset clears every account and session before a reseed. Destructive; the
// seed command only calls it behind an explicit flag.
func (p *Provisioner) Reset(ctx context.Context) error {
	if err := p.store.DeleteAllAccounts(ctx); err != nil {
		return fmt.Errorf("reset accounts: %w", err)
	}
	p.logger.Print("seed reset: cleared all accounts and sessions")
	return nil
}
