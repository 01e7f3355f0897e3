// Package seed parses configuration for the bulk-provisioning command and
// runs it.
package seed

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/authserver/internal/flow"
	"github.com/louisbranch/authserver/internal/oidc"
	"github.com/louisbranch/authserver/internal/platform/config"
	platformgrpc "github.com/louisbranch/authserver/internal/platform/grpc"
	"github.com/louisbranch/authserver/internal/profile/profilegrpc"
	"github.com/louisbranch/authserver/internal/seed"
	"github.com/louisbranch/authserver/internal/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath      string `env:"AUTHSERVER_DB_PATH" envDefault:"data/authserver.db"`
	ProfileAddr string `env:"AUTHSERVER_PROFILE_ADDR" envDefault:"localhost:9090"`
	RNGSeed     int64  `env:"AUTHSERVER_SEED_RNG" envDefault:"1"`

	Count int
	Reset bool
}

// ParseConfig parses environment variables and flags into a Config. Reset is
// flag-only: clearing the store never happens implicitly.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.IntVar(&cfg.Count, "n", 10, "Number of accounts to provision")
	fs.BoolVar(&cfg.Reset, "reset", false, "Clear all accounts and sessions before provisioning")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database")
	fs.StringVar(&cfg.ProfileAddr, "profile-addr", cfg.ProfileAddr, "The profile service gRPC address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Count < 0 {
		return Config{}, fmt.Errorf("invalid count %d", cfg.Count)
	}
	return cfg, nil
}

// Run provisions the batch and reports the outcome.
func Run(ctx context.Context, cfg Config) error {
	logger := log.Default()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer store.Close()

	conn, err := platformgrpc.DialWithHealth(ctx, cfg.ProfileAddr, 30*time.Second, logger.Printf,
		platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("dial profile service: %w", err)
	}
	defer conn.Close()

	// Seeding never resolves interactions; an empty registry suffices.
	registry, err := oidc.ParseClientRegistry(nil)
	if err != nil {
		return err
	}
	interactions := oidc.NewStore(store.DB(), registry, 0)

	flows := flow.New(store, store, profilegrpc.New(conn), interactions, logger)
	provisioner := seed.New(flows, store, seed.NewGenerator(cfg.RNGSeed), logger)

	if cfg.Reset {
		if err := provisioner.Reset(ctx); err != nil {
			return err
		}
	}

	results, err := provisioner.ProvisionBatch(ctx, cfg.Count)
	if err != nil {
		return err
	}

	ok := 0
	for _, r := range results {
		if r.Ok() {
			ok++
		}
	}
	logger.Printf("seed finished: %d provisioned, %d failed", ok, len(results)-ok)
	return nil
}
