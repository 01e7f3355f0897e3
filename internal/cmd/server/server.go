// Package server parses configuration for the authserver process and runs it.
package server

import (
	"context"
	"flag"
	"log"

	"github.com/louisbranch/authserver/internal/app"
	"github.com/louisbranch/authserver/internal/platform/config"
	"github.com/louisbranch/authserver/internal/platform/otel"
)

// Config holds authserver command configuration. Environment variables set
// the defaults; flags override them.
type Config struct {
	HTTPAddr    string `env:"AUTHSERVER_HTTP_ADDR" envDefault:"localhost:8080"`
	DBPath      string `env:"AUTHSERVER_DB_PATH" envDefault:"data/authserver.db"`
	ProfileAddr string `env:"AUTHSERVER_PROFILE_ADDR" envDefault:"localhost:9090"`
	// Clients is a JSON array of registered OIDC clients.
	Clients string `env:"AUTHSERVER_CLIENTS"`
}

// ParseConfig parses environment variables and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database")
	fs.StringVar(&cfg.ProfileAddr, "profile-addr", cfg.ProfileAddr, "The profile service gRPC address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the authserver and blocks until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "authserver")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("ERROR shutdown tracing: %v", err)
		}
	}()

	srv, err := app.New(ctx, app.Config{
		HTTPAddr:       cfg.HTTPAddr,
		DBPath:         cfg.DBPath,
		ProfileAddr:    cfg.ProfileAddr,
		ClientRegistry: []byte(cfg.Clients),
		Logger:         log.Default(),
	})
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
