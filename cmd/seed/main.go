// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the dev admin (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"ssi-migration-bridge/internal/config"
	"ssi-migration-bridge/internal/db"
	"ssi-migration-bridge/internal/mapping/domain"
	mappingrepo "ssi-migration-bridge/internal/mapping/repository"
	"ssi-migration-bridge/internal/security"
	"ssi-migration-bridge/internal/ssi/did"
	ssistore "ssi-migration-bridge/internal/ssi/store"
)

const (
	devAdminEmail  = "dev@example.com"
	devHybridEmail = "hybrid@example.com"
	devPassword    = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	store := mappingrepo.NewPostgresStore(pool)

	existing, err := store.GetByEmail(ctx, devAdminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	// Admin with a plain email/password identity, still at the start of the
	// migration lifecycle.
	admin := &domain.Mapping{
		ID:             uuid.New().String(),
		TraditionalID:  devAdminEmail,
		Providers:      []string{"email"},
		Email:          devAdminEmail,
		PasswordHash:   passwordHash,
		MigrationPhase: domain.PhaseTraditional,
		Status:         domain.StatusActive,
		UserDetails: domain.UserDetails{
			FirstName:   "Dev",
			LastName:    "Admin",
			DisplayName: "Dev Admin",
			Roles:       []string{"admin"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(ctx, admin); err != nil {
		log.Fatalf("create dev admin: %v", err)
	}

	registry := did.NewSimulator(ssistore.NewPostgres(pool, nil), nil)

	// Bootstrap issuer DID for the bridge itself; point BRIDGE_ISSUER_DID at
	// the printed value so issued credentials resolve.
	issuerDID, _, err := registry.Create(ctx, "bridge", "web", nil)
	if err != nil {
		log.Fatalf("create issuer did: %v", err)
	}

	// A second user partway through migration: DID minted and wallet connected,
	// so phase derives to hybrid.
	hybridID := uuid.New().String()
	hybridDID, _, err := registry.Create(ctx, hybridID, "key", &did.CreateOptions{
		ServiceProperties: map[string]any{
			"email":       devHybridEmail,
			"displayName": "Hybrid User",
		},
	})
	if err != nil {
		log.Fatalf("create hybrid did: %v", err)
	}
	hybrid := &domain.Mapping{
		ID:              hybridID,
		TraditionalID:   devHybridEmail,
		Providers:       []string{"email", "saml"},
		Email:           devHybridEmail,
		PasswordHash:    passwordHash,
		DID:             hybridDID,
		DIDMethod:       "key",
		WalletConnected: true,
		MigrationPhase:  domain.DerivePhase(true, true),
		Status:          domain.StatusActive,
		UserDetails: domain.UserDetails{
			FirstName:   "Hybrid",
			LastName:    "User",
			DisplayName: "Hybrid User",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(ctx, hybrid); err != nil {
		log.Fatalf("create hybrid user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin login: %s / %s\n", devAdminEmail, devPassword)
	fmt.Printf("Hybrid login: %s / %s (DID %s)\n", devHybridEmail, devPassword, hybridDID)
	fmt.Printf("Bridge issuer DID: %s\n", issuerDID)
}
