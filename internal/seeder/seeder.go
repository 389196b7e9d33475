package seeder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"

	"github.com/pqminh/aibridge/internal/auth"
)

const (
	TestAPIKey    = "test-api-key-12345"
	TestProjectID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestAPIKey inserts a well-known development key. Failures are logged
// and ignored so repeated startups stay idempotent.
func SeedTestAPIKey(ctx context.Context, store auth.Store, log zerolog.Logger) {
	h := sha256.New()
	h.Write([]byte(TestAPIKey))
	keyHash := hex.EncodeToString(h.Sum(nil))

	apiKey := &auth.APIKey{
		ProjectID: TestProjectID,
		KeyHash:   keyHash,
		RateLimit: 1000000,
		Active:    true,
	}

	if err := store.Create(ctx, apiKey); err != nil {
		log.Info().Err(err).Msg("seeder: api key may already exist, skipping")
		return
	}
	log.Info().
		Str("key", TestAPIKey).
		Str("project_id", TestProjectID).
		Msg("seeder: test api key created")
}
