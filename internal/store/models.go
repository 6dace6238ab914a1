package store

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Plan names accepted for an account. The plan selects the rate-limit
// bucket applied to the account's API keys.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Defaults applied to newly created accounts.
const (
	DefaultRPCCredits   = 100000
	DefaultProjectLimit = 3
)

// Account is a registered gateway user.
type Account struct {
	ID            string
	Email         string
	Name          string
	AuthProviders string // comma-separated provider names, e.g. "password,google"
	PasswordHash  string // empty for accounts without a local password
	Plan          string
	RPCCredits    int64
	ProjectLimit  int
	Verified      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Project is a credential scope under an account. Epoch is a random value
// fixed at creation and embedded in every composite key issued for the
// project; a key whose embedded epoch disagrees with the stored one is
// stale. WhitelistedDomain and DevMode drive the per-project CORS decision.
type Project struct {
	ID                string
	AccountID         string
	Name              string
	WhitelistedDomain string // empty means no browser origin is whitelisted
	DevMode           bool
	Epoch             int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewEpoch draws a random epoch for a new project. The value only has to
// be unpredictable enough that a stale key cannot guess its successor.
func NewEpoch() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]) % 1_000_000_000)
}
