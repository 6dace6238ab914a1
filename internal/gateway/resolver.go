// Package gateway implements the admission pipeline for proxied requests:
// identity resolution from composite project keys, per-plan rate limiting,
// per-project CORS, credit metering, and upstream forwarding.
package gateway

import (
	"context"
	"errors"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/keycodec"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

// AccountSource is the persistence lookup the resolver performs per request.
type AccountSource interface {
	GetAccountWithProjects(ctx context.Context, id string) (store.Account, []store.Project, error)
}

// Resolver turns a raw composite key into a validated (account, project) pair.
type Resolver struct {
	store AccountSource
	codec *keycodec.Codec
}

// NewResolver creates a Resolver backed by the given store and codec.
func NewResolver(src AccountSource, codec *keycodec.Codec) *Resolver {
	return &Resolver{store: src, codec: codec}
}

// Resolve validates the key and returns its account and project.
// encrypted selects whether the key is codec output or a plaintext
// composite key. The embedded epoch must equal the project's stored
// epoch; a mismatch means the key was issued before the project was
// recreated and is no longer valid.
func (r *Resolver) Resolve(ctx context.Context, rawKey string, encrypted bool) (store.Account, store.Project, error) {
	var (
		key keycodec.CompositeKey
		err error
	)
	if encrypted {
		key, err = r.codec.Decode(rawKey)
	} else {
		key, err = keycodec.ParseCompositeKey(rawKey)
	}
	if err != nil {
		if errors.Is(err, keycodec.ErrMalformedCredential) {
			return store.Account{}, store.Project{}, apierror.BadRequest("malformed project key")
		}
		return store.Account{}, store.Project{}, err
	}

	account, projects, err := r.store.GetAccountWithProjects(ctx, key.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return store.Account{}, store.Project{}, apierror.NotFound("account not found")
		}
		return store.Account{}, store.Project{}, err
	}

	var project store.Project
	found := false
	for _, p := range projects {
		if p.ID == key.ProjectID {
			project = p
			found = true
			break
		}
	}
	if !found {
		return store.Account{}, store.Project{}, apierror.Forbidden("project does not belong to account")
	}

	if project.Epoch != key.Epoch {
		return store.Account{}, store.Project{}, apierror.Forbidden("key no longer valid")
	}

	return account, project, nil
}
