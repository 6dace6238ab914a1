package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/keycodec"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

type fakeAccountSource struct {
	accounts map[string]store.Account
	projects map[string][]store.Project
}

func newFakeAccountSource() *fakeAccountSource {
	return &fakeAccountSource{
		accounts: make(map[string]store.Account),
		projects: make(map[string][]store.Project),
	}
}

func (f *fakeAccountSource) GetAccountWithProjects(_ context.Context, id string) (store.Account, []store.Project, error) {
	account, ok := f.accounts[id]
	if !ok {
		return store.Account{}, nil, store.ErrAccountNotFound
	}
	return account, f.projects[id], nil
}

func (f *fakeAccountSource) add(account store.Account, projects ...store.Project) {
	f.accounts[account.ID] = account
	f.projects[account.ID] = projects
}

func testCodec(t *testing.T) *keycodec.Codec {
	t.Helper()
	key, err := keycodec.GenerateKey()
	require.NoError(t, err)
	codec, err := keycodec.NewCodec(key)
	require.NoError(t, err)
	return codec
}

func TestResolverResolvesEncryptedKey(t *testing.T) {
	src := newFakeAccountSource()
	src.add(
		store.Account{ID: "acct-1", Plan: store.PlanFree, RPCCredits: 500},
		store.Project{ID: "proj-1", AccountID: "acct-1", Epoch: 42},
	)
	codec := testCodec(t)
	resolver := NewResolver(src, codec)

	raw, err := codec.Encode(keycodec.CompositeKey{AccountID: "acct-1", Epoch: 42, ProjectID: "proj-1"})
	require.NoError(t, err)

	account, project, err := resolver.Resolve(context.Background(), raw, true)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", account.ID)
	assert.Equal(t, "proj-1", project.ID)
	assert.Equal(t, int64(42), project.Epoch)
}

func TestResolverResolvesPlaintextKey(t *testing.T) {
	src := newFakeAccountSource()
	src.add(
		store.Account{ID: "acct-1"},
		store.Project{ID: "proj-1", AccountID: "acct-1", Epoch: 7},
	)
	resolver := NewResolver(src, testCodec(t))

	_, project, err := resolver.Resolve(context.Background(), "acct-1_7_proj-1", false)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", project.ID)
}

func TestResolverRejectsMalformedKey(t *testing.T) {
	resolver := NewResolver(newFakeAccountSource(), testCodec(t))

	tests := []struct {
		name      string
		rawKey    string
		encrypted bool
	}{
		{name: "garbage encrypted", rawKey: "not-a-key", encrypted: true},
		{name: "empty encrypted", rawKey: "", encrypted: true},
		{name: "plaintext passed as encrypted", rawKey: "acct_1_proj", encrypted: true},
		{name: "garbage plaintext", rawKey: "nounderscores", encrypted: false},
		{name: "non-numeric epoch", rawKey: "acct_abc_proj", encrypted: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := resolver.Resolve(context.Background(), tt.rawKey, tt.encrypted)
			assert.True(t, apierror.IsKind(err, apierror.KindBadRequest), "expected bad request, got %v", err)
		})
	}
}

func TestResolverRejectsKeyFromAnotherCodec(t *testing.T) {
	src := newFakeAccountSource()
	src.add(
		store.Account{ID: "acct-1"},
		store.Project{ID: "proj-1", AccountID: "acct-1", Epoch: 1},
	)
	resolver := NewResolver(src, testCodec(t))

	other := testCodec(t)
	raw, err := other.Encode(keycodec.CompositeKey{AccountID: "acct-1", Epoch: 1, ProjectID: "proj-1"})
	require.NoError(t, err)

	_, _, err = resolver.Resolve(context.Background(), raw, true)
	assert.True(t, apierror.IsKind(err, apierror.KindBadRequest))
}

func TestResolverUnknownAccount(t *testing.T) {
	resolver := NewResolver(newFakeAccountSource(), testCodec(t))

	_, _, err := resolver.Resolve(context.Background(), "ghost_5_proj-1", false)
	assert.True(t, apierror.IsKind(err, apierror.KindNotFound))
}

func TestResolverForeignProject(t *testing.T) {
	src := newFakeAccountSource()
	src.add(
		store.Account{ID: "acct-1"},
		store.Project{ID: "proj-1", AccountID: "acct-1", Epoch: 3},
	)
	src.add(
		store.Account{ID: "acct-2"},
		store.Project{ID: "proj-2", AccountID: "acct-2", Epoch: 3},
	)
	resolver := NewResolver(src, testCodec(t))

	// Key names acct-1 but acct-2's project.
	_, _, err := resolver.Resolve(context.Background(), "acct-1_3_proj-2", false)
	assert.True(t, apierror.IsKind(err, apierror.KindForbidden))
}

func TestResolverStaleEpoch(t *testing.T) {
	src := newFakeAccountSource()
	src.add(
		store.Account{ID: "acct-1"},
		store.Project{ID: "proj-1", AccountID: "acct-1", Epoch: 900},
	)
	resolver := NewResolver(src, testCodec(t))

	_, _, err := resolver.Resolve(context.Background(), "acct-1_899_proj-1", false)
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindForbidden))
	assert.Contains(t, err.Error(), "no longer valid")

	// The current epoch still resolves.
	_, project, err := resolver.Resolve(context.Background(), "acct-1_900_proj-1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(900), project.Epoch)
}
