package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kardai/apiserver/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityService() (*IdentityService, *memoryUserRepo) {
	repo := &memoryUserRepo{}
	return NewIdentityService(repo, auth.NewTokenIssuer("test-secret", time.Minute)), repo
}

func TestRegisterThenAuthenticate(t *testing.T) {
	svc, _ := newIdentityService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "pw1", user.PasswordHash)

	authed, token, err := svc.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.NotEmpty(t, token)
}

func TestRegister_Duplicates(t *testing.T) {
	svc, _ := newIdentityService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@x.com", "pw2")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = svc.Register(ctx, "bob", "a@x.com", "pw2")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestRegister_ConstraintViolationIsDuplicate(t *testing.T) {
	svc, repo := newIdentityService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	repo.skipLookup = true
	_, err = svc.Register(ctx, "alice", "a@x.com", "pw1")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Len(t, repo.users, 1)
}

func TestRegister_MissingFields(t *testing.T) {
	svc, repo := newIdentityService()

	_, err := svc.Register(context.Background(), " ", "a@x.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Register(context.Background(), "alice", "", "pw")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Register(context.Background(), "alice", "a@x.com", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, repo.users)
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newIdentityService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	_, _, wrongPassword := svc.Authenticate(ctx, "alice", "nope")
	_, _, unknownUser := svc.Authenticate(ctx, "ghost", "pw1")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestResolveFromToken(t *testing.T) {
	svc, _ := newIdentityService()
	ctx := context.Background()
	user, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)
	_, token, err := svc.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)

	resolved, err := svc.ResolveFromToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user, resolved)

	_, err = svc.ResolveFromToken(ctx, token+"x")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.ResolveFromToken(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveFromToken_ExpiredAndUnknownSubject(t *testing.T) {
	repo := &memoryUserRepo{}
	svc := NewIdentityService(repo, auth.NewTokenIssuer("test-secret", time.Nanosecond))
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)
	_, token, err := svc.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = svc.ResolveFromToken(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	ghostToken, err := auth.NewTokenIssuer("test-secret", time.Minute).Issue("ghost")
	require.NoError(t, err)
	_, err = svc.ResolveFromToken(ctx, ghostToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRegister_PaddedUsernameAuthenticates(t *testing.T) {
	svc, repo := newIdentityService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice ", "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	for _, name := range []string{"alice ", "alice", "  alice"} {
		authed, token, err := svc.Authenticate(ctx, name, "pw1")
		require.NoError(t, err, "username %q", name)
		assert.Equal(t, user.ID, authed.ID)

		resolved, err := svc.ResolveFromToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, resolved.ID)
	}

	_, err = svc.Register(ctx, " alice", "other@x.com", "pw2")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Len(t, repo.users, 1)
}

func TestRegister_PasswordTooLongIsInvalidInput(t *testing.T) {
	svc, repo := newIdentityService()

	_, err := svc.Register(context.Background(), "bob", "b@x.com", strings.Repeat("p", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, repo.users)

	_, err = svc.Register(context.Background(), "bob", "b@x.com", strings.Repeat("p", 72))
	assert.NoError(t, err)
}
