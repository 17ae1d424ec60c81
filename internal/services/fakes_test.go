package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kardai/apiserver/internal/store"
	"github.com/kardai/apiserver/types"
)

type memoryUserRepo struct {
	mu     sync.Mutex
	users  []types.User
	nextID int
	// skipLookup simulates a concurrent registration that passed the check.
	skipLookup bool
}

func (r *memoryUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memoryUserRepo) FindByUsernameOrEmail(_ context.Context, username, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipLookup {
		return types.User{}, store.ErrNotFound
	}
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memoryUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()
	r.users = append(r.users, user)
	return user, nil
}

type memoryCardRepo struct {
	mu     sync.Mutex
	cards  []types.Card
	nextID int
	err    error
}

func (r *memoryCardRepo) Create(ctx context.Context, card types.Card) (types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Card{}, r.err
	}
	// database/sql refuses to run a query on a finished context.
	if err := ctx.Err(); err != nil {
		return types.Card{}, err
	}
	r.nextID++
	card.ID = r.nextID
	card.CreatedAt = time.Now().UTC()
	r.cards = append(r.cards, card)
	return card, nil
}

func (r *memoryCardRepo) ListByOwner(_ context.Context, ownerID int) ([]types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Card, 0)
	for _, c := range r.cards {
		if c.UserID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryCardRepo) GetForOwner(_ context.Context, ownerID, cardID int) (types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		if c.ID == cardID && c.UserID == ownerID {
			return c, nil
		}
	}
	return types.Card{}, store.ErrNotFound
}

type stubProvider struct {
	text     string
	textErr  error
	image    string
	imageErr error

	system string
}

func (p *stubProvider) CompleteText(_ context.Context, system, _ string) (string, error) {
	p.system = system
	return p.text, p.textErr
}

func (p *stubProvider) GenerateImage(_ context.Context, _ string) (string, error) {
	return p.image, p.imageErr
}

type stubArchiver struct {
	key string
	err error
	url string
}

func (a *stubArchiver) Archive(_ context.Context, _ int, sourceURL string) (string, error) {
	a.url = sourceURL
	return a.key, a.err
}

type recordingPublisher struct {
	eventType string
	payload   any
	err       error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, eventType string, payload any) (string, error) {
	p.eventType = eventType
	p.payload = payload
	return "msg", p.err
}

// hangingProvider blocks until the caller gives up.
type hangingProvider struct{}

func (hangingProvider) CompleteText(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingProvider) GenerateImage(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

var errProviderDown = errors.New("provider down")
