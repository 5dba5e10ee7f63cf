package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videotube/internal/model"
	"videotube/internal/repository"
)

type fakeUserStore struct {
	mu        sync.Mutex
	nextID    uint
	users     map[uint]*model.User
	createErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uint]*model.User{}}
}

func (f *fakeUserStore) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	user.ID = f.nextID
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserStore) find(match func(*model.User) bool) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			clone := *u
			return &clone
		}
	}
	return nil
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	username = strings.ToLower(username)
	return f.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(email)
	return f.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (f *fakeUserStore) GetByUsernameOrEmail(_ context.Context, identifier string) (*model.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	return f.find(func(u *model.User) bool { return u.Username == identifier || u.Email == identifier }), nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }), nil
}

func (f *fakeUserStore) GetPublicByID(ctx context.Context, id uint) (*model.User, error) {
	u, _ := f.GetByID(ctx, id)
	if u == nil {
		return nil, nil
	}
	return publicUser(u), nil
}

func (f *fakeUserStore) update(id uint, fn func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		fn(u)
	}
	return nil
}

func (f *fakeUserStore) UpdatePasswordHash(_ context.Context, id uint, hash string) error {
	return f.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (f *fakeUserStore) SetRefreshToken(_ context.Context, id uint, token *string) error {
	return f.update(id, func(u *model.User) {
		if token == nil {
			u.RefreshToken = nil
			return
		}
		v := *token
		u.RefreshToken = &v
	})
}

func (f *fakeUserStore) UpdateAvatar(_ context.Context, id uint, url string) error {
	return f.update(id, func(u *model.User) { u.AvatarURL = url })
}

func (f *fakeUserStore) UpdateCoverImage(_ context.Context, id uint, url string) error {
	return f.update(id, func(u *model.User) { u.CoverImageURL = url })
}

func (f *fakeUserStore) UpdateAccount(_ context.Context, id uint, fullName, email string) error {
	if email != "" {
		if other := f.find(func(u *model.User) bool { return u.Email == email && u.ID != id }); other != nil {
			return repository.ErrDuplicate
		}
	}
	return f.update(id, func(u *model.User) {
		if fullName != "" {
			u.FullName = fullName
		}
		if email != "" {
			u.Email = email
		}
	})
}

func (f *fakeUserStore) stored(id uint) *model.User {
	u, _ := f.GetByID(context.Background(), id)
	return u
}

type fakeBlobStore struct {
	mu        sync.Mutex
	err       error
	failOn    string
	uploaded  []string
	deleted   []string
	deleteErr error
}

func (f *fakeBlobStore) Upload(_ context.Context, localFilePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.failOn != "" && filepath.Base(localFilePath) == f.failOn {
		return "", errStorageDown
	}
	f.uploaded = append(f.uploaded, localFilePath)
	return "https://cdn.example.com/" + filepath.Base(localFilePath), nil
}

func (f *fakeBlobStore) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return f.deleteErr
}

type fakeCache struct {
	mu      sync.Mutex
	items   map[uint]model.User
	gets    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[uint]model.User{}}
}

func (f *fakeCache) Get(_ context.Context, id uint) (*model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	u, ok := f.items[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (f *fakeCache) Set(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[user.ID] = *user
	return nil
}

func (f *fakeCache) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.items, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []model.AuthEvent
}

func (f *fakePublisher) Publish(_ context.Context, event model.AuthEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

var errStorageDown = errors.New("storage down")

var testTokenConfig = TokenConfig{
	AccessSecret:  "access-secret",
	AccessTTL:     15 * time.Minute,
	RefreshSecret: "refresh-secret",
	RefreshTTL:    24 * time.Hour,
}

type authFixture struct {
	svc    *AuthService
	users  *fakeUserStore
	blobs  *fakeBlobStore
	cache  *fakeCache
	events *fakePublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	return newAuthFixtureWithTokens(t, testTokenConfig)
}

func newAuthFixtureWithTokens(t *testing.T, cfg TokenConfig) *authFixture {
	t.Helper()
	users := newFakeUserStore()
	blobs := &fakeBlobStore{}
	cache := newFakeCache()
	events := &fakePublisher{}
	svc := NewAuthService(users, NewTokenService(users, cfg), blobs, cache, events, nil, 0)
	return &authFixture{svc: svc, users: users, blobs: blobs, cache: cache, events: events}
}

// tempUpload writes a throwaway file the way the HTTP layer stages multipart uploads.
func tempUpload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("image-bytes"), 0o600))
	return path
}

func requireGone(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "expected %s to be removed", path)
}

func (f *authFixture) register(t *testing.T, username, email, password string) *model.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterInput{
		FullName:   strings.ToUpper(username[:1]) + username[1:],
		Email:      email,
		Username:   username,
		Password:   password,
		AvatarPath: tempUpload(t, username+"-avatar.png"),
	})
	require.NoError(t, err)
	return user
}
