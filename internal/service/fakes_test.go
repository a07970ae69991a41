package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/events"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/notify"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryUserStore mimics UserRepository: emails are lowercased, lookups
// strip secrets unless asked, and token consumption is conditional.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
	clock *testClock
	err   error
}

func newMemoryUserStore(clock *testClock) *memoryUserStore {
	return &memoryUserStore{users: map[primitive.ObjectID]models.User{}, clock: clock}
}

func public(u models.User, include ...string) *models.User {
	keep := map[string]bool{}
	for _, f := range include {
		keep[f] = true
	}
	if !keep[models.FieldPassword] {
		u.PasswordHash = ""
	}
	if !keep[models.FieldVerificationToken] {
		u.VerificationToken = ""
	}
	if !keep[models.FieldVerificationTokenExpires] {
		u.VerificationTokenExpires = nil
	}
	if !keep[models.FieldResetPasswordToken] {
		u.ResetPasswordToken = ""
	}
	if !keep[models.FieldResetPasswordExpires] {
		u.ResetPasswordExpires = nil
	}
	return &u
}

func (m *memoryUserStore) byEmail(email string) (models.User, bool) {
	email = models.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, true
		}
	}
	return models.User{}, false
}

// raw returns the stored record including secrets.
func (m *memoryUserStore) raw(email string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, _ := m.byEmail(email)
	return u
}

func (m *memoryUserStore) mutate(email string, fn func(*models.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail(email)
	if !ok {
		return
	}
	fn(&u)
	m.users[u.ID] = u
}

func (m *memoryUserStore) CreateUser(_ context.Context, user models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	user.Email = models.NormalizeEmail(user.Email)
	if _, ok := m.byEmail(user.Email); ok {
		return nil, repository.ErrEmailTaken
	}
	user.ID = primitive.NewObjectID()
	m.users[user.ID] = user
	return public(user), nil
}

func (m *memoryUserStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return public(u), nil
}

func (m *memoryUserStore) findByEmail(email string, include ...string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byEmail(email)
	if !ok {
		return nil, nil
	}
	return public(u, include...), nil
}

func (m *memoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.findByEmail(email)
}

func (m *memoryUserStore) FindByEmailWithPassword(_ context.Context, email string) (*models.User, error) {
	return m.findByEmail(email, models.FieldPassword)
}

func (m *memoryUserStore) FindByEmailWithVerification(_ context.Context, email string) (*models.User, error) {
	return m.findByEmail(email, models.FieldVerificationTokenExpires)
}

func (m *memoryUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.byEmail(email)
	return ok, nil
}

func live(token string, expires *time.Time, stored string, now time.Time) bool {
	return token != "" && stored == token && expires != nil && expires.After(now)
}

func (m *memoryUserStore) FindByVerificationToken(_ context.Context, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for _, u := range m.users {
		if live(token, u.VerificationTokenExpires, u.VerificationToken, now) {
			return public(u, models.FieldVerificationToken, models.FieldVerificationTokenExpires), nil
		}
	}
	return nil, nil
}

func (m *memoryUserStore) VerifyUserEmail(_ context.Context, id primitive.ObjectID, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !live(token, u.VerificationTokenExpires, u.VerificationToken, m.clock.Now()) {
		return nil, nil
	}
	u.IsVerified = true
	u.VerificationToken = ""
	u.VerificationTokenExpires = nil
	m.users[id] = u
	return public(u), nil
}

func (m *memoryUserStore) UpdateVerificationToken(_ context.Context, id primitive.ObjectID, token string, expires time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.VerificationToken = token
	u.VerificationTokenExpires = &expires
	m.users[id] = u
	return public(u), nil
}

func (m *memoryUserStore) FindByResetPasswordToken(_ context.Context, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for _, u := range m.users {
		if live(token, u.ResetPasswordExpires, u.ResetPasswordToken, now) {
			return public(u, models.FieldResetPasswordToken, models.FieldResetPasswordExpires), nil
		}
	}
	return nil, nil
}

func (m *memoryUserStore) UpdateResetPasswordToken(_ context.Context, id primitive.ObjectID, token string, expires time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.ResetPasswordToken = token
	u.ResetPasswordExpires = &expires
	m.users[id] = u
	return public(u), nil
}

func (m *memoryUserStore) ResetPassword(_ context.Context, id primitive.ObjectID, token string, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !live(token, u.ResetPasswordExpires, u.ResetPasswordToken, m.clock.Now()) {
		return nil, nil
	}
	u.PasswordHash = passwordHash
	u.ResetPasswordToken = ""
	u.ResetPasswordExpires = nil
	m.users[id] = u
	return public(u), nil
}

func (m *memoryUserStore) UpdateLastLogin(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	now := m.clock.Now()
	u.LastLoginAt = &now
	m.users[id] = u
	return public(u), nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMailer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type recordingActivity struct {
	mu    sync.Mutex
	kinds []models.ActivityKind
	err   error
}

func (r *recordingActivity) Record(_ context.Context, a models.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.kinds = append(r.kinds, a.Kind)
	return nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []events.Type
	err   error
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.types = append(r.types, e.Type)
	return nil
}

var errStoreDown = errors.New("store unavailable")

func (m *memoryUserStore) UpdateAvatar(_ context.Context, id primitive.ObjectID, url string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.AvatarURL = url
	m.users[id] = u
	return public(u), nil
}

// memoryAvatarStore keeps objects keyed by path under a fixed base URL.
type memoryAvatarStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
	removed []string
	err     error
}

type storedObject struct {
	data        []byte
	contentType string
}

const avatarBaseURL = "https://cdn.example.com/avatars-bucket/"

func newMemoryAvatarStore() *memoryAvatarStore {
	return &memoryAvatarStore{objects: map[string]storedObject{}}
}

func (s *memoryAvatarStore) PutAvatar(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = storedObject{data: data, contentType: contentType}
	return avatarBaseURL + key, nil
}

func (s *memoryAvatarStore) RemoveAvatar(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *memoryAvatarStore) KeyFromURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, avatarBaseURL) {
		return "", false
	}
	return strings.TrimPrefix(raw, avatarBaseURL), true
}

type memoryActivity struct {
	items []models.Activity
	err   error
}

func (m *memoryActivity) PaginateByUser(_ context.Context, userID string, opts repository.PageOptions) (repository.Page[models.Activity], error) {
	if m.err != nil {
		return repository.Page[models.Activity]{}, m.err
	}
	var mine []models.Activity
	for _, a := range m.items {
		if a.UserID == userID {
			mine = append(mine, a)
		}
	}
	start := (opts.Page - 1) * opts.Limit
	end := min(start+opts.Limit, int64(len(mine)))
	if start > end {
		start = end
	}
	return repository.NewPage(mine[start:end], int64(len(mine)), opts.Page, opts.Limit), nil
}

type stubAdminStore struct {
	users []models.User
	roles []repository.RoleCount
	tiers []string
	err   error
	role  models.UserRole
}

func (s *stubAdminStore) PaginateByRole(_ context.Context, role models.UserRole, opts repository.PageOptions) (repository.Page[models.User], error) {
	if s.err != nil {
		return repository.Page[models.User]{}, s.err
	}
	s.role = role
	return repository.NewPage(s.users, int64(len(s.users)), opts.Page, opts.Limit), nil
}

func (s *stubAdminStore) CountByRole(context.Context) ([]repository.RoleCount, error) {
	return s.roles, s.err
}

func (s *stubAdminStore) SubscriptionTiers(context.Context) ([]string, error) {
	return s.tiers, s.err
}
