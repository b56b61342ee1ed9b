package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-console/config"
	"sentinel-console/core/keycloak"
	"sentinel-console/core/store"
	"sentinel-console/core/utils"

	"golang.org/x/oauth2"
)

type fakeStore struct {
	mu   sync.Mutex
	recs map[string]*store.SessionRecord
	gets int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[string]*store.SessionRecord{}}
}

func (f *fakeStore) clone(r *store.SessionRecord) *store.SessionRecord {
	cp := *r
	return &cp
}

func (f *fakeStore) Save(ctx context.Context, sess *store.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[sess.ID] = f.clone(sess)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*store.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt64(&f.gets, 1)
	r, ok := f.recs[id]
	if !ok || r.Revoked || time.Now().After(r.ExpiresAt) {
		return nil, nil
	}
	return f.clone(r), nil
}

func (f *fakeStore) ListActive(ctx context.Context) ([]store.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SessionRecord
	for _, r := range f.recs {
		if !r.Revoked && time.Now().Before(r.ExpiresAt) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID string) ([]store.SessionRecord, error) {
	all, _ := f.ListActive(ctx)
	var out []store.SessionRecord
	for _, r := range all {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Revoke(ctx context.Context, id, by string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recs[id]; ok {
		r.Revoked = true
		r.RevokedBy = by
	}
	return nil
}

func (f *fakeStore) RevokeAllForUser(ctx context.Context, userID, by string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.UserID == userID {
			r.Revoked = true
			r.RevokedBy = by
		}
	}
	return nil
}

func (f *fakeStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, tokenExpiresAt, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recs[id]; ok && !r.Revoked {
		r.AccessToken = accessToken
		r.RefreshToken = refreshToken
		r.TokenExpiresAt = tokenExpiresAt
		r.RefreshError = ""
		t := at
		r.LastRefreshAt = &t
	}
	return nil
}

func (f *fakeStore) SetRefreshError(ctx context.Context, id, flag string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recs[id]; ok && !r.Revoked {
		r.RefreshError = flag
		t := at
		r.LastRefreshAt = &t
	}
	return nil
}

func (f *fakeStore) Touch(ctx context.Context, id string, now time.Time) error { return nil }

func (f *fakeStore) CountActive(ctx context.Context) (int, error) {
	all, _ := f.ListActive(ctx)
	return len(all), nil
}

func (f *fakeStore) PurgeDead(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.recs {
		if r.Revoked || now.After(r.ExpiresAt) {
			delete(f.recs, id)
			n++
		}
	}
	return n, nil
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	fail  bool
	next  keycloak.TokenSet
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, keycloak.ErrRefreshFailed
	}
	ts := f.next
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return &ts, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func jwtWith(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func seedSession(fs *fakeStore, id string, tokenExpiresAt time.Time) {
	now := time.Now().UTC()
	fs.recs[id] = &store.SessionRecord{
		ID:             id,
		UserID:         "u-1",
		Username:       "jdoe",
		Roles:          []string{"user"},
		AccessToken:    "live-access",
		RefreshToken:   "live-refresh",
		TokenExpiresAt: tokenExpiresAt,
		CreatedAt:      now,
		ExpiresAt:      now.Add(8 * time.Hour),
	}
}

func TestEstablishDecodesClaims(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, nil, &fakeRefresher{}, time.Hour, utils.NewLogger())
	tok := &oauth2.Token{
		AccessToken:  jwtWith(t, map[string]any{"sub": "u-9", "preferred_username": "alice", "email": "a@example.com", "realm_access": map[string]any{"roles": []string{"manager"}}}),
		RefreshToken: "r",
		Expiry:       time.Now().Add(5 * time.Minute),
	}
	rec, err := m.Establish(context.Background(), tok, ClientMeta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if rec.UserID != "u-9" || rec.Username != "alice" {
		t.Fatalf("claims not applied: %+v", rec)
	}
	if len(rec.Roles) != 1 || rec.Roles[0] != "manager" {
		t.Fatalf("roles: %v", rec.Roles)
	}
	if rec.RefreshError != "" {
		t.Fatalf("fresh login must start without the error flag")
	}
}

func TestEstablishContinuesOnDecodeFailure(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, nil, &fakeRefresher{}, time.Hour, utils.NewLogger())
	tok := &oauth2.Token{AccessToken: "garbage", RefreshToken: "r", Expiry: time.Now().Add(time.Minute)}
	rec, err := m.Establish(context.Background(), tok, ClientMeta{})
	if err != nil {
		t.Fatalf("decode failure must not abort login: %v", err)
	}
	if len(rec.Roles) != 0 {
		t.Fatalf("expected empty role set, got %v", rec.Roles)
	}
}

func TestReadFastPathSkipsRefresher(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeRefresher{}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(10*time.Minute))

	sess, err := m.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess.AccessToken != "live-access" || sess.Error != "" {
		t.Fatalf("fast path view: %+v", sess)
	}
	if fr.callCount() != 0 {
		t.Fatalf("live token must not hit the refresher")
	}
}

func TestReadRefreshesExpiredToken(t *testing.T) {
	fs := newFakeStore()
	newAccess := jwtWith(t, map[string]any{"sub": "u-1", "realm_access": map[string]any{"roles": []string{"manager"}}})
	fr := &fakeRefresher{next: keycloak.TokenSet{AccessToken: newAccess, RefreshToken: "rot", ExpiresAt: time.Now().Add(5 * time.Minute)}}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(-time.Minute))

	sess, err := m.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess.AccessToken != newAccess {
		t.Fatalf("read must observe the refreshed token")
	}
	if sess.Error != "" {
		t.Fatalf("no error flag on success")
	}
	if fr.callCount() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", fr.callCount())
	}
	if len(sess.User.Roles) != 1 || sess.User.Roles[0] != "manager" {
		t.Fatalf("roles must follow the new token: %v", sess.User.Roles)
	}
}

func TestConcurrentExpiredReadsCoalesce(t *testing.T) {
	fs := newFakeStore()
	newAccess := jwtWith(t, map[string]any{"sub": "u-1"})
	fr := &fakeRefresher{delay: 50 * time.Millisecond, next: keycloak.TokenSet{AccessToken: newAccess, RefreshToken: "rot", ExpiresAt: time.Now().Add(5 * time.Minute)}}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(-time.Minute))

	const readers = 8
	var wg sync.WaitGroup
	results := make([]*Session, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Read(context.Background(), "s-1")
		}(i)
	}
	wg.Wait()

	if fr.callCount() != 1 {
		t.Fatalf("concurrent expired reads must trigger one refresh, got %d", fr.callCount())
	}
	for i := 0; i < readers; i++ {
		if errs[i] != nil {
			t.Fatalf("reader %d: %v", i, errs[i])
		}
		if results[i].AccessToken != newAccess {
			t.Fatalf("reader %d observed a stale token", i)
		}
	}
}

func TestRefreshSurvivesCallerDisconnect(t *testing.T) {
	fs := newFakeStore()
	newAccess := jwtWith(t, map[string]any{"sub": "u-1"})
	fr := &fakeRefresher{delay: 100 * time.Millisecond, next: keycloak.TokenSet{AccessToken: newAccess, RefreshToken: "rot", ExpiresAt: time.Now().Add(5 * time.Minute)}}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	sess, err := m.Read(ctx, "s-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess.Error != "" {
		t.Fatalf("client disconnect must not set the error flag, got %q", sess.Error)
	}
	if sess.AccessToken != newAccess {
		t.Fatalf("refresh result must be observed despite the disconnect")
	}
	rec, _ := fs.Get(context.Background(), "s-1")
	if rec == nil || rec.RefreshError != "" {
		t.Fatalf("store must hold the rotated tokens without a flag: %+v", rec)
	}
	if fr.callCount() != 1 {
		t.Fatalf("expected one refresh, got %d", fr.callCount())
	}
}

func TestRefreshFailureSetsFlagKeepsSession(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeRefresher{fail: true}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(-time.Minute))

	sess, err := m.Read(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("failure must not surface as a read error: %v", err)
	}
	if sess.Error != ErrFlagReauthRequired {
		t.Fatalf("expected error flag %q, got %q", ErrFlagReauthRequired, sess.Error)
	}
	if sess.AccessToken != "live-access" {
		t.Fatalf("stale token must be kept")
	}
	if rec, _ := fs.Get(context.Background(), "s-1"); rec == nil {
		t.Fatalf("refresh failure must never delete the session")
	}
}

func TestErrorFlagClearedOnlyByFreshLogin(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeRefresher{fail: true}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(-time.Minute))

	if sess, _ := m.Read(context.Background(), "s-1"); sess.Error == "" {
		t.Fatalf("expected flag after failed refresh")
	}
	// The flag survives reads while the token stays irrecoverable.
	if sess, _ := m.Peek(context.Background(), "s-1"); sess.Error != ErrFlagReauthRequired {
		t.Fatalf("peek must surface the persisted flag")
	}

	tok := &oauth2.Token{
		AccessToken:  jwtWith(t, map[string]any{"sub": "u-1"}),
		RefreshToken: "fresh",
		Expiry:       time.Now().Add(time.Minute),
	}
	rec, err := m.Establish(context.Background(), tok, ClientMeta{})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	sess, err := m.Read(context.Background(), rec.ID)
	if err != nil || sess.Error != "" {
		t.Fatalf("fresh login must start clean: %v %+v", err, sess)
	}
}

func TestReadUnknownSession(t *testing.T) {
	m := NewManager(newFakeStore(), nil, &fakeRefresher{}, time.Hour, utils.NewLogger())
	if _, err := m.Read(context.Background(), "ghost"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRefreshLoopCooldownSkips(t *testing.T) {
	fs := newFakeStore()
	fr := &fakeRefresher{next: keycloak.TokenSet{AccessToken: "a", ExpiresAt: time.Now().Add(time.Minute)}}
	m := NewManager(fs, nil, fr, time.Hour, utils.NewLogger())
	seedSession(fs, "s-1", time.Now().Add(-time.Minute))
	recent := time.Now().Add(-time.Minute)
	fs.recs["s-1"].LastRefreshAt = &recent

	loop := NewRefreshLoop(config.RefreshConfig{Enabled: true, TickFraction: 0.75, CooldownMinutes: 30}, fs, m, utils.NewLogger())
	if err := loop.RunOnce(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if fr.callCount() != 0 {
		t.Fatalf("cooldown must skip the session, got %d calls", fr.callCount())
	}

	old := time.Now().Add(-time.Hour)
	fs.recs["s-1"].LastRefreshAt = &old
	if err := loop.RunOnce(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if fr.callCount() != 1 {
		t.Fatalf("stale session must be refreshed, got %d calls", fr.callCount())
	}
}

func TestRefreshLoopStartStop(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, nil, &fakeRefresher{}, time.Hour, utils.NewLogger())
	loop := NewRefreshLoop(config.RefreshConfig{Enabled: true, TickFraction: 0.75, CooldownMinutes: 30}, fs, m, utils.NewLogger())
	ctx, cancel := context.WithCancel(context.Background())
	loop.StartWithContext(ctx)
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := loop.StopWithContext(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestJanitorPurges(t *testing.T) {
	fs := newFakeStore()
	seedSession(fs, "s-live", time.Now().Add(time.Minute))
	seedSession(fs, "s-dead", time.Now().Add(time.Minute))
	fs.recs["s-dead"].ExpiresAt = time.Now().Add(-time.Minute)

	j := NewJanitor(config.CleanupConfig{Enabled: true, Schedule: "@every 15m"}, fs, utils.NewLogger())
	j.RunOnce(context.Background(), time.Now().UTC())
	if _, ok := fs.recs["s-dead"]; ok {
		t.Fatalf("dead session must be purged")
	}
	if _, ok := fs.recs["s-live"]; !ok {
		t.Fatalf("live session must survive")
	}
}
