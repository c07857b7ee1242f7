package wizard

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pickandgo/onboarding/internal/metrics"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/pickandgo/onboarding/internal/staging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	sess := newSession("owner-1", models.AgreementBusiness, time.Now())
	sess.Draft.Make = "Toyota"

	require.NoError(t, store.Save(ctx, sess))
	sess.Draft.Make = "changed after save"

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Toyota", got.Draft.Make)

	got.Draft.Features = append(got.Draft.Features, "GPS")
	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Draft.Features)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, store.Delete(ctx, sess.ID))
}

func TestMemoryStore_CountsExpiredSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := NewMemoryStore(time.Minute).WithMetrics(metrics.New(reg))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sess := newSession("owner-1", models.AgreementBusiness, clock)
		require.NoError(t, store.Save(ctx, sess))
		ids = append(ids, sess.ID)
	}
	clock = clock.Add(2 * time.Minute)

	_, err := store.Get(ctx, ids[0])
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, ids[0])
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 2, store.Prune())
	assert.Equal(t, 0, store.Prune())

	expected := `
# HELP onboarding_wizard_sessions_total Wizard sessions by lifecycle event.
# TYPE onboarding_wizard_sessions_total counter
onboarding_wizard_sessions_total{event="expired"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "onboarding_wizard_sessions_total"))
}

func TestMemoryStore_SlidingExpiry(t *testing.T) {
	store := NewMemoryStore(10 * time.Minute)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()
	sess := newSession("owner-1", models.AgreementBusiness, clock)
	require.NoError(t, store.Save(ctx, sess))

	clock = clock.Add(8 * time.Minute)
	require.NoError(t, store.Save(ctx, sess))

	clock = clock.Add(8 * time.Minute)
	_, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)

	clock = clock.Add(3 * time.Minute)
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_Prune(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	clock := time.Now()
	store.now = func() time.Time { return clock }
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, newSession("owner", models.AgreementBusiness, clock)))
	}
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, store.Save(ctx, newSession("owner", models.AgreementBusiness, clock)))

	assert.Equal(t, 3, store.Prune())
	assert.Equal(t, 1, store.Len())
}

func TestSession_CloneDoesNotShareSlots(t *testing.T) {
	sess := newSession("owner-1", models.AgreementBusiness, time.Now())
	_, _, err := sess.Staging.StageDocument(models.DocumentInsurance, staging.Upload{
		Name: "ins.pdf", ContentType: "application/pdf", Data: pdfBytes,
	})
	require.NoError(t, err)

	c := sess.Clone()
	require.NoError(t, c.Staging.RemoveDocument(models.DocumentInsurance))

	assert.True(t, sess.Staging.HasDocument(models.DocumentInsurance))
	assert.False(t, c.Staging.HasDocument(models.DocumentInsurance))
}

// fakeRedis is an in-memory stand-in for the go-redis commands the store uses.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), value.([]byte)...)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = []byte(value.(string))
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// Eval runs the unlock script: delete KEYS[1] when it holds ARGV[1].
func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[keys[0]]; ok && string(v) == args[0].(string) {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	fake := newFakeRedis()
	store := &RedisStore{store: fake, ttl: 30 * time.Minute}
	ctx := context.Background()

	sess := newSession("owner-1", models.AgreementBusiness, time.Now().UTC())
	sess.Draft.Make = "Toyota"
	_, _, err := sess.Staging.StageDocument(models.DocumentRegistration, staging.Upload{
		Name: "reg.pdf", ContentType: "application/pdf", Data: pdfBytes,
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, 30*time.Minute, fake.ttls["pickandgo:wizard:"+sess.ID])

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Toyota", got.Draft.Make)
	assert.Equal(t, pdfBytes, got.Staging.Document(models.DocumentRegistration).Data)
	assert.Equal(t, PhaseStep, got.State.Phase)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_LockExcludesOtherHolders(t *testing.T) {
	fake := newFakeRedis()
	store := &RedisStore{store: fake, ttl: time.Minute, lockWait: 100 * time.Millisecond}
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, lockTTL, fake.ttls["pickandgo:wizard-lock:sess-1"])

	_, err = store.Lock(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionBusy)

	other, err := store.Lock(ctx, "sess-2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := store.Lock(ctx, "sess-1")
	require.NoError(t, err)
	again()
}

func TestRedisStore_UnlockKeepsForeignLock(t *testing.T) {
	fake := newFakeRedis()
	store := &RedisStore{store: fake, ttl: time.Minute}
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "sess-1")
	require.NoError(t, err)
	fake.mu.Lock()
	fake.data["pickandgo:wizard-lock:sess-1"] = []byte("someone-else")
	fake.mu.Unlock()

	unlock()
	fake.mu.Lock()
	_, held := fake.data["pickandgo:wizard-lock:sess-1"]
	fake.mu.Unlock()
	assert.True(t, held)
}

func TestRedisStore_LockHonoursContext(t *testing.T) {
	fake := newFakeRedis()
	store := &RedisStore{store: fake, ttl: time.Minute, lockWait: time.Minute}
	unlock, err := store.Lock(context.Background(), "sess-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = store.Lock(ctx, "sess-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_SharedStoreSerializesInstances(t *testing.T) {
	fake := newFakeRedis()
	shared := &RedisStore{store: fake, ttl: time.Minute, lockWait: 100 * time.Millisecond}
	first := NewService(Options{Store: shared})
	second := NewService(Options{Store: shared})
	ctx := context.Background()

	sess, err := first.Open(ctx, "owner-1")
	require.NoError(t, err)

	held, err := shared.Lock(ctx, sess.ID)
	require.NoError(t, err)
	_, err = second.SetFields(ctx, "owner-1", sess.ID, map[string]any{"make": "Honda"})
	assert.ErrorIs(t, err, ErrSessionBusy)
	held()

	_, err = second.SetFields(ctx, "owner-1", sess.ID, map[string]any{"make": "Honda"})
	require.NoError(t, err)
	got, err := first.Get(ctx, "owner-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Honda", got.Draft.Make)
}

func TestRedisStore_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, url, time.Minute)
	require.NoError(t, err)
	defer store.Close()

	sess := newSession("owner-1", models.AgreementBusiness, time.Now().UTC())
	require.NoError(t, store.Save(ctx, sess))
	defer store.Delete(ctx, sess.ID)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.OwnerID, got.OwnerID)
}

func TestNewRedisStore_RequiresURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisStore(context.Background(), "not a url", time.Minute)
	assert.Error(t, err)
}
