package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store/storetest"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(Config{
		CookieName:    "sid",
		CookieExpiry:  720 * time.Hour,
		Lifetime:      720 * time.Hour,
		CloseToExpiry: 48 * time.Hour,
		SSOTimeout:    20 * time.Minute,
		Secure:        true,
	}, zap.NewNop().Sugar()).WithClock(func() time.Time { return testNow })
}

func inTx(t *testing.T, st *storetest.MemStore, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, st.InTx(context.Background(), fn))
}

func strPtr(s string) *string { return &s }

func TestLoad(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	st.SeedSession(&entity.Session{ID: "fresh", LastUsed: testNow.Add(-time.Hour)})
	st.SeedSession(&entity.Session{ID: "expired", LastUsed: testNow.Add(-721 * time.Hour)})

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		sess, err := s.Load(ctx, tx, "fresh")
		require.NoError(t, err)
		assert.NotNil(t, sess)

		sess, err = s.Load(ctx, tx, "expired")
		require.NoError(t, err)
		assert.Nil(t, sess)

		sess, err = s.Load(ctx, tx, "missing")
		require.NoError(t, err)
		assert.Nil(t, sess)

		sess, err = s.Load(ctx, tx, "")
		require.NoError(t, err)
		assert.Nil(t, sess)
		return nil
	})
}

func TestIsCloseToExpiry(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.IsCloseToExpiry(&entity.Session{LastUsed: testNow.Add(-24 * time.Hour)}))
	assert.False(t, s.IsCloseToExpiry(&entity.Session{LastUsed: testNow.Add(-671 * time.Hour)}))
	assert.True(t, s.IsCloseToExpiry(&entity.Session{LastUsed: testNow.Add(-673 * time.Hour)}))
}

func TestPrepareForLogin(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	uid := int64(7)
	st.SeedSession(&entity.Session{ID: "old", UserID: &uid, LastUsed: testNow.Add(-700 * time.Hour)})
	st.SeedSession(&entity.Session{ID: "recent", UserID: &uid, LastUsed: testNow.Add(-time.Hour)})

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		old, _ := s.Load(ctx, tx, "old")
		got, err := s.PrepareForLogin(ctx, tx, old)
		require.NoError(t, err)
		assert.Nil(t, got)

		recent, _ := s.Load(ctx, tx, "recent")
		got, err = s.PrepareForLogin(ctx, tx, recent)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.UserID)

		got, err = s.PrepareForLogin(ctx, tx, nil)
		assert.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})

	assert.Nil(t, st.Session("old"))
	recent := st.Session("recent")
	require.NotNil(t, recent)
	assert.Nil(t, recent.UserID)
	assert.Equal(t, testNow, recent.LastUsed)
}

func setNonce(nonce, provider string) func(*entity.Session) error {
	return func(sess *entity.Session) error {
		sess.SsoNonce = &nonce
		sess.SsoProvider = &provider
		start := testNow
		sess.SsoStartTime = &start
		return nil
	}
}

func TestBeginSSO(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	uid := int64(7)
	st.SeedSession(&entity.Session{ID: "existing", UserID: &uid, SessionVersion: 4, LastUsed: testNow})

	var created *entity.Session
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		var err error
		created, err = s.BeginSSO(ctx, tx, nil, setNonce("n1", "devforum"))
		require.NoError(t, err)

		existing, _ := s.Load(ctx, tx, "existing")
		reused, err := s.BeginSSO(ctx, tx, existing, setNonce("n2", "patreon"))
		require.NoError(t, err)
		assert.Equal(t, "existing", reused.ID)
		return nil
	})

	assert.Len(t, created.ID, 64)
	stored := st.Session(created.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "n1", *stored.SsoNonce)
	assert.Nil(t, stored.UserID)
	assert.Equal(t, int64(1), stored.SessionVersion)

	reused := st.Session("existing")
	assert.Nil(t, reused.UserID)
	assert.Equal(t, int64(1), reused.SessionVersion)
	assert.Equal(t, "n2", *reused.SsoNonce)
}

func TestFindPendingSSO(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	start := testNow.Add(-time.Minute)
	stale := testNow.Add(-time.Hour)
	st.SeedSession(&entity.Session{ID: "a", SsoNonce: strPtr("n1"), SsoProvider: strPtr("devforum"), SsoStartTime: &start, LastUsed: testNow})
	st.SeedSession(&entity.Session{ID: "b", SsoNonce: strPtr("n2"), SsoProvider: strPtr("devforum"), SsoStartTime: &stale, LastUsed: testNow})

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		sess, err := s.FindPendingSSO(ctx, tx, "n1", "devforum")
		require.NoError(t, err)
		assert.Equal(t, "a", sess.ID)

		_, err = s.FindPendingSSO(ctx, tx, "n1", "communityforum")
		assert.ErrorIs(t, err, ErrNoPendingSSO)

		_, err = s.FindPendingSSO(ctx, tx, "n2", "devforum")
		assert.ErrorIs(t, err, ErrNoPendingSSO)

		_, err = s.FindPendingSSO(ctx, tx, "nope", "devforum")
		assert.ErrorIs(t, err, ErrNoPendingSSO)

		_, err = s.FindPendingSSO(ctx, tx, "", "devforum")
		assert.ErrorIs(t, err, ErrNoPendingSSO)
		return nil
	})
}

func TestBind(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	st.SeedSession(&entity.Session{ID: "a", SsoNonce: strPtr("n1"), SsoProvider: strPtr("devforum"), SsoReturnURL: strPtr("/x"), LastUsed: testNow.Add(-time.Hour)})
	u := &userentity.User{ID: 3, SessionVersion: 5}

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		sess, err := s.Load(ctx, tx, "a")
		require.NoError(t, err)
		return s.Bind(ctx, tx, sess, false, u, "10.0.0.1")
	})

	got := st.Session("a")
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(3), *got.UserID)
	assert.Equal(t, int64(5), got.SessionVersion)
	assert.Equal(t, testNow, got.LastUsed)
	assert.Equal(t, "10.0.0.1", *got.LastUsedFrom)
	assert.False(t, got.PendingSSO())
	assert.Nil(t, got.SsoReturnURL)
	assert.Nil(t, got.SsoProvider)
}

func TestSweep(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	st.SeedSession(&entity.Session{ID: "live", LastUsed: testNow.Add(-time.Hour)})
	st.SeedSession(&entity.Session{ID: "dead", LastUsed: testNow.Add(-800 * time.Hour)})

	n, err := s.Sweep(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotNil(t, st.Session("live"))
	assert.Nil(t, st.Session("dead"))
}

func TestRunSweeper(t *testing.T) {
	st := storetest.New()
	s := newTestStore()
	st.SeedSession(&entity.Session{ID: "dead", LastUsed: testNow.Add(-800 * time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int64, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.RunSweeper(ctx, st, 5*time.Millisecond, func(n int64) {
			select {
			case swept <- n:
			default:
			}
		})
	}()

	select {
	case n := <-swept:
		assert.Equal(t, int64(1), n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Nil(t, st.Session("dead"))
}

func TestCookie(t *testing.T) {
	s := newTestStore()
	c := s.Cookie(&entity.Session{ID: "abc"})
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, testNow.Add(720*time.Hour), c.Expires)

	cleared := s.ClearCookie()
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)
}
