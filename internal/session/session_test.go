package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fotofoto/filmreturn/internal/cart"
	commerceimpl "github.com/fotofoto/filmreturn/internal/cart/commerce/impl"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	carrierimpl "github.com/fotofoto/filmreturn/internal/label/carrier/impl"
	"github.com/fotofoto/filmreturn/internal/persist"
	storeimpl "github.com/fotofoto/filmreturn/internal/persist/store/impl"
	"github.com/fotofoto/filmreturn/internal/wizard"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func stubDeps(t *testing.T, clk *testclock.Clock) (wizard.Deps, *storeimpl.StubStore) {
	store := storeimpl.MakeStubStore()
	commerce, err := commerceimpl.MakeClient(commerceimpl.StorefrontConfig{Stub: true}, http.DefaultClient)
	require.NoError(t, err)
	orchestrator, err := cart.MakeOrchestrator(commerce, map[cart.Format]string{cart.Scans: "1", cart.Prints: "2"}, time.Second)
	require.NoError(t, err)
	return wizard.Deps{
		Labels: label.MakeService(&carrierimpl.StubCarrier{}, "", time.Second),
		Images: persist.MakeGate(store, clk, persist.DefaultMaxImageBytes, time.Second),
		Carts:  orchestrator,
	}, store
}

func TestSimpleRepoExpiresSessions(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	repo := MakeSimpleSessionRepo(clk, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.WriteSession(ctx, Session{ID: "s1", ExpiresAt: clk.Now().Add(time.Hour)}))
	s, err := repo.FetchSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)

	clk.Advance(time.Hour)
	_, err = repo.FetchSessionByID(ctx, "s1")
	assert.True(t, failure.Is(err, failure.SessionNotFound))
	assert.Zero(t, repo.Len())

	_, err = repo.FetchSessionByID(ctx, "missing")
	assert.True(t, failure.Is(err, failure.SessionNotFound))
}

func TestSimpleRepoSweepsAbandonedSessionsOnWrite(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	repo := MakeSimpleSessionRepo(clk, time.Minute)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, repo.WriteSession(ctx, Session{ID: id, ExpiresAt: clk.Now().Add(time.Hour)}))
	}
	_, err := repo.Lock(ctx, "a")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	require.NoError(t, repo.WriteSession(ctx, Session{ID: "c", ExpiresAt: clk.Now().Add(time.Hour)}))
	assert.Equal(t, 1, repo.Len())

	_, err = repo.Lock(ctx, "a")
	assert.NoError(t, err)
}

func TestSimpleRepoLockIsExclusiveUntilReleasedOrExpired(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	repo := MakeSimpleSessionRepo(clk, time.Minute)
	ctx := context.Background()

	release, err := repo.Lock(ctx, "s1")
	require.NoError(t, err)
	_, err = repo.Lock(ctx, "s1")
	assert.True(t, failure.Is(err, failure.OperationInFlight))

	_, err = repo.Lock(ctx, "s2")
	assert.NoError(t, err)

	release()
	second, err := repo.Lock(ctx, "s1")
	require.NoError(t, err)

	clk.Advance(time.Minute)
	third, err := repo.Lock(ctx, "s1")
	require.NoError(t, err)

	// A stale release must not drop the newer lease.
	second()
	_, err = repo.Lock(ctx, "s1")
	assert.True(t, failure.Is(err, failure.OperationInFlight))
	third()
	third()
}

func TestManagerDrivesWizardAcrossRequests(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	deps, store := stubDeps(t, clk)
	m := MakeManager(MakeSimpleSessionRepo(clk, 0), deps, clk, 0)
	ctx := context.Background()

	s, err := m.Start(ctx, wizard.EntryParams{CameraID: "0042", DiscountCode: "WINBACK15"})
	require.NoError(t, err)
	assert.Equal(t, wizard.EmailStep, s.Snapshot.Step)
	assert.Equal(t, clk.Now().Add(DefaultTTL), s.ExpiresAt)

	steps := []func(w *wizard.Wizard) error{
		func(w *wizard.Wizard) error { return w.SetEmail("a@b.com") },
		func(w *wizard.Wizard) error { _, err := w.Advance(); return err },
		func(w *wizard.Wizard) error { return w.SelectFormat(cart.Prints) },
		func(w *wizard.Wizard) error { _, err := w.Advance(); return err },
		func(w *wizard.Wizard) error { return w.CaptureLabel(pngBytes, "image/png") },
		func(w *wizard.Wizard) error { _, err := w.Advance(); return err },
	}
	for _, step := range steps {
		_, err := m.Do(ctx, s.ID, step)
		require.NoError(t, err)
	}

	var checkoutURL string
	s, err = m.Do(ctx, s.ID, func(w *wizard.Wizard) error {
		var err error
		checkoutURL, err = w.Commit(ctx)
		return err
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(checkoutURL, "https://"), checkoutURL)
	assert.Equal(t, wizard.CompletedStep, s.Snapshot.Step)
	assert.Equal(t, checkoutURL, s.Snapshot.CheckoutURL)
	assert.Equal(t, 1, store.Len())

	hosted, ok := s.Snapshot.Context.Label.(label.HostedURL)
	require.True(t, ok)
	assert.Equal(t, label.Camera, hosted.Source)
}

func TestManagerStoresWizardEvenWhenOperationFails(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	deps, _ := stubDeps(t, clk)
	m := MakeManager(MakeSimpleSessionRepo(clk, 0), deps, clk, time.Hour)
	ctx := context.Background()

	s, err := m.Start(ctx, wizard.EntryParams{CameraID: "0042", LabelToken: "LT-1"})
	require.NoError(t, err)

	_, err = m.Do(ctx, s.ID, func(w *wizard.Wizard) error { return w.SetEmail("a@b.com") })
	assert.True(t, failure.Is(err, failure.StepNotReady))

	clk.Advance(30 * time.Minute)
	s, err = m.Do(ctx, s.ID, func(w *wizard.Wizard) error { return w.SelectFormat(cart.Scans) })
	require.NoError(t, err)
	assert.Equal(t, cart.Scans, s.Snapshot.Context.Format)
	assert.Equal(t, clk.Now().Add(time.Hour), s.ExpiresAt)
}

func TestManagerRejectsConcurrentOperation(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	deps, _ := stubDeps(t, clk)
	repo := MakeSimpleSessionRepo(clk, 0)
	m := MakeManager(repo, deps, clk, 0)
	ctx := context.Background()

	s, err := m.Start(ctx, wizard.EntryParams{CameraID: "0042"})
	require.NoError(t, err)
	release, err := repo.Lock(ctx, s.ID)
	require.NoError(t, err)
	defer release()

	_, err = m.Do(ctx, s.ID, func(w *wizard.Wizard) error { return nil })
	assert.True(t, failure.Is(err, failure.OperationInFlight))
}

func TestManagerUnknownSession(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	m := MakeManager(MakeSimpleSessionRepo(clk, 0), wizard.Deps{}, clk, 0)

	_, err := m.Do(context.Background(), "nope", func(w *wizard.Wizard) error { return nil })
	assert.True(t, failure.Is(err, failure.SessionNotFound))
}

func TestSessionJSONKeepsCapturedImage(t *testing.T) {
	s := Session{
		ID: "s1",
		Snapshot: wizard.Snapshot{
			Flow: wizard.StandardFlow,
			Step: wizard.ConfirmStep,
			Context: wizard.Context{
				CameraID: "0042",
				Format:   cart.Scans,
				Label:    label.CapturedImage{Data: pngBytes, MimeType: "image/png", Source: label.Replacement},
			},
		},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		ExpiresAt: time.Unix(1700007200, 0).UTC(),
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Session
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, s.ID, decoded.ID)
	assert.Equal(t, s.Snapshot, decoded.Snapshot)
	assert.True(t, s.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestRedisKeys(t *testing.T) {
	r := MakeRedisSessionRepo(nil, testclock.NewClock(time.Unix(0, 0)), 0)
	assert.Equal(t, "film_return:session:abc", r.sessionKey("abc"))
	assert.Equal(t, "film_return:session:abc:lock", r.lockKey("abc"))
	assert.Equal(t, DefaultLockTTL, r.LockTTL)
}
