package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fotofoto/filmreturn/internal/cart"
	commerceimpl "github.com/fotofoto/filmreturn/internal/cart/commerce/impl"
	"github.com/fotofoto/filmreturn/internal/events"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	carrierimpl "github.com/fotofoto/filmreturn/internal/label/carrier/impl"
	"github.com/fotofoto/filmreturn/internal/persist"
	storeimpl "github.com/fotofoto/filmreturn/internal/persist/store/impl"
	"github.com/fotofoto/filmreturn/internal/session"
	"github.com/fotofoto/filmreturn/internal/wizard"

	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var pngDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

type recordingNotifier struct {
	mutex sync.Mutex
	names []string
}

func (n *recordingNotifier) Emit(name string, email string, properties map[string]interface{}) {
	n.mutex.Lock()
	n.names = append(n.names, name)
	n.mutex.Unlock()
}

func (n *recordingNotifier) list() []string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]string(nil), n.names...)
}

type rejectingCarts struct{}

func (rejectingCarts) CreateCart(ctx context.Context, req cart.Request) (string, error) {
	return "", failure.New(failure.CartUserError, "Variant out of stock")
}

type testEnv struct {
	clock    *testclock.Clock
	store    *storeimpl.StubStore
	carrier  *carrierimpl.StubCarrier
	notifier *recordingNotifier
	deps     wizard.Deps
	handler  http.Handler
	header   map[string]string
}

func newTestEnv(t *testing.T, override func(*wizard.Deps)) *testEnv {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	env := &testEnv{
		clock:    clk,
		store:    storeimpl.MakeStubStore(),
		carrier:  &carrierimpl.StubCarrier{},
		notifier: &recordingNotifier{},
	}
	commerce, err := commerceimpl.MakeClient(commerceimpl.StorefrontConfig{Stub: true}, nil)
	require.NoError(t, err)
	orchestrator, err := cart.MakeOrchestrator(commerce, map[cart.Format]string{cart.Scans: "1", cart.Prints: "2"}, time.Second)
	require.NoError(t, err)
	env.deps = wizard.Deps{
		Labels: label.MakeService(env.carrier, "", time.Second),
		Images: persist.MakeGate(env.store, clk, persist.DefaultMaxImageBytes, time.Second),
		Carts:  orchestrator,
		Events: env.notifier,
	}
	if override != nil {
		override(&env.deps)
	}
	sessions := session.MakeManager(session.MakeSimpleSessionRepo(clk, 0), env.deps, clk, 0)
	srv := MakeServer(env.deps, sessions, Limits{
		Labels: MakeIPRateLimiter(clk, 2, 2, "Too many label requests."),
		Carts:  MakeIPRateLimiter(clk, 60, 10, "Too many checkout attempts."),
	})
	env.handler = srv.Handler(zerolog.Nop())
	return env
}

func (env *testEnv) do(t *testing.T, method string, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:5555"
	for k, v := range env.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	out := map[string]interface{}{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestCreateCartEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodPost, "/api/cart-create", map[string]string{
		"format":     "scans",
		"cid":        "0042",
		"email":      "a@b.com",
		"labelToken": "LT-1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, out["checkoutUrl"])

	rec, out = env.do(t, http.MethodPost, "/api/cart-create", map[string]string{"format": "polaroid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, out["error"])

	rec, out = env.do(t, http.MethodPost, "/api/cart-create", map[string]string{"format": "scans", "cid": "0042", "email": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields.", out["error"])
}

func TestCreateCartUserErrorMessageReachesCustomer(t *testing.T) {
	env := newTestEnv(t, func(d *wizard.Deps) { d.Carts = rejectingCarts{} })
	rec, out := env.do(t, http.MethodPost, "/api/cart-create", map[string]string{"format": "prints", "cid": "0042", "email": "a@b.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Variant out of stock", out["error"])
}

func TestSendEventIsAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodPost, "/api/klaviyo-event", map[string]interface{}{
		"event":      events.StartedDeveloping,
		"email":      "a@b.com",
		"properties": map[string]string{"cid": "0042"},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, []string{events.StartedDeveloping}, env.notifier.list())

	rec, _ = env.do(t, http.MethodPost, "/api/klaviyo-event", map[string]string{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplacementLabelEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	body := map[string]interface{}{
		"cid":   "0042",
		"email": "a@b.com",
		"address": map[string]string{
			"name": "Ada Lovelace", "street1": "1 Main St", "city": "Brooklyn", "state": "NY", "zip": "11201",
		},
	}
	rec, out := env.do(t, http.MethodPost, "/api/replacement-label", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, out["labelUrl"])
	assert.Equal(t, "STUB_TRACKING_1", out["trackingNumber"])

	body["address"] = map[string]string{"name": "Ada", "street1": "1 Main St", "city": "Brooklyn", "state": "NY", "zip": "1234"}
	rec, _ = env.do(t, http.MethodPost, "/api/replacement-label", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1), env.carrier.Purchases())
}

func TestReplacementLabelIsRateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t, nil)
	body := map[string]interface{}{"cid": "0042", "address": map[string]string{"zip": "1"}}

	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/replacement-label", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec, _ := env.do(t, http.MethodPost, "/api/replacement-label", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	env.clock.Advance(time.Minute)
	rec, _ = env.do(t, http.MethodPost, "/api/replacement-label", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForwardedForFromUntrustedPeerIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	body := map[string]interface{}{"cid": "0042", "address": map[string]string{"zip": "1"}}

	for i := 0; i < 2; i++ {
		env.header = map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)}
		rec, _ := env.do(t, http.MethodPost, "/api/replacement-label", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	env.header = map[string]string{"X-Forwarded-For": "10.0.0.99"}
	rec, out := env.do(t, http.MethodPost, "/api/replacement-label", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many label requests.", out["error"])
}

func TestCommitLimitHasItsOwnMessage(t *testing.T) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	l := MakeIPRateLimiter(clk, 1, 1, "Too many checkout attempts.")
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	for _, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cart-create", nil))
		assert.Equal(t, want, rec.Code)
	}
	assert.Contains(t, rec.Body.String(), "Too many checkout attempts.")
}

func TestStartSessionIgnoresNonFiniteDiscount(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodPost, "/api/sessions?cid=0042&discount_pct=inf", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, out["id"])
}

func TestWriteJSONReportsUnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]interface{}{"pct": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 198.51.100.4, 192.168.1.1")
	assert.Equal(t, "198.51.100.4", clientIP(req, proxies))
	assert.Equal(t, "10.1.2.3", clientIP(req, nil))

	req.RemoteAddr = "203.0.113.7:5555"
	assert.Equal(t, "203.0.113.7", clientIP(req, proxies))

	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "10.9.9.9")
	assert.Equal(t, "10.9.9.9", clientIP(req, proxies))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestUploadLabelEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodPost, "/api/upload-label", map[string]string{"imageData": pngDataURL, "cid": "0042"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, out["url"], "labels%2F0042_1700000000000.png")
	assert.Equal(t, 1, env.store.Len())

	rec, _ = env.do(t, http.MethodPost, "/api/upload-label", map[string]string{"imageData": "not a data url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, env.store.Len())
}

func TestSessionFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodPost, "/api/sessions?cid=0042", map[string]interface{}{"discount_pct": 15})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := out["id"].(string)
	assert.Equal(t, "email", out["step"])
	assert.Equal(t, []interface{}{"email", "format", "label", "confirm"}, out["steps"])
	base := "/api/sessions/" + id

	rec, _ = env.do(t, http.MethodPost, base+"/commit", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, base+"/email", map[string]string{"email": "a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, out = env.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "format", out["step"])

	rec, out = env.do(t, http.MethodPut, base+"/format", map[string]string{"format": "scans"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "$8.49", out["price"])
	rec, _ = env.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = env.do(t, http.MethodPost, base+"/label/capture", map[string]string{"imageData": pngDataURL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["hasLabel"])
	assert.Equal(t, "camera", out["labelSource"])
	rec, out = env.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirm", out["step"])

	rec, out = env.do(t, http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, out["checkoutUrl"])
	view := out["session"].(map[string]interface{})
	assert.Equal(t, "completed", view["step"])
	assert.NotEmpty(t, view["labelUrl"])
	assert.Equal(t, 1, env.store.Len())

	assert.Equal(t, []string{
		events.StartedDeveloping,
		events.SelectedFormat,
		events.UploadedLabel,
		events.CompletedCheckout,
	}, env.notifier.list())

	rec, _ = env.do(t, http.MethodPost, base+"/commit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFastTrackSessionOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"cid": "0042", "lt": "LT-9"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := out["id"].(string)
	assert.Equal(t, "fast_track", out["flow"])
	assert.Equal(t, []interface{}{"format", "confirm"}, out["steps"])

	rec, _ = env.do(t, http.MethodPost, "/api/sessions/"+id+"/retreat", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/sessions/"+id+"/label", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, out["error"])
}

func TestParseDataURL(t *testing.T) {
	data, mimeType, err := parseDataURL(pngDataURL)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", mimeType)

	for _, bad := range []string{"", "data:image/png,abc", "data:image/png;base64,%%%", "https://x/y.png", "data:;base64,"} {
		_, _, err := parseDataURL(bad)
		assert.True(t, failure.Is(err, failure.InvalidImage), bad)
	}
}
