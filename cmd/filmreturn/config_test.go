package main

import (
	"flag"
	"testing"

	"github.com/fotofoto/filmreturn/internal/cart"
	"github.com/fotofoto/filmreturn/internal/session"

	"github.com/juju/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func makeTestContext(t *testing.T, args ...string) *cli.Context {
	set := flag.NewFlagSet("filmreturn", flag.ContinueOnError)
	for _, f := range flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(&cli.App{Name: "filmreturn"}, set, nil)
}

func TestSetLogging(t *testing.T) {
	for _, level := range []string{"disabled", "debug", "info", "warn", "error"} {
		assert.NoError(t, setLogging(level), level)
	}
	assert.Error(t, setLogging("verbose"))
	require.NoError(t, setLogging("disabled"))
}

func TestMakeOrchestratorNeedsTokenUnlessStubbed(t *testing.T) {
	_, err := makeOrchestrator(makeTestContext(t, "--scans-variant-id=1", "--prints-variant-id=2"), nil)
	assert.Error(t, err)

	o, err := makeOrchestrator(makeTestContext(t, "--stub-commerce"), nil)
	require.NoError(t, err)
	assert.Equal(t, "stub-scans", o.Variants[cart.Scans])

	_, err = makeOrchestrator(makeTestContext(t, "--shopify-token=shpat", "--scans-variant-id=1"), nil)
	assert.Error(t, err)

	o, err = makeOrchestrator(makeTestContext(t, "--shopify-token=shpat", "--scans-variant-id=1", "--prints-variant-id=2"), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultCallTimeout, o.CallTimeout)
}

func TestMakeSessionRepoDefaultsToMemory(t *testing.T) {
	repo, err := makeSessionRepo(makeTestContext(t), clock.WallClock)
	require.NoError(t, err)
	assert.IsType(t, &session.SimpleSessionRepo{}, repo)
}

func TestMakeLimitsParsesTrustedProxies(t *testing.T) {
	limits, err := makeLimits(makeTestContext(t, "--trusted-proxies=10.0.0.0/8", "--trusted-proxies=192.168.1.1"), clock.WallClock)
	require.NoError(t, err)
	require.Len(t, limits.Labels.TrustedProxies, 2)
	assert.Equal(t, limits.Labels.TrustedProxies, limits.Carts.TrustedProxies)

	limits, err = makeLimits(makeTestContext(t), clock.WallClock)
	require.NoError(t, err)
	assert.Empty(t, limits.Labels.TrustedProxies)

	_, err = makeLimits(makeTestContext(t, "--trusted-proxies=proxy.internal"), clock.WallClock)
	assert.Error(t, err)
}
