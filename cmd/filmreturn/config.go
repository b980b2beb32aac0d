package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fotofoto/filmreturn/internal/cart"
	commercefactory "github.com/fotofoto/filmreturn/internal/cart/commerce/impl"
	"github.com/fotofoto/filmreturn/internal/events"
	sinkfactory "github.com/fotofoto/filmreturn/internal/events/sink/impl"
	"github.com/fotofoto/filmreturn/internal/label"
	carrierfactory "github.com/fotofoto/filmreturn/internal/label/carrier/impl"
	"github.com/fotofoto/filmreturn/internal/metrics"
	"github.com/fotofoto/filmreturn/internal/persist"
	storefactory "github.com/fotofoto/filmreturn/internal/persist/store/impl"
	"github.com/fotofoto/filmreturn/internal/server"
	"github.com/fotofoto/filmreturn/internal/session"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const (
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"

	// Bound on every outbound call (carrier, object store, storefront).
	defaultCallTimeout = 15 * time.Second

	// Bound on one Klaviyo post from the event worker.
	eventSendTimeout = 5 * time.Second

	// Events waiting for the worker; further events are dropped.
	eventQueueSize = events.DefaultQueueSize

	// Label photos larger than this are rejected before upload.
	maxLabelImageBytes = persist.DefaultMaxImageBytes

	// Idle sessions are forgotten after this long.
	sessionTTL = session.DefaultTTL

	// Replacement labels cost money; carts create orders.
	labelRequestsPerMinute = 5
	labelRequestBurst      = 3
	cartRequestsPerMinute  = 30
	cartRequestBurst       = 10

	// Time allowed for in-flight requests and queued events on shutdown.
	shutdownGracePeriod = 20 * time.Second
)

var flags = []cli.Flag{
	&cli.StringFlag{Name: "listen", Usage: "HTTP listen address", Value: defaultListenAddr, EnvVars: []string{"LISTEN_ADDR"}},
	&cli.StringFlag{Name: "log-level", Usage: "one of {disabled, debug, info, warn, error}", Value: defaultLogLevel, EnvVars: []string{"LOG_LEVEL"}},
	&cli.StringFlag{Name: "statsd-addr", Usage: "DogStatsD agent address; metrics noop when empty", EnvVars: []string{"STATSD_ADDR"}},
	&cli.DurationFlag{Name: "call-timeout", Usage: "timeout for each outbound call", Value: defaultCallTimeout, EnvVars: []string{"CALL_TIMEOUT"}},

	&cli.StringFlag{Name: "shopify-token", Usage: "Storefront API private token", EnvVars: []string{"SHOPIFY_STOREFRONT_TOKEN"}},
	&cli.StringFlag{Name: "shopify-domain", Usage: "myshopify.com store domain", Value: commercefactory.DefaultStoreDomain, EnvVars: []string{"SHOPIFY_STORE_DOMAIN"}},
	&cli.StringFlag{Name: "scans-variant-id", Usage: "product variant for Digital Scans", EnvVars: []string{"SCANS_VARIANT_ID"}},
	&cli.StringFlag{Name: "prints-variant-id", Usage: "product variant for Prints + Scans", EnvVars: []string{"PRINTS_VARIANT_ID"}},
	&cli.BoolFlag{Name: "stub-commerce", Usage: "fake cart creation instead of calling Shopify", EnvVars: []string{"STUB_COMMERCE"}},

	&cli.StringFlag{Name: "easypost-key", Usage: "EasyPost API key; labels are stubbed when empty", EnvVars: []string{"EASYPOST_API_KEY"}},
	&cli.StringFlag{Name: "label-carrier", Usage: "only rates from this carrier are bought", Value: label.DefaultEligibleCarrier, EnvVars: []string{"LABEL_CARRIER"}},
	&cli.StringFlag{Name: "klaviyo-key", Usage: "Klaviyo private API key; events are only logged when empty", EnvVars: []string{"KLAVIYO_API_KEY"}},

	&cli.StringFlag{Name: "r2-account-id", EnvVars: []string{"R2_ACCOUNT_ID"}},
	&cli.StringFlag{Name: "r2-access-key", EnvVars: []string{"R2_ACCESS_KEY"}},
	&cli.StringFlag{Name: "r2-secret-key", EnvVars: []string{"R2_SECRET_KEY"}},
	&cli.StringFlag{Name: "r2-bucket", EnvVars: []string{"R2_BUCKET_NAME"}},
	&cli.StringFlag{Name: "r2-public-url", Usage: "public base URL of the label bucket; required with R2 credentials", EnvVars: []string{"R2_PUBLIC_URL"}},

	&cli.StringFlag{Name: "redis-addr", Usage: "store sessions in Redis instead of memory", EnvVars: []string{"REDIS_ADDR"}},
	&cli.StringSliceFlag{Name: "trusted-proxies", Usage: "proxy CIDRs whose X-Forwarded-For is believed for rate limiting", EnvVars: []string{"TRUSTED_PROXIES"}},
}

func setLogging(logLevel string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	switch logLevel {
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("log level must be one of: {disabled, debug, info, warn, error}")
	}
	return nil
}

func configureMetrics(c *cli.Context) {
	if addr := c.String("statsd-addr"); addr != "" {
		metrics.Init(addr, "")
	}
	metrics.AddGlobalTags([]string{"service:film_return"})
}

func makeHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func makeLabelService(c *cli.Context, httpClient *http.Client) *label.Service {
	carrier := carrierfactory.MakeCarrier(c.String("easypost-key"), "", httpClient)
	return label.MakeService(carrier, c.String("label-carrier"), c.Duration("call-timeout"))
}

func makeGate(ctx context.Context, c *cli.Context, clk clock.Clock) (*persist.Gate, error) {
	store, err := storefactory.MakeStore(ctx, storefactory.R2Credentials{
		AccountID:     c.String("r2-account-id"),
		AccessKey:     c.String("r2-access-key"),
		SecretKey:     c.String("r2-secret-key"),
		Bucket:        c.String("r2-bucket"),
		PublicBaseURL: c.String("r2-public-url"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "object store")
	}
	return persist.MakeGate(store, clk, maxLabelImageBytes, c.Duration("call-timeout")), nil
}

func makeOrchestrator(c *cli.Context, httpClient *http.Client) (*cart.Orchestrator, error) {
	client, err := commercefactory.MakeClient(commercefactory.StorefrontConfig{
		StoreDomain: c.String("shopify-domain"),
		Token:       c.String("shopify-token"),
		Stub:        c.Bool("stub-commerce"),
	}, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "commerce client")
	}
	variants := map[cart.Format]string{
		cart.Scans:  c.String("scans-variant-id"),
		cart.Prints: c.String("prints-variant-id"),
	}
	if c.Bool("stub-commerce") {
		for f, id := range map[cart.Format]string{cart.Scans: "stub-scans", cart.Prints: "stub-prints"} {
			if variants[f] == "" {
				variants[f] = id
			}
		}
	}
	return cart.MakeOrchestrator(client, variants, c.Duration("call-timeout"))
}

func makeNotifier(c *cli.Context, httpClient *http.Client) *events.AsyncNotifier {
	s := sinkfactory.MakeSink(c.String("klaviyo-key"), "", httpClient)
	return events.MakeAsyncNotifier(s, eventQueueSize, eventSendTimeout)
}

func makeSessionRepo(c *cli.Context, clk clock.Clock) (session.Repo, error) {
	redisAddr := c.String("redis-addr")
	if redisAddr == "" {
		log.Info().Msg("no redis configured => sessions kept in memory")
		return session.MakeSimpleSessionRepo(clk, session.DefaultLockTTL), nil
	}
	redisClient, err := session.MakeRedisClient(redisAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "redis at %s failed to respond a ping request", redisAddr)
	}
	return session.MakeRedisSessionRepo(redisClient, clk, session.DefaultLockTTL), nil
}

func makeLimits(c *cli.Context, clk clock.Clock) (server.Limits, error) {
	proxies, err := server.ParseTrustedProxies(c.StringSlice("trusted-proxies"))
	if err != nil {
		return server.Limits{}, err
	}
	limits := server.Limits{
		Labels: server.MakeIPRateLimiter(clk, labelRequestsPerMinute, labelRequestBurst,
			"Too many label requests. Please wait a minute and try again."),
		Carts: server.MakeIPRateLimiter(clk, cartRequestsPerMinute, cartRequestBurst,
			"Too many checkout attempts. Please wait a minute and try again."),
	}
	limits.Labels.TrustedProxies = proxies
	limits.Carts.TrustedProxies = proxies
	return limits, nil
}
