package metrics

import (
	"fmt"
	"time"

	"github.com/fotofoto/filmreturn/internal/failure"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

const (
	statsdNamespace = "film_return."
	statsdScope     = "default"
)

// Client stays a no-op until Init connects to an agent, so packages and tests can emit freely.
var Client statsd.ClientInterface = &statsd.NoOpClient{}
var runtimeGlobalTags = make([]string, 0)

func Init(addr string, scope string) {
	if scope == "" {
		scope = statsdScope
	}
	c, err := statsd.New(addr)
	if err != nil {
		Client = &statsd.NoOpClient{}
		log.Info().Err(err).Msg("failed connecting to datadog agent => metrics will noop")
		return
	}
	Client = c
	c.Namespace = statsdNamespace
	c.Tags = []string{fmt.Sprintf("scope:%s", scope)}
	log.Info().Str("addr", addr).Msg("successfully connected to datadog agent")
}

func AddGlobalTags(tags []string) {
	runtimeGlobalTags = append(runtimeGlobalTags, tags...)
}

func withGlobalTags(tags []string) []string {
	merged := make([]string, 0, len(runtimeGlobalTags)+len(tags))
	merged = append(merged, runtimeGlobalTags...)
	return append(merged, tags...)
}

func Count(name string, value int64, tags []string) error {
	return Client.Count(name, value, withGlobalTags(tags), 1.0 /* rate */)
}

func Distribution(name string, value float64, tags []string) error {
	return Client.Distribution(name, value, withGlobalTags(tags), 1.0 /* rate */)
}

func Gauge(name string, value float64, tags []string) error {
	return Client.Gauge(name, value, withGlobalTags(tags), 1.0 /* rate */)
}

func Incr(name string, tags []string) error {
	return Client.Incr(name, withGlobalTags(tags), 1.0 /* rate */)
}

// Outcome counts one call of an external operation tagged with success or the failure kind.
func Outcome(name string, err error) {
	outcome := "outcome:success"
	if err != nil {
		outcome = fmt.Sprintf("outcome:%s", failure.KindOf(err))
	}
	Incr(name, []string{outcome})
}

func BenchmarkMethod(startTime time.Time, methodName string, tags []string) {
	elapsed := time.Since(startTime)
	metricName := fmt.Sprintf("%s.elapsed_ns", methodName)
	Distribution(metricName, float64(elapsed.Nanoseconds()), tags)
}
