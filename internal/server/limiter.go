package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const visitorIdleTTL = 3 * time.Minute

// IPRateLimiter keeps one token bucket per client IP. Idle visitors are
// swept at most once a minute, on the request path.
//
// The client IP is the connection's peer address. X-Forwarded-For is only
// read when the peer is one of TrustedProxies.
type IPRateLimiter struct {
	TrustedProxies []*net.IPNet

	clock     clock.Clock
	limit     rate.Limit
	burst     int
	message   string
	mutex     sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MakeIPRateLimiter allows perMinute requests per IP, with bursts of burst.
// Rejected requests get message as their error.
func MakeIPRateLimiter(clk clock.Clock, perMinute float64, burst int, message string) *IPRateLimiter {
	return &IPRateLimiter{
		clock:     clk,
		limit:     rate.Limit(perMinute / 60),
		burst:     burst,
		message:   message,
		visitors:  make(map[string]*visitor),
		lastSweep: clk.Now(),
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.clock.Now()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if now.Sub(l.lastSweep) >= time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r, l.TrustedProxies)) {
			metrics.Incr("server.rate_limited", nil)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": l.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ParseTrustedProxies accepts CIDR blocks or single addresses.
func ParseTrustedProxies(list []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, errors.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trusted proxy %q", entry)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func trusted(ip string, proxies []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range proxies {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// clientIP walks X-Forwarded-For from the right, past trusted proxies, and
// returns the first untrusted hop.
func clientIP(r *http.Request, proxies []*net.IPNet) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.Trim(r.RemoteAddr, "[]")
	}
	if !trusted(ip, proxies) {
		return ip
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		ip = hop
		if !trusted(hop, proxies) {
			break
		}
	}
	return ip
}
