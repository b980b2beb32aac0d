package persist

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	"github.com/fotofoto/filmreturn/internal/metrics"
	"github.com/fotofoto/filmreturn/internal/persist/store"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxImageBytes = 5 << 20
	DefaultCallTimeout   = 15 * time.Second

	uploadFailedMsg = "We couldn't save your label photo. Please try again."
)

var extensionByType = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Gate promotes a captured label image to a hosted URL with exactly one
// object store write per call.
type Gate struct {
	Store       store.Store
	Clock       clock.Clock
	MaxBytes    int
	CallTimeout time.Duration

	// Last key timestamp handed out; keys never repeat even within one millisecond.
	mutex      sync.Mutex
	lastMillis int64
}

func MakeGate(s store.Store, clk clock.Clock, maxBytes int, callTimeout time.Duration) *Gate {
	if clk == nil {
		clk = clock.WallClock
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Gate{Store: s, Clock: clk, MaxBytes: maxBytes, CallTimeout: callTimeout}
}

// Validate checks the image without touching the network and returns its sniffed content type.
func (g *Gate) Validate(img label.CapturedImage) (string, error) {
	if len(img.Data) == 0 {
		return "", failure.New(failure.InvalidImage, "The label photo is empty. Please retake it.")
	}
	if len(img.Data) > g.MaxBytes {
		return "", failure.Newf(
			failure.InvalidImage, "The label photo is too large (max %d MB). Please retake it.", g.MaxBytes>>20,
		)
	}
	contentType := http.DetectContentType(img.Data)
	if _, ok := extensionByType[contentType]; !ok {
		return "", failure.Newf(failure.InvalidImage, "Unsupported image type %s. Please use a JPEG or PNG photo.", contentType)
	}
	return contentType, nil
}

// Persist uploads img and returns its hosted URL. Calling it twice with the
// same bytes yields two distinct URLs.
func (g *Gate) Persist(ctx context.Context, cameraID string, img label.CapturedImage) (hosted label.HostedURL, err error) {
	contentType, err := g.Validate(img)
	if err != nil {
		return label.HostedURL{}, err
	}
	defer metrics.BenchmarkMethod(time.Now(), "image.persist", nil)
	defer func() { metrics.Outcome("image.persist", err) }()

	key := g.objectKey(cameraID, extensionByType[contentType])
	putCtx, cancel := context.WithTimeout(ctx, g.CallTimeout)
	defer cancel()
	publicURL, err := g.Store.Put(putCtx, key, img.Data, contentType)
	if err != nil {
		log.Error().Err(err).Str("camera_id", cameraID).Str("key", key).Msg("label upload failed")
		return label.HostedURL{}, failure.Wrap(err, failure.UploadFailed, uploadFailedMsg)
	}
	log.Info().Str("camera_id", cameraID).Str("url", publicURL).Msg("label image persisted")
	return label.HostedURL{URL: publicURL, Source: img.Source}, nil
}

func (g *Gate) objectKey(cameraID string, ext string) string {
	now := g.Clock.Now().UnixNano() / int64(time.Millisecond)
	g.mutex.Lock()
	if now <= g.lastMillis {
		now = g.lastMillis + 1
	}
	g.lastMillis = now
	g.mutex.Unlock()
	return fmt.Sprintf("labels/%s_%d.%s", sanitizeKeySegment(cameraID), now, ext)
}

func sanitizeKeySegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
