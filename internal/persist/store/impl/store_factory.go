package impl

import (
	"context"
	"net/url"

	"github.com/fotofoto/filmreturn/internal/persist/store"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// R2Credentials configures the Cloudflare R2 bucket holding label images.
type R2Credentials struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

func (c R2Credentials) complete() bool {
	return c.AccountID != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// MakeStore returns the R2-backed store, or the stub store when R2 is not
// fully configured. A configured bucket without an absolute public URL is an
// error: its objects could not be fetched by the lab.
func MakeStore(ctx context.Context, creds R2Credentials) (store.Store, error) {
	if !creds.complete() {
		log.Warn().Msg("R2 credentials incomplete => label uploads are stubbed")
		return MakeStubStore(), nil
	}
	u, err := url.Parse(creds.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("R2 public URL %q must be an absolute http(s) URL", creds.PublicBaseURL)
	}
	return NewS3Store(ctx, S3StoreConfig{
		Bucket:        creds.Bucket,
		Region:        "auto",
		Endpoint:      R2Endpoint(creds.AccountID),
		AccessKey:     creds.AccessKey,
		SecretKey:     creds.SecretKey,
		PublicBaseURL: creds.PublicBaseURL,
	})
}
