package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ErrUnsupportedReference is returned for references that are neither web
// URLs nor gs:// objects.
var ErrUnsupportedReference = errors.New("unsupported media reference")

// Config configures signing for gs:// references.
type Config struct {
	// AccessID and PrivateKey sign URLs locally. When empty the client's
	// ambient credentials are used.
	AccessID   string
	PrivateKey []byte
	URLTTL     time.Duration
	// SignTimeout bounds signing through the client, which may call the
	// IAM signBlob API when no local key is configured.
	SignTimeout time.Duration
}

// Resolver hands out fetchable URLs for stored media. Public http(s) URLs are
// returned unchanged and gs://bucket/object references are signed for URLTTL.
type Resolver struct {
	client *storage.Client
	cfg    Config
}

// NewResolver builds a resolver. client may be nil when AccessID and
// PrivateKey are set.
func NewResolver(client *storage.Client, cfg Config) *Resolver {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	if cfg.SignTimeout <= 0 {
		cfg.SignTimeout = 5 * time.Second
	}
	return &Resolver{client: client, cfg: cfg}
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedReference)
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedReference, err)
	}

	switch u.Scheme {
	case "http", "https":
		return ref, nil
	case "gs":
		return r.sign(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedReference, u.Scheme)
	}
}

func (r *Resolver) sign(ctx context.Context, bucket, object string) (string, error) {
	if bucket == "" || object == "" {
		return "", fmt.Errorf("%w: gs reference needs bucket and object", ErrUnsupportedReference)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("sign gs://%s/%s: %w", bucket, object, err)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(r.cfg.URLTTL),
	}
	if r.cfg.AccessID != "" {
		opts.GoogleAccessID = r.cfg.AccessID
		opts.PrivateKey = r.cfg.PrivateKey
	}

	if r.client == nil {
		signed, err := storage.SignedURL(bucket, object, opts)
		if err != nil {
			return "", fmt.Errorf("sign gs://%s/%s: %w", bucket, object, err)
		}
		return signed, nil
	}

	// BucketHandle.SignedURL takes no context, so the wait is bounded here.
	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		signed, err := r.client.Bucket(bucket).SignedURL(object, opts)
		done <- result{signed, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SignTimeout)
	defer cancel()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("sign gs://%s/%s: %w", bucket, object, res.err)
		}
		return res.url, nil
	case <-ctx.Done():
		return "", fmt.Errorf("sign gs://%s/%s: %w", bucket, object, ctx.Err())
	}
}
