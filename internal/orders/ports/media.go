package ports

import "context"

// MediaResolver turns a stored media reference into a URL a buyer can fetch.
type MediaResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
