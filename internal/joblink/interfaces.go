package joblink

import "context"

// Fetcher performs a plain HTTP fetch of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchOutcome, error)
}

// Renderer fetches a server-side rendered snapshot of a URL.
type Renderer interface {
	Render(ctx context.Context, url string) (FetchOutcome, error)
}

// Publisher pushes resolution events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}
