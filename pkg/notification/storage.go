package notification

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // "file:///..." buckets, e.g. local dev
	_ "gocloud.dev/blob/memblob"  // "mem://" buckets, used by tests
	// Cloud provider buckets are opt-in - import in your application code:
	// _ "gocloud.dev/blob/s3blob"
	// _ "gocloud.dev/blob/gcsblob"
	// _ "gocloud.dev/blob/azureblob"
)

// ContentStore persists rendered notification bodies (spec.md §4.5's render
// stage output) behind a Go Cloud blob bucket, so the dispatch stage can
// reference content by key instead of carrying it through the event log.
type ContentStore struct {
	bucket *blob.Bucket
}

// OpenContentStore opens a bucket at the given Go Cloud URL, e.g.
// "mem://" for tests or "file:///var/lib/labour/notifications" for a
// single-node deployment.
func OpenContentStore(ctx context.Context, bucketURL string) (*ContentStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("notification: open content bucket: %w", err)
	}
	return &ContentStore{bucket: bucket}, nil
}

func (s *ContentStore) Close() error { return s.bucket.Close() }

// Put writes the rendered body under notificationID and returns the content
// reference stored on RenderedContentStored.
func (s *ContentStore) Put(ctx context.Context, notificationID string, body []byte) (string, error) {
	key := contentKey(notificationID)
	if err := s.bucket.WriteAll(ctx, key, body, nil); err != nil {
		return "", fmt.Errorf("notification: write rendered content: %w", err)
	}
	return key, nil
}

func (s *ContentStore) Get(ctx context.Context, contentRef string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, contentRef)
	if err != nil {
		return nil, fmt.Errorf("notification: read rendered content: %w", err)
	}
	return data, nil
}

func contentKey(notificationID string) string {
	return "notifications/" + notificationID + ".body"
}
