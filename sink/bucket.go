package sink

import (
	"context"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // registers the file:// bucket driver
	_ "gocloud.dev/blob/memblob"  // registers the mem:// bucket driver
)

const contentTypeJSON = "application/json"

// BucketWriter stores each record as one object.
type BucketWriter struct {
	bucket *blob.Bucket
}

// OpenBucketWriter opens the bucket at url, for example mem:// or
// file:///var/lib/tracker?create_dir=true.
func OpenBucketWriter(ctx context.Context, url string) (*BucketWriter, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewBucketWriter(bucket), nil
}

// NewBucketWriter writes into an already opened bucket. Close closes it.
func NewBucketWriter(bucket *blob.Bucket) *BucketWriter {
	return &BucketWriter{bucket: bucket}
}

func (w *BucketWriter) Write(ctx context.Context, key string, payload []byte) error {
	return w.bucket.WriteAll(ctx, key, payload, &blob.WriterOptions{ContentType: contentTypeJSON})
}

func (w *BucketWriter) Close(_ context.Context) error {
	return w.bucket.Close()
}

// Bucket exposes the underlying bucket, mainly for reading records back.
func (w *BucketWriter) Bucket() *blob.Bucket {
	return w.bucket
}
