// Package s3 implements storage.Store on an S3 (or S3 compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/storage"
)

// Ensure type implements interface.
var _ storage.Store = (*Store)(nil)

type Store struct {
	client s3iface.S3API
	bucket string
}

// NewStore returns a Store for bucket using client.
func NewStore(client s3iface.S3API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewStoreFromConfig creates an S3 client from the default credential chain
// and the region/endpoint options in cfg.
func NewStoreFromConfig(cfg *storage.Config) (*Store, error) {
	backend, bucket, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	if backend != storage.BackendS3 {
		return nil, errors.New(storage.ErrInvalidURL, "not an s3 url: "+cfg.URL)
	}

	config := &aws.Config{}
	if cfg.Region != "" {
		config.Region = aws.String(cfg.Region)
		// else, NewSession will use the default region.
	}
	if cfg.Endpoint != "" {
		config.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		config.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating S3 session")
	}
	return NewStore(s3.New(sess), bucket), nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return errors.Wrapf(err, "putting S3 object s3://%s/%s", s.bucket, key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey:
				return nil, storage.NewErrObjectNotFound(key)
			}
		}
		return nil, errors.Wrapf(err, "fetching S3 object s3://%s/%s", s.bucket, key)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, errors.Wrapf(err, "reading S3 object s3://%s/%s", s.bucket, key)
	}
	return buf.Bytes(), nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			out = append(out, storage.ObjectInfo{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing S3 prefix s3://%s/%s", s.bucket, prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
