package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 is a Filesystem rooted at a bucket and key prefix on S3.
type S3 struct {
	client *s3.Client
	root   string
	bucket string
	prefix string
}

// NewS3 opens an S3 filesystem at an s3:// or s3a:// root. Credentials
// come from opts when set, otherwise from the default provider chain.
func NewS3(ctx context.Context, root string, opts S3Options) (*S3, error) {
	bucket, prefix, err := splitS3Root(root)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg),
		root:   root,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// splitS3Root parses s3://bucket/prefix into its parts.
func splitS3Root(root string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(strings.TrimPrefix(root, "s3a://"), "s3://")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", fmt.Errorf("s3 root %q is missing a bucket name", root)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, prefix, nil
}

// Root returns the s3:// root URI.
func (s *S3) Root() string {
	return s.root
}

// Join joins path elements into a slash-separated name under the root.
func (s *S3) Join(elem ...string) string {
	return path.Join(elem...)
}

// List pages through the bucket under the glob's literal prefix and
// returns keys matching the glob, relative to the root prefix.
func (s *S3) List(ctx context.Context, glob string) ([]string, error) {
	listPrefix := s.key(globPrefix(glob))

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, listPrefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(strings.TrimPrefix(aws.ToString(obj.Key), s.prefix), "/")
			ok, err := matchGlob(glob, name)
			if err != nil {
				return nil, err
			}
			if ok {
				names = append(names, name)
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

// Open streams the named object.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, s.key(name), err)
	}
	return out.Body, nil
}

// Create returns a writer that buffers the object in memory and uploads
// it on Close. Parquet part files are bounded by the row-group size, so
// buffering a single part is acceptable.
func (s *S3) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	return &s3Writer{
		ctx:    ctx,
		client: s.client,
		bucket: s.bucket,
		key:    s.key(name),
	}, nil
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	if name == "" {
		return s.prefix
	}
	return s.prefix + "/" + name
}

type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", w.bucket, w.key, err)
	}
	return nil
}
