// Package s3store exposes an S3 bucket as a remote store. Common prefixes
// are folders and objects are files.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/gofilefs/internal/logging"
	"github.com/fruitsalade/gofilefs/internal/metrics"
	"github.com/fruitsalade/gofilefs/pkg/models"
	"github.com/fruitsalade/gofilefs/pkg/remote"
)

const (
	backend   = "s3"
	delimiter = "/"
)

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string

	// Prefix roots the store below a key prefix instead of the bucket root.
	Prefix string
}

// API is the part of the S3 client the store uses.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store implements remote.Store over one bucket. Node IDs are object keys;
// folder IDs end with "/" except the root, whose ID is the configured prefix.
type Store struct {
	api    API
	bucket string
	root   string
}

var _ remote.Store = (*Store)(nil)

// New connects to the bucket described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithAPI builds a store on an existing client.
func NewWithAPI(api API, bucket, prefix string) *Store {
	return &Store{api: api, bucket: bucket, root: folderPrefix(prefix)}
}

// folderPrefix turns a user-supplied prefix into "" or "a/b/".
func folderPrefix(p string) string {
	p = strings.Trim(p, delimiter)
	if p == "" {
		return ""
	}
	return p + delimiter
}

// baseName returns the last element of a key, ignoring a trailing "/".
func baseName(key string) string {
	key = strings.TrimSuffix(key, delimiter)
	return key[strings.LastIndex(key, delimiter)+1:]
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

func (s *Store) record(op string, start time.Time, err error) {
	metrics.RecordRemoteRequest(backend, op, time.Since(start), err == nil || isNotFound(err))
}

// Root implements remote.Store.
func (s *Store) Root(ctx context.Context) (*models.ContentNode, error) {
	return models.NewFolder(s.root, baseName(s.root), time.Time{}), nil
}

// Reload implements remote.Store.
func (s *Store) Reload(ctx context.Context, node *models.ContentNode) error {
	if node.IsFolder() {
		return s.reloadFolder(ctx, node)
	}
	return s.reloadFile(ctx, node)
}

func (s *Store) reloadFolder(ctx context.Context, node *models.ContentNode) error {
	start := time.Now()
	var (
		children []*models.ContentNode
		marker   *types.Object
	)
	pages := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(node.ID),
		Delimiter: aws.String(delimiter),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			s.record("list", start, err)
			return fmt.Errorf("list %s: %w", node.ID, err)
		}
		for _, cp := range page.CommonPrefixes {
			prefix := aws.ToString(cp.Prefix)
			children = append(children, models.NewFolder(prefix, baseName(prefix), time.Time{}))
		}
		for i := range page.Contents {
			obj := &page.Contents[i]
			if aws.ToString(obj.Key) == node.ID {
				marker = obj
				continue
			}
			children = append(children, fileFromObject(obj))
		}
	}
	s.record("list", start, nil)

	if node.ID != s.root && marker == nil && len(children) == 0 {
		return fmt.Errorf("list %s: %w", node.ID, remote.ErrContentNotFound)
	}
	if marker != nil {
		node.CreatedAt = aws.ToTime(marker.LastModified)
	}
	node.MergeChildren(children)

	logging.Debug("s3 folder listed",
		zap.String("bucket", s.bucket),
		zap.String("prefix", node.ID),
		zap.Int("children", len(children)))
	return nil
}

func fileFromObject(obj *types.Object) *models.ContentNode {
	key := aws.ToString(obj.Key)
	modified := aws.ToTime(obj.LastModified)
	n := models.NewFile(key, baseName(key), modified, aws.ToInt64(obj.Size))
	n.ModTime = modified
	n.Hash = strings.Trim(aws.ToString(obj.ETag), `"`)
	n.Link = key
	return n
}

func (s *Store) reloadFile(ctx context.Context, node *models.ContentNode) error {
	start := time.Now()
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(node.ID),
	})
	s.record("head", start, err)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("head %s: %w", node.ID, remote.ErrContentNotFound)
		}
		return fmt.Errorf("head %s: %w", node.ID, err)
	}

	modified := aws.ToTime(out.LastModified)
	node.CreatedAt = modified
	node.ModTime = modified
	node.Size = aws.ToInt64(out.ContentLength)
	node.Hash = strings.Trim(aws.ToString(out.ETag), `"`)
	node.MimeType = aws.ToString(out.ContentType)
	node.Link = node.ID
	return nil
}

// Download implements remote.Store.
func (s *Store) Download(ctx context.Context, node *models.ContentNode) (remote.Stream, error) {
	if !node.IsFile() {
		return nil, fmt.Errorf("download %s: not a file", node.ID)
	}
	key := node.Link
	if key == "" {
		key = node.ID
	}
	return s.Open(ctx, key)
}

// Open streams the object at key. It lets other stores keep their blobs in
// the bucket.
func (s *Store) Open(ctx context.Context, key string) (remote.Stream, error) {
	start := time.Now()
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.record("get", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %s: %w", key, remote.ErrContentNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}

	logging.Debug("s3 get object",
		zap.String("key", key),
		zap.Int64("size", aws.ToInt64(out.ContentLength)))
	return remote.NewStream(out.Body, remote.EncodingFromContentType(aws.ToString(out.ContentType))), nil
}
