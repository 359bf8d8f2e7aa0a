package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"kvault/internal/platform/config"
	"kvault/pkg/requestcontext"
)

// objectPutter is the slice of the S3 client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes objects to an S3-compatible bucket (AWS or MinIO).
type S3Store struct {
	client        objectPutter
	bucket        string
	folder        string
	endpoint      string
	publicBaseURL string
}

// NewS3 builds a client from static credentials when given, falling back to
// the default AWS credential chain otherwise. A custom endpoint switches to
// path-style addressing for MinIO.
func NewS3(ctx context.Context, cfg config.BlobConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client objectPutter, cfg config.BlobConfig) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        cfg.Bucket,
		folder:        cfg.Folder,
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, obj Object) (Ref, error) {
	key := Key(s.folder, obj.Name, requestcontext.Now(ctx))

	// Payload signing needs a seekable body.
	body, ok := obj.Body.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(obj.Body)
		if err != nil {
			return Ref{}, fmt.Errorf("read upload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if obj.Size > 0 {
		input.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Ref{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Ref{URL: s.urlFor(key), ContentID: key}, nil
}

func (s *S3Store) urlFor(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escaped
	}
	return s.endpoint + "/" + s.bucket + "/" + escaped
}
