package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	cfg "github.com/maheshrc27/postflow/configs"
)

const r2Scheme = "r2://"

// Enough leading bytes for filetype to recognise every image format it knows.
const sniffBytes = 262

var (
	ErrR2Disabled = errors.New("r2 storage is not configured")
	ErrNotAnImage = errors.New("stored object is not an image")
	ErrEmptyR2Key = errors.New("empty r2 object key")
)

// MediaResolver turns a post's stored image reference into a URL a platform can fetch.
type MediaResolver interface {
	Resolve(ctx context.Context, imageURL string) (string, error)
}

type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type R2Service struct {
	getter    ObjectGetter
	presigner ObjectPresigner
	bucket    string
	ttl       time.Duration
}

func NewR2Service(getter ObjectGetter, presigner ObjectPresigner, bucket string, ttl time.Duration) *R2Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &R2Service{getter: getter, presigner: presigner, bucket: bucket, ttl: ttl}
}

// NewR2ServiceFromConfig builds the service against Cloudflare R2. When R2 is not
// configured the returned service still passes http(s) URLs through.
func NewR2ServiceFromConfig(ctx context.Context, r2 cfg.R2) (*R2Service, error) {
	if !r2.Enabled() {
		return NewR2Service(nil, nil, "", r2.PresignTTL), nil
	}

	client, err := NewR2Client(ctx, r2)
	if err != nil {
		return nil, err
	}

	return NewR2Service(client, s3.NewPresignClient(client), r2.BucketName, r2.PresignTTL), nil
}

func NewR2Client(ctx context.Context, r2 cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	}), nil
}

func (r *R2Service) Resolve(ctx context.Context, imageURL string) (string, error) {
	if !strings.HasPrefix(imageURL, r2Scheme) {
		return imageURL, nil
	}
	if r.getter == nil || r.presigner == nil {
		return "", ErrR2Disabled
	}

	key := strings.TrimPrefix(imageURL, r2Scheme)
	if key == "" {
		return "", ErrEmptyR2Key
	}

	if err := r.checkImage(ctx, key); err != nil {
		return "", err
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	return req.URL, nil
}

func (r *R2Service) checkImage(ctx context.Context, key string) error {
	out, err := r.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", sniffBytes-1)),
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	defer out.Body.Close()

	head, err := io.ReadAll(io.LimitReader(out.Body, sniffBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}

	if !filetype.IsImage(head) {
		return fmt.Errorf("%w: %s", ErrNotAnImage, key)
	}
	return nil
}
