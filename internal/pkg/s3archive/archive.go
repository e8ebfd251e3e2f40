package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
)

// objectStore is the subset of *s3.Client used by the archiver.
type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Archiver copies raw webhook payloads to an S3-compatible bucket.
type Archiver struct {
	store  objectStore
	bucket string
	now    func() time.Time
}

// New builds an archiver and checks that the bucket is reachable. Outside
// prod a missing bucket is created. Returns nil when the archive is disabled.
func New(ctx context.Context, cfg config.S3Archive, appEnv string) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (Backblaze B2, MinIO) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	a := newArchiver(client, cfg.BucketName)
	if err := a.ensureBucket(ctx, cfg, appEnv); err != nil {
		return nil, err
	}
	log.WithField("bucket", cfg.BucketName).Info("Webhook payload archive ready")
	return a, nil
}

func newArchiver(store objectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket, now: time.Now}
}

func (a *Archiver) ensureBucket(ctx context.Context, cfg config.S3Archive, appEnv string) error {
	_, err := a.store.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	if appEnv == "prod" {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}

	log.WithField("bucket", a.bucket).Warn("Archive bucket not found, attempting to create it")
	input := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	// AWS outside us-east-1 needs a location constraint; S3-compatible services reject it.
	if cfg.EndpointURL == "" && cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := a.store.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ObjectKey returns webhooks/YYYY/MM/DD/<eventKey>.json for the archive date.
func ObjectKey(eventKey string, at time.Time) string {
	at = at.UTC()
	safe := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(eventKey)
	return fmt.Sprintf("webhooks/%04d/%02d/%02d/%s.json", at.Year(), int(at.Month()), at.Day(), safe)
}

// ArchivePayload stores payload under the event key. Re-archiving the same
// key overwrites the object with identical content.
func (a *Archiver) ArchivePayload(ctx context.Context, eventKey string, payload []byte) error {
	key := ObjectKey(eventKey, a.now())
	_, err := a.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(payload))),
		Metadata: map[string]string{
			"event-key":     eventKey,
			"upload-source": "workitu-billing-webhook",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.WithFields(log.Fields{
		"bucket": a.bucket,
		"key":    key,
		"size":   len(payload),
	}).Debug("Webhook payload archived")
	return nil
}
