// Package s3 stores entries as objects in an S3 bucket, one object per key under
// a namespace prefix. S3 has no per-object TTL that takes effect on read, so the
// deadline travels in object metadata and is enforced lazily by Get.
// List does not fetch metadata and may return keys whose deadline has passed;
// callers that read the value afterwards see a miss.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kng-mtd/kvproxy/internal/wire"
	pr "github.com/kng-mtd/kvproxy/provider"
)

// metaExpiresAt holds the deadline in unix nanoseconds; absent means no expiry.
const metaExpiresAt = "kvproxy-expires-at"

type Provider struct {
	client    *s3.Client
	bucket    string
	namespace string
	now       func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Bucket    string     // Required.
	Namespace string     // Prefixed to every key as "<namespace>/". Empty stores keys at the bucket root.
	Client    *s3.Client // Optional. Loaded from the environment when nil.
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.Client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Client = s3.NewFromConfig(awsCfg)
	}
	return &Provider{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		namespace: cfg.Namespace,
		now:       time.Now,
	}, nil
}

func (p *Provider) objectKey(key string) string {
	if p.namespace == "" {
		return key
	}
	return p.namespace + "/" + key
}

func (p *Provider) stripNamespace(objectKey string) (string, bool) {
	if p.namespace == "" {
		return objectKey, true
	}
	return strings.CutPrefix(objectKey, p.namespace+"/")
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer out.Body.Close()

	if exp, ok := parseExpiry(out.Metadata); ok && wire.Expired(p.now(), exp) {
		_ = p.Del(ctx, key)
		return nil, false, nil
	}
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	}
	if exp := wire.ExpiresAt(p.now(), ttl); !exp.IsZero() {
		in.Metadata = map[string]string{metaExpiresAt: strconv.FormatInt(exp.UnixNano(), 10)}
	}
	if _, err := p.client.PutObject(ctx, in); err != nil {
		return false, err
	}
	return true, nil
}

// Del is idempotent: S3 reports success for a missing object.
func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	return err
}

// List pages through ListObjectsV2. S3 returns keys in UTF-8 binary order.
func (p *Provider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.objectKey(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if k, ok := p.stripNamespace(aws.ToString(obj.Key)); ok {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (p *Provider) Close(context.Context) error { return nil }

func parseExpiry(meta map[string]string) (time.Time, bool) {
	raw, ok := meta[metaExpiresAt]
	if !ok {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
