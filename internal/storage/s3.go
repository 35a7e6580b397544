package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/xxxsen/romsync/internal/config"
	"github.com/xxxsen/romsync/internal/hasher"
)

// S3Target stores device files in a bucket, for network shares exposed through an object store.
type S3Target struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Target builds a target backed by AWS S3 (or compatible) based on config.
func NewS3Target(ctx context.Context, cfg appconfig.S3Config, bucket, prefix string) (*S3Target, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Host)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &S3Target{client: client, bucket: bucket, prefix: prefix}, nil
}

func (t *S3Target) key(rel string) (string, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return "", err
	}
	return path.Join(t.prefix, clean), nil
}

func (t *S3Target) uri(key string) string {
	return s3Scheme + t.bucket + "/" + key
}

func (t *S3Target) Location(rel string) (string, error) {
	key, err := t.key(rel)
	if err != nil {
		return "", err
	}
	return t.uri(key), nil
}

func (t *S3Target) Exists(ctx context.Context, rel string) (bool, error) {
	key, err := t.key(rel)
	if err != nil {
		return false, err
	}
	_, err = t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", t.uri(key), err)
}

func (t *S3Target) Put(ctx context.Context, rel, srcPath string) error {
	key, err := t.key(rel)
	if err != nil {
		return err
	}
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open file for upload %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file for upload %s: %w", srcPath, err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(srcPath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", t.uri(key), err)
	}
	return nil
}

// Checksum streams the object back and digests it the same way as local files.
func (t *S3Target) Checksum(ctx context.Context, rel string) (string, error) {
	key, err := t.key(rel)
	if err != nil {
		return "", err
	}
	res, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get object %s: %w", t.uri(key), err)
	}
	defer res.Body.Close()
	return hasher.ContainerDigestReader(res.Body)
}

func (t *S3Target) Remove(ctx context.Context, rel string) error {
	key, err := t.key(rel)
	if err != nil {
		return err
	}
	_, err = t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", t.uri(key), err)
	}
	return nil
}

// RemoveAll deletes every object below relDir.
func (t *S3Target) RemoveAll(ctx context.Context, relDir string) error {
	key, err := t.key(relDir)
	if err != nil {
		return err
	}
	if key == path.Clean(t.prefix) || key == "." {
		return fmt.Errorf("refusing to clear device root %s", t.uri(t.prefix))
	}
	prefix := strings.TrimSuffix(key, "/") + "/"
	if prefix == "/" {
		return fmt.Errorf("refusing to clear bucket root %s", t.bucket)
	}
	var continuation *string
	for {
		resp, err := t.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(t.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("list objects in %s: %w", t.uri(key), err)
		}

		objs := make([]types.ObjectIdentifier, 0, len(resp.Contents))
		for _, obj := range resp.Contents {
			if obj.Key == nil {
				continue
			}
			objs = append(objs, types.ObjectIdentifier{Key: obj.Key})
		}
		if len(objs) > 0 {
			_, err = t.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(t.bucket),
				Delete: &types.Delete{
					Objects: objs,
					Quiet:   aws.Bool(true),
				},
			})
			if err != nil {
				return fmt.Errorf("delete objects from %s: %w", t.uri(key), err)
			}
		}

		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func normalizeEndpoint(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		return host
	}
	u := url.URL{
		Scheme: "https",
		Host:   host,
	}
	return u.String()
}
