// Package cdn хранит сгенерированные изображения в S3-совместимом хранилище.
package cdn

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

// deleteBatch — лимит ключей в одном DeleteObjects.
const deleteBatch = 1000

// ObjectAPI — используемая часть клиента S3.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Presigner выдаёт временные ссылки на объекты.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options задаёт параметры хранилища.
type Options struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	PresignTTL    time.Duration
	Logger        zerolog.Logger
}

// Store реализует domain.CDN поверх S3.
type Store struct {
	api        ObjectAPI
	presign    Presigner
	bucket     string
	publicBase string
	ttl        time.Duration
	log        zerolog.Logger
}

// New создаёт хранилище с клиентом из стандартной цепочки AWS.
// Endpoint включает path-style адресацию для S3-совместимых сервисов.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("%w: CDN_BUCKET не задан", domain.ErrConfiguration)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, s3.NewPresignClient(client), opts), nil
}

// NewWithClient создаёт хранилище поверх готовых клиентов.
func NewWithClient(api ObjectAPI, presign Presigner, opts Options) *Store {
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{
		api:        api,
		presign:    presign,
		bucket:     opts.Bucket,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		ttl:        ttl,
		log:        opts.Logger,
	}
}

// Upload кладёт изображение в папку и возвращает публичную или подписанную ссылку.
func (s *Store) Upload(ctx context.Context, folder, name string, image domain.GeneratedImage) (string, error) {
	if len(image.Data) == 0 {
		return "", fmt.Errorf("cdn: пустое изображение")
	}
	if name == "" {
		name = uuid.NewString() + extension(image.ContentType)
	}
	key := objectKey(folder, name)
	contentType := image.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	start := time.Now()
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image.Data),
		ContentType: aws.String(contentType),
	})
	metrics.ObserveNetworkRequest("cdn", "put_object", s.bucket, start, err)
	if err != nil {
		return "", fmt.Errorf("cdn: put %s: %w", key, err)
	}
	s.log.Info().Str("key", key).Int("bytes", len(image.Data)).Msg("cdn: изображение загружено")
	return s.objectURL(ctx, key)
}

// DeleteFolder удаляет все объекты с префиксом папки.
func (s *Store) DeleteFolder(ctx context.Context, folder string) error {
	prefix := strings.Trim(folder, "/")
	if prefix == "" {
		return fmt.Errorf("cdn: отказ удалять корень бакета")
	}
	prefix += "/"

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		metrics.ObserveNetworkRequest("cdn", "list_objects", s.bucket, start, err)
		if err != nil {
			return fmt.Errorf("cdn: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	for begin := 0; begin < len(keys); begin += deleteBatch {
		end := min(begin+deleteBatch, len(keys))
		ids := make([]s3types.ObjectIdentifier, 0, end-begin)
		for _, k := range keys[begin:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
		}
		start := time.Now()
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		metrics.ObserveNetworkRequest("cdn", "delete_objects", s.bucket, start, err)
		if err != nil {
			return fmt.Errorf("cdn: delete %s: %w", prefix, err)
		}
		if out != nil && len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("cdn: delete %s: %d ошибок, первая %s: %s", prefix, len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	s.log.Info().Str("folder", prefix).Int("objects", len(keys)).Msg("cdn: папка очищена")
	return nil
}

func (s *Store) objectURL(ctx context.Context, key string) (string, error) {
	if s.publicBase != "" {
		return s.publicBase + "/" + escapeKey(key), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("cdn: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func objectKey(folder, name string) string {
	return path.Join(strings.Trim(folder, "/"), name)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
