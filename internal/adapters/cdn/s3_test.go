package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
)

type fakeS3 struct {
	objects  map[string][]byte
	types    map[string]string
	pageSize int
	deletes  []int
	listErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	// стабильный порядок для постраничной выдачи
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		fmt.Sscanf(tok, "%d", &start)
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(fmt.Sprint(end))
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deletes = append(f.deletes, len(in.Delete.Objects))
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

type fakePresigner struct{ ttl time.Duration }

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.ttl = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + aws.ToString(in.Key) + "?sig=1"}, nil
}

func TestUploadPublicURL(t *testing.T) {
	api := newFakeS3()
	store := NewWithClient(api, &fakePresigner{}, Options{Bucket: "b", PublicBaseURL: "https://cdn.example/", Logger: zerolog.Nop()})
	url, err := store.Upload(context.Background(), "daily-posts/2026-10-19", "my image.png", domain.GeneratedImage{Data: []byte("png"), ContentType: "image/png"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example/daily-posts/2026-10-19/my%20image.png" {
		t.Fatalf("unexpected url %q", url)
	}
	if string(api.objects["daily-posts/2026-10-19/my image.png"]) != "png" {
		t.Fatalf("object not stored")
	}
}

func TestUploadPresignedURLWithGeneratedName(t *testing.T) {
	api := newFakeS3()
	presign := &fakePresigner{}
	store := NewWithClient(api, presign, Options{Bucket: "b", PresignTTL: time.Hour})
	url, err := store.Upload(context.Background(), "f", "", domain.GeneratedImage{Data: []byte("jpg"), ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "https://signed.example/f/") || !strings.Contains(url, ".jpg?sig=1") {
		t.Fatalf("unexpected url %q", url)
	}
	if presign.ttl != time.Hour {
		t.Fatalf("expected presign ttl 1h, got %v", presign.ttl)
	}
}

func TestUploadRejectsEmpty(t *testing.T) {
	store := NewWithClient(newFakeS3(), &fakePresigner{}, Options{Bucket: "b"})
	if _, err := store.Upload(context.Background(), "f", "x.png", domain.GeneratedImage{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeleteFolderPaginates(t *testing.T) {
	api := newFakeS3()
	for _, k := range []string{"daily-posts/a/1.png", "daily-posts/a/2.png", "daily-posts/a/3.png", "daily-posts/ab/keep.png"} {
		api.objects[k] = []byte("x")
	}
	store := NewWithClient(api, &fakePresigner{}, Options{Bucket: "b"})
	if err := store.DeleteFolder(context.Background(), "daily-posts/a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(api.objects) != 1 {
		t.Fatalf("expected only sibling folder left, got %v", api.objects)
	}
	if len(api.deletes) != 1 || api.deletes[0] != 3 {
		t.Fatalf("unexpected delete batches %v", api.deletes)
	}
}

func TestDeleteFolderErrors(t *testing.T) {
	api := newFakeS3()
	store := NewWithClient(api, &fakePresigner{}, Options{Bucket: "b"})
	if err := store.DeleteFolder(context.Background(), "/"); err == nil {
		t.Fatalf("expected refusal to delete bucket root")
	}
	api.listErr = errors.New("access denied")
	if err := store.DeleteFolder(context.Background(), "x"); err == nil {
		t.Fatalf("expected list error")
	}
}
