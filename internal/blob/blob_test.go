package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvault/internal/platform/config"
	"kvault/pkg/requestcontext"
)

var fixedNow = time.UnixMilli(1700000000000).UTC()

func TestKey(t *testing.T) {
	tests := []struct {
		folder, name, want string
	}{
		{"knowledge-vault", "report.pdf", "knowledge-vault/1700000000000-report.pdf"},
		{"/nested/", "../../etc/passwd", "nested/1700000000000-passwd"},
		{"", "my file.docx", "1700000000000-my_file.docx"},
		{"", `C:\docs\plan.txt`, "1700000000000-plan.txt"},
		{"", "  ", "1700000000000-upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.folder, tt.name, fixedNow), tt.name)
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), fixedNow)

	t.Run("endpoint url", func(t *testing.T) {
		putter := &fakePutter{}
		store := newS3Store(putter, config.BlobConfig{Endpoint: "http://minio:9000/", Bucket: "vault", Folder: "kv"})

		ref, err := store.Put(ctx, Object{Name: "a b.pdf", ContentType: "application/pdf", Size: 3, Body: strings.NewReader("abc")})
		require.NoError(t, err)
		assert.Equal(t, "kv/1700000000000-a_b.pdf", ref.ContentID)
		assert.Equal(t, "http://minio:9000/vault/kv/1700000000000-a_b.pdf", ref.URL)
		assert.Equal(t, "vault", aws.ToString(putter.input.Bucket))
		assert.Equal(t, "application/pdf", aws.ToString(putter.input.ContentType))
		assert.Equal(t, int64(3), aws.ToInt64(putter.input.ContentLength))
		assert.Equal(t, []byte("abc"), putter.body)
	})

	t.Run("public base url wins", func(t *testing.T) {
		store := newS3Store(&fakePutter{}, config.BlobConfig{Bucket: "vault", PublicBaseURL: "https://cdn.example.com/"})
		ref, err := store.Put(ctx, Object{Name: "x.txt", Body: io.LimitReader(strings.NewReader("xyz"), 3)})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/1700000000000-x.txt", ref.URL)
	})

	t.Run("upload failure surfaces", func(t *testing.T) {
		store := newS3Store(&fakePutter{err: errors.New("access denied")}, config.BlobConfig{Bucket: "vault"})
		ref, err := store.Put(ctx, Object{Name: "x.txt", Body: strings.NewReader("x")})
		require.Error(t, err)
		assert.Empty(t, ref.URL)
	})
}

func TestMemory_Put(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), fixedNow)
	m := NewMemory("")

	first, err := m.Put(ctx, Object{Name: "doc.txt", Body: strings.NewReader("one")})
	require.NoError(t, err)
	second, err := m.Put(ctx, Object{Name: "doc.txt", Body: strings.NewReader("two")})
	require.NoError(t, err)

	assert.NotEqual(t, first.ContentID, second.ContentID, "same name and instant never collide")
	data, ok := m.Get(first.ContentID)
	require.True(t, ok)
	assert.Equal(t, "one", string(data))
	assert.Equal(t, "memory://blobs/"+first.ContentID, first.URL)
}
