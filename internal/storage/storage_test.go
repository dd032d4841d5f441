package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutOpen(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	require.NoError(t, s.Put(ctx, "out/nested/digests.csv", []byte("FN,LN,PHONE\n"), "text/csv"))

	rc, err := s.Open(ctx, "out/nested/digests.csv")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "FN,LN,PHONE\n", string(data))

	info, err := os.Stat(filepath.Join(s.root, "out/nested/digests.csv"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(s.root, "out/nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file cleaned up")
}

func TestLocalStoreNotFound(t *testing.T) {
	_, err := NewLocalStore(t.TempDir()).Open(context.Background(), "nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreAbsoluteKey(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "abs.csv")
	require.NoError(t, NewLocalStore("/somewhere/else").Put(context.Background(), abs, []byte("x"), ""))
	_, err := os.Stat(abs)
	assert.NoError(t, err)
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("s3://lists/2026/in.csv")
	require.NoError(t, err)
	assert.True(t, loc.Remote())
	assert.Equal(t, "lists", loc.Bucket)
	assert.Equal(t, "2026/in.csv", loc.Key)
	assert.Equal(t, "s3://lists/2026/in.csv", loc.String())

	loc, err = ParseLocation("./data/in.csv")
	require.NoError(t, err)
	assert.False(t, loc.Remote())
	assert.Equal(t, "./data/in.csv", loc.String())

	for _, bad := range []string{"", "s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, err := ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	getErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	s := NewS3Store(fake, "lists")

	require.NoError(t, s.Put(ctx, "out/digests.csv", []byte("FN,LN,PHONE\n"), "text/csv"))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "text/csv", aws.ToString(fake.puts[0].ContentType))
	assert.Equal(t, types.ServerSideEncryptionAes256, fake.puts[0].ServerSideEncryption)

	rc, err := s.Open(ctx, "out/digests.csv")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "FN,LN,PHONE\n", string(data))

	_, err = s.Open(ctx, "missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.getErr = errors.New("throttled")
	_, err = s.Open(ctx, "out/digests.csv")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	local := NewLocalStore(t.TempDir())
	fake := &fakeS3{objects: map[string][]byte{"lists/in.csv": []byte("a,b\n")}}

	created := 0
	r := NewResolver(local, func(_ context.Context, bucket string) (Store, error) {
		created++
		return NewS3Store(fake, bucket), nil
	})

	data, err := r.ReadAll(ctx, "s3://lists/in.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	require.NoError(t, r.Write(ctx, "s3://lists/out.csv", []byte("x"), "text/csv"))
	assert.Equal(t, 1, created, "bucket store reused")

	require.NoError(t, r.Write(ctx, "local.csv", []byte("y"), ""))
	data, err = r.ReadAll(ctx, "local.csv")
	require.NoError(t, err)
	assert.Equal(t, "y", string(data))
}

func TestResolverWithoutS3(t *testing.T) {
	r := NewResolver(NewLocalStore(""), nil)
	_, _, err := r.Resolve(context.Background(), "s3://lists/in.csv")
	assert.Error(t, err)
}
