package s3

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommetl/internal/objstore"
)

// fakeAPI is an in-memory bucket. ListObjectsV2 pages pageSize keys at a
// time so the paginator is exercised.
type fakeAPI struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	deletes  int
	failKey  string
}

func newFake() *fakeAPI { return &fakeAPI{objects: map[string][]byte{}, pageSize: 2} }

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	mod := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(mod),
		})
	}
	return out, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(b)))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength != nil && *in.ContentLength != int64(len(b)) {
		return nil, errors.New("content length mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		k := aws.ToString(id.Key)
		if k == f.failKey {
			out.Errors = append(out.Errors, types.Error{Key: id.Key, Code: aws.String("AccessDenied"), Message: aws.String("denied")})
			continue
		}
		delete(f.objects, k)
	}
	return out, nil
}

func TestStore_ListIsRelativeAndPaged(t *testing.T) {
	f := newFake()
	f.objects["raw/data/year=2024/month=03/day=05/a.json"] = []byte("a")
	f.objects["raw/data/year=2024/month=03/day=05/b.json"] = []byte("bb")
	f.objects["raw/data/year=2024/month=03/day=06/c.json"] = []byte("ccc")
	f.objects["raw/data/year=2024/"] = nil
	f.objects["raw/other/x.json"] = []byte("x")

	s := New(f, "lake", "raw/data")
	objs, err := s.List(context.Background(), "")
	require.NoError(t, err)

	var keys []string
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{
		"year=2024/month=03/day=05/a.json",
		"year=2024/month=03/day=05/b.json",
		"year=2024/month=03/day=06/c.json",
	}, keys)
	assert.Equal(t, int64(2), objs[1].Size)
}

func TestStore_PutOpen(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	s := New(f, "lake", "processed_events/")

	// io.Reader without Seek is buffered.
	require.NoError(t, s.Put(ctx, "year=2024/part-00000.snappy.parquet", io.MultiReader(strings.NewReader("PAR1")), -1))
	assert.Contains(t, f.objects, "processed_events/year=2024/part-00000.snappy.parquet")

	rc, err := s.Open(ctx, "year=2024/part-00000.snappy.parquet")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(b))

	_, err = s.Open(ctx, "missing")
	assert.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestStore_DeletePrefixBatches(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	f.pageSize = 500
	for i := 0; i < 2500; i++ {
		f.objects["p/year=2024/month=03/day=05/part-"+strconv.Itoa(i)] = []byte("x")
	}
	f.objects["p/year=2024/month=03/day=06/keep"] = []byte("x")

	s := New(f, "lake", "p")
	n, err := s.DeletePrefix(ctx, "year=2024/month=03/day=05/")
	require.NoError(t, err)
	assert.Equal(t, 2500, n)
	assert.Equal(t, 3, f.deletes)
	assert.Len(t, f.objects, 1)
}

func TestStore_DeletePrefixReportsFailures(t *testing.T) {
	f := newFake()
	f.objects["a/1"] = []byte("x")
	f.objects["a/2"] = []byte("x")
	f.failKey = "a/2"

	n, err := New(f, "lake", "").DeletePrefix(context.Background(), "a/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Equal(t, 1, n)
}

func TestStore_URL(t *testing.T) {
	s := New(newFake(), "yourname-ecomm-processed-data-lake", "processed_events")
	assert.Equal(t, "s3://yourname-ecomm-processed-data-lake/processed_events/year=2024/month=03/day=05/",
		s.URL("year=2024/month=03/day=05/"))
	assert.Equal(t, "s3://b/k", New(newFake(), "b", "").URL("k"))
}
