package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	getCalls int
	putCalls int

	getFails int // fail this many GetObject calls before succeeding
	putFails int

	body string

	lastPutBucket string
	lastPutKey    string
	lastPutBody   string
	lastPutType   string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getCalls++
	if f.getCalls <= f.getFails {
		return nil, errors.New("connection reset")
	}
	_ = in
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCalls++
	if f.putCalls <= f.putFails {
		return nil, errors.New("throttled")
	}
	f.lastPutBucket = *in.Bucket
	f.lastPutKey = *in.Key
	if in.ContentType != nil {
		f.lastPutType = *in.ContentType
	}
	data, _ := io.ReadAll(in.Body)
	f.lastPutBody = string(data)
	return &s3.PutObjectOutput{}, nil
}

func testStore(fake *fakeS3) *Store {
	return NewWithClient(fake, Config{
		Bucket:          "case-docs",
		RetryInitial:    time.Millisecond,
		RetryMax:        2 * time.Millisecond,
		RetryMaxElapsed: 200 * time.Millisecond,
	})
}

func TestFetchDocument(t *testing.T) {
	fake := &fakeS3{body: "pdf bytes"}

	data, err := testStore(fake).FetchDocument(context.Background(), "s3://case-docs/case1.pdf")
	if err != nil {
		t.Fatalf("FetchDocument failed: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestFetchDocument_RetriesTransient(t *testing.T) {
	fake := &fakeS3{body: "pdf bytes", getFails: 2}

	data, err := testStore(fake).FetchDocument(context.Background(), "s3://case-docs/case1.pdf")
	if err != nil {
		t.Fatalf("FetchDocument failed after retries: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("data = %q", data)
	}
	if fake.getCalls != 3 {
		t.Errorf("getCalls = %d, expected 3", fake.getCalls)
	}
}

func TestFetchDocument_BadURI(t *testing.T) {
	fake := &fakeS3{}

	_, err := testStore(fake).FetchDocument(context.Background(), "https://example.com/doc.pdf")
	if err == nil {
		t.Fatal("expected error for non-s3 uri")
	}
	if fake.getCalls != 0 {
		t.Errorf("store should not be called for a bad uri")
	}
}

func TestPutPageImage(t *testing.T) {
	fake := &fakeS3{}

	uri, err := testStore(fake).PutPageImage(context.Background(), "doc-1", 3, []byte("png!"))
	if err != nil {
		t.Fatalf("PutPageImage failed: %v", err)
	}

	if uri != "s3://case-docs/doc-1/pages/3.png" {
		t.Errorf("uri = %q", uri)
	}
	if fake.lastPutKey != "doc-1/pages/3.png" {
		t.Errorf("key = %q", fake.lastPutKey)
	}
	if fake.lastPutBucket != "case-docs" {
		t.Errorf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutBody != "png!" {
		t.Errorf("body = %q", fake.lastPutBody)
	}
	if fake.lastPutType != "image/png" {
		t.Errorf("content type = %q", fake.lastPutType)
	}
}

func TestPutPageImage_RetriesThenFails(t *testing.T) {
	fake := &fakeS3{putFails: 1000}

	_, err := testStore(fake).PutPageImage(context.Background(), "doc-1", 1, []byte("png"))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fake.putCalls < 2 {
		t.Errorf("putCalls = %d, expected retries", fake.putCalls)
	}
}

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://case-docs/incoming/case1.pdf")
	if err != nil {
		t.Fatalf("ParseURI failed: %v", err)
	}
	if bucket != "case-docs" || key != "incoming/case1.pdf" {
		t.Errorf("got %q %q", bucket, key)
	}

	for _, bad := range []string{"", "s3://", "s3://bucket", "s3://bucket/", "gs://b/k"} {
		if _, _, err := ParseURI(bad); err == nil {
			t.Errorf("ParseURI(%q) should fail", bad)
		}
	}
}
