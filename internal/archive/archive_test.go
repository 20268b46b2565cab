package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/pitcharena/internal/pitch"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = b
	return &s3.PutObjectOutput{}, f.err
}

func TestArchiveTranscript(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := pitch.NewSession("01J0", "founder", "persona-1", "openai", "Welcome!", now)
	s.Score = 100
	s.Status = pitch.StatusWon
	s.EndedAt = &now

	fake := &fakeS3{}
	require.NoError(t, NewS3(fake, "arena-archive").ArchiveTranscript(context.Background(), s))

	assert.Equal(t, "arena-archive", aws.ToString(fake.in.Bucket))
	assert.Equal(t, "transcripts/01J0.json", aws.ToString(fake.in.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.in.ContentType))
	assert.Equal(t, int64(len(fake.body)), aws.ToInt64(fake.in.ContentLength))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(fake.body, &doc))
	assert.Equal(t, "win", doc["outcome"])
	assert.EqualValues(t, 100, doc["finalScore"])
	assert.Len(t, doc["transcript"], 1)
}

func TestArchiveTranscript_UploadError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	s := pitch.NewSession("01J1", "", "p", "openai", "hi", time.Now())
	err := NewS3(fake, "b").ArchiveTranscript(context.Background(), s)
	assert.ErrorContains(t, err, "access denied")
}
