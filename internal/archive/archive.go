// Package archive uploads finished pitch transcripts to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/pitcharena/internal/pitch"
)

// PutObjectAPI is the slice of the S3 client the archive needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes transcripts as JSON documents under transcripts/.
type S3 struct {
	client PutObjectAPI
	bucket string
}

// NewS3 creates an S3 archive for the given bucket.
func NewS3(client PutObjectAPI, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// Key returns the object key for a session transcript.
func Key(sessionID string) string {
	return "transcripts/" + sessionID + ".json"
}

type document struct {
	SessionID  string       `json:"sessionId"`
	UserID     string       `json:"userId,omitempty"`
	PersonaID  string       `json:"personaId"`
	Backend    string       `json:"backend"`
	Outcome    string       `json:"outcome"`
	FinalScore int          `json:"finalScore"`
	StartedAt  time.Time    `json:"startedAt"`
	EndedAt    *time.Time   `json:"endedAt,omitempty"`
	Transcript []pitch.Turn `json:"transcript"`
}

// ArchiveTranscript uploads the session's transcript and outcome.
func (a *S3) ArchiveTranscript(ctx context.Context, s *pitch.Session) error {
	body, err := json.MarshalIndent(document{
		SessionID:  s.ID,
		UserID:     s.UserID,
		PersonaID:  s.PersonaID,
		Backend:    s.Backend,
		Outcome:    s.Outcome(),
		FinalScore: s.Score,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Transcript: s.Turns,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	key := Key(s.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &a.bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("upload transcript to s3: %w", err)
	}
	return nil
}
