package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

// BatchWriteAPI is the DynamoDB call used by bulk imports.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

const (
	batchSize       = 25
	maxBatchRetries = 5
)

// ImportRequests converts personas and sessions into put requests in the
// single-table layout. Existing items with the same keys are overwritten.
func ImportRequests(personas []persona.Persona, sessions []pitch.Session) ([]types.WriteRequest, error) {
	reqs := make([]types.WriteRequest, 0, len(personas)+len(sessions))
	for i := range personas {
		av, err := attributevalue.MarshalMap(toPersonaItem(&personas[i]))
		if err != nil {
			return nil, fmt.Errorf("marshal persona %s: %w", personas[i].ID, err)
		}
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	for i := range sessions {
		item, err := toSessionItem(&sessions[i], sessions[i].StartedAt)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessions[i].ID, err)
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("marshal session %s: %w", sessions[i].ID, err)
		}
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	return reqs, nil
}

// WriteBatches writes reqs in batches of 25, resubmitting unprocessed items
// with backoff. It returns the number of items written.
func WriteBatches(ctx context.Context, client BatchWriteAPI, table string, reqs []types.WriteRequest, backoff time.Duration) (int, error) {
	written := 0
	for start := 0; start < len(reqs); start += batchSize {
		end := min(start+batchSize, len(reqs))
		pending := reqs[start:end]

		wait := backoff
		for attempt := 1; len(pending) > 0; attempt++ {
			out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{table: pending},
			})
			if err != nil {
				return written, fmt.Errorf("%w: batch write: %v", pitch.ErrPersistence, err)
			}
			left := out.UnprocessedItems[table]
			written += len(pending) - len(left)
			pending = left
			if len(pending) == 0 {
				break
			}
			if attempt == maxBatchRetries {
				return written, fmt.Errorf("%w: %d items unprocessed after %d attempts", pitch.ErrPersistence, len(pending), attempt)
			}
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
	}
	return written, nil
}
