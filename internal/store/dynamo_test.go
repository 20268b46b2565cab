package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

// fakeDynamo keeps items in memory. It understands the attribute_exists /
// attribute_not_exists conditions on PK and GSI1PK queries; UpdateItem
// returns whatever the test scripts.
type fakeDynamo struct {
	mu        sync.Mutex
	items     map[string]map[string]types.AttributeValue
	updateIn  *dynamodb.UpdateItemInput
	updateOut *dynamodb.UpdateItemOutput
	updateErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["PK"].(*types.AttributeValueMemberS).Value + "|" + m["SK"].(*types.AttributeValueMemberS).Value
}

func ccf() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Item)
	_, exists := f.items[k]
	switch aws.ToString(in.ConditionExpression) {
	case "attribute_not_exists(PK)":
		if exists {
			return nil, ccf()
		}
	case "attribute_exists(PK)":
		if !exists {
			return nil, ccf()
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateIn = in
	return f.updateOut, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	if _, ok := f.items[k]; !ok {
		return nil, ccf()
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if v, ok := item["GSI1PK"].(*types.AttributeValueMemberS); ok && v.Value == pk {
			out = append(out, item)
		}
	}
	desc := in.ScanIndexForward != nil && !*in.ScanIndexForward
	sort.Slice(out, func(i, j int) bool {
		a := out[i]["GSI1SK"].(*types.AttributeValueMemberS).Value
		b := out[j]["GSI1SK"].(*types.AttributeValueMemberS).Value
		if desc {
			return a > b
		}
		return a < b
	})
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if _, ok := item["sessionId"]; ok {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func TestDynamoSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	s := NewDynamo(db, "pitcharena")
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateSession(ctx, newSession("S1", "founder", base)))
	require.NoError(t, s.CreateSession(ctx, newSession("S2", "founder", base.Add(time.Minute))))
	require.NoError(t, s.CreateSession(ctx, newSession("S3", "", base)))

	assert.ErrorIs(t, s.CreateSession(ctx, newSession("S1", "founder", base)), pitch.ErrConflict)

	got, err := s.GetSession(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, base, got.StartedAt)
	assert.Equal(t, pitch.StatusActive, got.Status)
	require.Len(t, got.Turns, 1)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, pitch.ErrNotFound)

	list, err := s.ListSessions(ctx, "founder")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "S2", list[0].ID)

	all, err := s.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeleteSession(ctx, "S3"))
	assert.ErrorIs(t, s.DeleteSession(ctx, "S3"), pitch.ErrNotFound)
}

func TestBuildSessionUpdate(t *testing.T) {
	score := 70
	status := pitch.StatusWon
	ended := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	expected := 4

	in, err := buildSessionUpdate("tbl", "S1", pitch.Patch{
		Score:     &score,
		Status:    &status,
		EndedAt:   &ended,
		IfVersion: &expected,
		IfActive:  true,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SET #version = #version + :one, score = :score, #status = :status, outcome = :outcome, endedAt = :endedAt",
		aws.ToString(in.UpdateExpression))
	assert.Equal(t,
		"attribute_exists(PK) AND #version = :expectedVersion AND #status = :active",
		aws.ToString(in.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "win"}, in.ExpressionAttributeValues[":outcome"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, in.ExpressionAttributeValues[":expectedVersion"])
	assert.Equal(t, types.ReturnValueAllNew, in.ReturnValues)

	active := pitch.StatusActive
	in, err = buildSessionUpdate("tbl", "S1", pitch.Patch{Status: &active, ClearEndedAt: true})
	require.NoError(t, err)
	assert.Equal(t,
		"SET #version = #version + :one, #status = :status REMOVE outcome, endedAt",
		aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(PK)", aws.ToString(in.ConditionExpression))
}

func TestDynamoUpdateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("returns merged record", func(t *testing.T) {
		db := newFakeDynamo()
		sess := newSession("S1", "founder", time.Now())
		sess.Score = 70
		sess.Version = 1
		item, err := toSessionItem(sess, time.Now())
		require.NoError(t, err)
		av, err := attributevalue.MarshalMap(item)
		require.NoError(t, err)
		db.updateOut = &dynamodb.UpdateItemOutput{Attributes: av}

		score := 70
		got, err := NewDynamo(db, "tbl").UpdateSession(ctx, "S1", pitch.Patch{Score: &score})
		require.NoError(t, err)
		assert.Equal(t, 70, got.Score)
		assert.Equal(t, 1, got.Version)
		require.NotNil(t, db.updateIn)
	})

	t.Run("condition failure on existing item is a conflict", func(t *testing.T) {
		db := newFakeDynamo()
		db.updateErr = &types.ConditionalCheckFailedException{
			Item: map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "SESSION#S1"}},
		}
		_, err := NewDynamo(db, "tbl").UpdateSession(ctx, "S1", pitch.Patch{IfActive: true})
		assert.ErrorIs(t, err, pitch.ErrConflict)
	})

	t.Run("condition failure on missing item is not found", func(t *testing.T) {
		db := newFakeDynamo()
		db.updateErr = &types.ConditionalCheckFailedException{}
		_, err := NewDynamo(db, "tbl").UpdateSession(ctx, "S1", pitch.Patch{})
		assert.ErrorIs(t, err, pitch.ErrNotFound)
	})

	t.Run("invalid patch never reaches dynamo", func(t *testing.T) {
		db := newFakeDynamo()
		bad := pitch.Status("paused")
		_, err := NewDynamo(db, "tbl").UpdateSession(ctx, "S1", pitch.Patch{Status: &bad})
		assert.ErrorIs(t, err, pitch.ErrInvalidInput)
		assert.Nil(t, db.updateIn)
	})
}

func TestDynamoPersonas(t *testing.T) {
	ctx := context.Background()
	s := NewDynamo(newFakeDynamo(), "tbl")

	n, err := persona.Seed(ctx, s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	list, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	sarah := persona.Defaults()[1]
	got, err := s.GetPersona(ctx, sarah.ID)
	require.NoError(t, err)
	assert.Equal(t, sarah.Style, got.Style)
	assert.Equal(t, "Europe", got.Region)

	ghost := sarah
	ghost.ID = "ghost"
	assert.ErrorIs(t, s.UpdatePersona(ctx, &ghost), pitch.ErrPersonaNotFound)
	assert.ErrorIs(t, s.CreatePersona(ctx, got), pitch.ErrConflict)

	require.NoError(t, s.DeletePersona(ctx, sarah.ID))
	_, err = s.GetPersona(ctx, sarah.ID)
	assert.ErrorIs(t, err, pitch.ErrPersonaNotFound)
}
