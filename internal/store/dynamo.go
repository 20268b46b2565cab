package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Key layout of the single table.
const (
	sessionPrefix  = "SESSION#"
	userPrefix     = "USER#"
	personaPrefix  = "PERSONA#"
	metadataSK     = "METADATA"
	profileSK      = "PROFILE"
	personasGSI1PK = "PERSONAS"
	gsi1           = "GSI1"
)

// SessionItem is the DynamoDB record for a pitch session.
type SessionItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK     string `dynamodbav:"GSI1SK,omitempty"`
	SessionID  string `dynamodbav:"sessionId"`
	UserID     string `dynamodbav:"userId,omitempty"`
	PersonaID  string `dynamodbav:"personaId"`
	Backend    string `dynamodbav:"backend,omitempty"`
	Transcript string `dynamodbav:"chatTranscript"`
	Score      int    `dynamodbav:"score"`
	Status     string `dynamodbav:"status"`
	Outcome    string `dynamodbav:"outcome,omitempty"`
	StartedAt  string `dynamodbav:"startedAt"`
	EndedAt    string `dynamodbav:"endedAt,omitempty"`
	Version    int    `dynamodbav:"version"`
	CreatedAt  string `dynamodbav:"createdAt"`
}

// PersonaItem is the DynamoDB record for an investor persona.
type PersonaItem struct {
	PK               string           `dynamodbav:"PK"`
	SK               string           `dynamodbav:"SK"`
	GSI1PK           string           `dynamodbav:"GSI1PK"`
	GSI1SK           string           `dynamodbav:"GSI1SK"`
	PersonaID        string           `dynamodbav:"personaId"`
	Name             string           `dynamodbav:"name"`
	Role             string           `dynamodbav:"role"`
	Region           string           `dynamodbav:"region"`
	LanguageCode     string           `dynamodbav:"languageCode"`
	AvatarURL        string           `dynamodbav:"avatarUrl,omitempty"`
	RiskAppetite     string           `dynamodbav:"riskAppetite"`
	TargetSectors    string           `dynamodbav:"targetSector"`
	CheckSize        string           `dynamodbav:"checkSize"`
	InvestmentThesis string           `dynamodbav:"investmentThesis"`
	TalkingStyle     PersonaStyleItem `dynamodbav:"talkingStyle"`
	CreatedAt        string           `dynamodbav:"createdAt"`
}

// PersonaStyleItem is the nested talking style map.
type PersonaStyleItem struct {
	Bluntness    int    `dynamodbav:"bluntness"`
	JargonLevel  string `dynamodbav:"jargonLevel"`
	FavoriteWord string `dynamodbav:"favoriteWord"`
	Humor        int    `dynamodbav:"humor"`
}

// Dynamo persists sessions and personas in a DynamoDB single table.
type Dynamo struct {
	client    DynamoAPI
	tableName string
}

// NewDynamo creates a DynamoDB store.
func NewDynamo(client DynamoAPI, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName}
}

func sessionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

func personaKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: personaPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: profileSK},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func toSessionItem(s *pitch.Session, createdAt time.Time) (SessionItem, error) {
	transcript, err := json.Marshal(s.Turns)
	if err != nil {
		return SessionItem{}, fmt.Errorf("encode transcript: %w", err)
	}
	item := SessionItem{
		PK:         sessionPrefix + s.ID,
		SK:         metadataSK,
		SessionID:  s.ID,
		UserID:     s.UserID,
		PersonaID:  s.PersonaID,
		Backend:    s.Backend,
		Transcript: string(transcript),
		Score:      s.Score,
		Status:     string(s.Status),
		Outcome:    s.Outcome(),
		StartedAt:  formatTime(s.StartedAt),
		Version:    s.Version,
		CreatedAt:  formatTime(createdAt),
	}
	if s.UserID != "" {
		item.GSI1PK = userPrefix + s.UserID
		item.GSI1SK = item.StartedAt + "#" + s.ID
	}
	if s.EndedAt != nil {
		item.EndedAt = formatTime(*s.EndedAt)
	}
	return item, nil
}

func fromSessionItem(item SessionItem) (*pitch.Session, error) {
	s := &pitch.Session{
		ID:        item.SessionID,
		UserID:    item.UserID,
		PersonaID: item.PersonaID,
		Backend:   item.Backend,
		Score:     item.Score,
		Status:    pitch.Status(item.Status),
		Version:   item.Version,
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("session %s has unknown status %q", item.SessionID, item.Status)
	}
	if err := json.Unmarshal([]byte(item.Transcript), &s.Turns); err != nil {
		return nil, fmt.Errorf("decode transcript of %s: %w", item.SessionID, err)
	}
	started, err := parseTime(item.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse startedAt of %s: %w", item.SessionID, err)
	}
	s.StartedAt = started
	if item.EndedAt != "" {
		ended, err := parseTime(item.EndedAt)
		if err != nil {
			return nil, fmt.Errorf("parse endedAt of %s: %w", item.SessionID, err)
		}
		s.EndedAt = &ended
	}
	return s, nil
}

func (d *Dynamo) CreateSession(ctx context.Context, s *pitch.Session) error {
	item, err := toSessionItem(s, time.Now())
	if err != nil {
		return persistErr("create session", err)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return persistErr("marshal session item", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: session %s already exists", pitch.ErrConflict, s.ID)
		}
		return persistErr("put session item", err)
	}
	return nil
}

func (d *Dynamo) GetSession(ctx context.Context, id string) (*pitch.Session, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &d.tableName,
		Key:            sessionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, persistErr("get session item", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", pitch.ErrNotFound, id)
	}
	var item SessionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, persistErr("unmarshal session item", err)
	}
	s, err := fromSessionItem(item)
	if err != nil {
		return nil, persistErr("decode session item", err)
	}
	return s, nil
}

// buildSessionUpdate renders a patch as an UpdateItem input. The version is
// always incremented; guards become condition expressions.
func buildSessionUpdate(table, id string, p pitch.Patch) (*dynamodb.UpdateItemInput, error) {
	sets := []string{"#version = #version + :one"}
	var removes []string
	names := map[string]string{"#version": "version"}
	values := map[string]types.AttributeValue{
		":one": &types.AttributeValueMemberN{Value: "1"},
	}

	if p.Turns != nil {
		transcript, err := json.Marshal(*p.Turns)
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		sets = append(sets, "chatTranscript = :transcript")
		values[":transcript"] = &types.AttributeValueMemberS{Value: string(transcript)}
	}
	if p.Score != nil {
		sets = append(sets, "score = :score")
		values[":score"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*p.Score)}
	}
	if p.Status != nil {
		names["#status"] = "status"
		sets = append(sets, "#status = :status")
		values[":status"] = &types.AttributeValueMemberS{Value: string(*p.Status)}
		if o := p.Status.Outcome(); o != "" {
			sets = append(sets, "outcome = :outcome")
			values[":outcome"] = &types.AttributeValueMemberS{Value: o}
		} else {
			removes = append(removes, "outcome")
		}
	}
	if p.EndedAt != nil {
		sets = append(sets, "endedAt = :endedAt")
		values[":endedAt"] = &types.AttributeValueMemberS{Value: formatTime(*p.EndedAt)}
	}
	if p.ClearEndedAt {
		removes = append(removes, "endedAt")
	}
	if p.Backend != nil {
		sets = append(sets, "backend = :backend")
		values[":backend"] = &types.AttributeValueMemberS{Value: *p.Backend}
	}

	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	conds := []string{"attribute_exists(PK)"}
	if p.IfVersion != nil {
		conds = append(conds, "#version = :expectedVersion")
		values[":expectedVersion"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*p.IfVersion)}
	}
	if p.IfActive {
		names["#status"] = "status"
		conds = append(conds, "#status = :active")
		values[":active"] = &types.AttributeValueMemberS{Value: string(pitch.StatusActive)}
	}

	return &dynamodb.UpdateItemInput{
		TableName:                           &table,
		Key:                                 sessionKey(id),
		UpdateExpression:                    aws.String(expr),
		ConditionExpression:                 aws.String(strings.Join(conds, " AND ")),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}, nil
}

func (d *Dynamo) UpdateSession(ctx context.Context, id string, p pitch.Patch) (*pitch.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	input, err := buildSessionUpdate(d.tableName, id, p)
	if err != nil {
		return nil, persistErr("build session update", err)
	}
	result, err := d.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, fmt.Errorf("%w: %s", pitch.ErrNotFound, id)
			}
			return nil, fmt.Errorf("%w: session %s", pitch.ErrConflict, id)
		}
		return nil, persistErr("update session item", err)
	}
	var item SessionItem
	if err := attributevalue.UnmarshalMap(result.Attributes, &item); err != nil {
		return nil, persistErr("unmarshal session item", err)
	}
	s, err := fromSessionItem(item)
	if err != nil {
		return nil, persistErr("decode session item", err)
	}
	return s, nil
}

func (d *Dynamo) DeleteSession(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &d.tableName,
		Key:                 sessionKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", pitch.ErrNotFound, id)
		}
		return persistErr("delete session item", err)
	}
	return nil
}

func (d *Dynamo) ListSessions(ctx context.Context, userID string) ([]pitch.Session, error) {
	var items []SessionItem
	var err error
	if userID == "" {
		items, err = d.scanSessions(ctx)
	} else {
		items, err = d.querySessions(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]pitch.Session, 0, len(items))
	for _, item := range items {
		s, err := fromSessionItem(item)
		if err != nil {
			return nil, persistErr("decode session item", err)
		}
		out = append(out, *s)
	}
	return out, nil
}

func (d *Dynamo) querySessions(ctx context.Context, userID string) ([]SessionItem, error) {
	input := &dynamodb.QueryInput{
		TableName:              &d.tableName,
		IndexName:              aws.String(gsi1),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: userPrefix + userID},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var items []SessionItem
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, persistErr("query sessions", err)
		}
		var page []SessionItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, persistErr("unmarshal sessions", err)
		}
		items = append(items, page...)
		if len(result.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (d *Dynamo) scanSessions(ctx context.Context) ([]SessionItem, error) {
	input := &dynamodb.ScanInput{
		TableName:        &d.tableName,
		FilterExpression: aws.String("begins_with(PK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: sessionPrefix},
		},
	}

	var items []SessionItem
	for {
		result, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, persistErr("scan sessions", err)
		}
		var page []SessionItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, persistErr("unmarshal sessions", err)
		}
		items = append(items, page...)
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	// Scan order is arbitrary; match the per-user newest-first contract.
	sortItemsNewestFirst(items)
	return items, nil
}

func sortItemsNewestFirst(items []SessionItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartedAt != items[j].StartedAt {
			return items[i].StartedAt > items[j].StartedAt
		}
		return items[i].SessionID > items[j].SessionID
	})
}

func (d *Dynamo) SessionStats(ctx context.Context, userID string) (pitch.Stats, error) {
	sessions, err := d.ListSessions(ctx, userID)
	if err != nil {
		return pitch.Stats{}, err
	}
	return pitch.ComputeStats(sessions), nil
}

// Personas

func toPersonaItem(p *persona.Persona) PersonaItem {
	return PersonaItem{
		PK:               personaPrefix + p.ID,
		SK:               profileSK,
		GSI1PK:           personasGSI1PK,
		GSI1SK:           formatTime(p.CreatedAt) + "#" + p.ID,
		PersonaID:        p.ID,
		Name:             p.Name,
		Role:             p.Role,
		Region:           p.Region,
		LanguageCode:     p.LanguageCode,
		AvatarURL:        p.AvatarURL,
		RiskAppetite:     p.RiskAppetite,
		TargetSectors:    p.TargetSectors,
		CheckSize:        p.CheckSize,
		InvestmentThesis: p.InvestmentThesis,
		TalkingStyle: PersonaStyleItem{
			Bluntness:    p.Style.Bluntness,
			JargonLevel:  p.Style.JargonLevel,
			FavoriteWord: p.Style.SignaturePhrase,
			Humor:        p.Style.Humor,
		},
		CreatedAt: formatTime(p.CreatedAt),
	}
}

func fromPersonaItem(item PersonaItem) persona.Persona {
	created, _ := parseTime(item.CreatedAt)
	return persona.Persona{
		ID:               item.PersonaID,
		Name:             item.Name,
		Role:             item.Role,
		Region:           item.Region,
		LanguageCode:     item.LanguageCode,
		AvatarURL:        item.AvatarURL,
		RiskAppetite:     item.RiskAppetite,
		TargetSectors:    item.TargetSectors,
		CheckSize:        item.CheckSize,
		InvestmentThesis: item.InvestmentThesis,
		Style: persona.Style{
			Bluntness:       item.TalkingStyle.Bluntness,
			JargonLevel:     item.TalkingStyle.JargonLevel,
			SignaturePhrase: item.TalkingStyle.FavoriteWord,
			Humor:           item.TalkingStyle.Humor,
		},
		CreatedAt: created,
	}
}

func (d *Dynamo) GetPersona(ctx context.Context, id string) (*persona.Persona, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tableName,
		Key:       personaKey(id),
	})
	if err != nil {
		return nil, persistErr("get persona item", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", pitch.ErrPersonaNotFound, id)
	}
	var item PersonaItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, persistErr("unmarshal persona item", err)
	}
	p := fromPersonaItem(item)
	return &p, nil
}

func (d *Dynamo) ListPersonas(ctx context.Context) ([]persona.Persona, error) {
	input := &dynamodb.QueryInput{
		TableName:              &d.tableName,
		IndexName:              aws.String(gsi1),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: personasGSI1PK},
		},
	}

	var out []persona.Persona
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, persistErr("query personas", err)
		}
		var page []PersonaItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, persistErr("unmarshal personas", err)
		}
		for _, item := range page {
			out = append(out, fromPersonaItem(item))
		}
		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (d *Dynamo) putPersona(ctx context.Context, p *persona.Persona, cond string) error {
	av, err := attributevalue.MarshalMap(toPersonaItem(p))
	if err != nil {
		return persistErr("marshal persona item", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.tableName,
		Item:                av,
		ConditionExpression: aws.String(cond),
	})
	return err
}

func (d *Dynamo) CreatePersona(ctx context.Context, p *persona.Persona) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	err := d.putPersona(ctx, p, "attribute_not_exists(PK)")
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: persona %s already exists", pitch.ErrConflict, p.ID)
		}
		return persistErr("put persona item", err)
	}
	return nil
}

func (d *Dynamo) UpdatePersona(ctx context.Context, p *persona.Persona) error {
	err := d.putPersona(ctx, p, "attribute_exists(PK)")
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", pitch.ErrPersonaNotFound, p.ID)
		}
		return persistErr("put persona item", err)
	}
	return nil
}

func (d *Dynamo) DeletePersona(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &d.tableName,
		Key:                 personaKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", pitch.ErrPersonaNotFound, id)
		}
		return persistErr("delete persona item", err)
	}
	return nil
}
