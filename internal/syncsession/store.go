// Package syncsession persists sync sessions and their items in DynamoDB and
// derives the session status from the item states.
package syncsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/aws"
)

// batchWriteLimit is the DynamoDB maximum of put requests per BatchWriteItem call.
const batchWriteLimit = 25

// maxBatchAttempts bounds how often unprocessed items of one chunk are resubmitted.
const maxBatchAttempts = 3

// Store encapsulates operations on the sessions and session items tables.
type Store struct {
	client        aws.DynamoDBAPI
	sessionsTable string
	itemsTable    string
	nowFunc       func() time.Time
}

// NewStore creates a new session Store.
func NewStore(client aws.DynamoDBAPI, sessionsTable, itemsTable string) *Store {
	return &Store{
		client:        client,
		sessionsTable: sessionsTable,
		itemsTable:    itemsTable,
		nowFunc:       time.Now,
	}
}

// Create persists sess and one pending item per external id.
// sess.ID, UserID, Type and JobID must be set by the caller.
func (s *Store) Create(ctx context.Context, sess Session, externalIDs []string) (Session, error) {
	now := s.nowFunc().UTC()
	externalIDs = lo.Uniq(externalIDs)
	sess.ItemCount = len(externalIDs)
	sess.ClaimedAt = nil
	sess.CreatedAt = now
	sess.UpdatedAt = now

	sessMap, err := attributevalue.MarshalMap(sess)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.sessionsTable,
		Item:                sessMap,
		ConditionExpression: awsString("attribute_not_exists(session_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return Session{}, fmt.Errorf("session %s: %w", sess.ID, apperror.ErrConflict)
		}
		return Session{}, fmt.Errorf("put session: %w", err)
	}

	for _, chunk := range lo.Chunk(externalIDs, batchWriteLimit) {
		requests := make([]types.WriteRequest, 0, len(chunk))
		for _, id := range chunk {
			itemMap, err := attributevalue.MarshalMap(Item{
				SessionID:  sess.ID,
				ExternalID: id,
				Status:     ItemPending,
				UpdatedAt:  now,
			})
			if err != nil {
				return Session{}, fmt.Errorf("marshal session item: %w", err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: itemMap}})
		}
		if err := s.batchPut(ctx, requests); err != nil {
			if derr := s.deleteSession(ctx, sess.ID); derr != nil {
				return Session{}, fmt.Errorf("%w; can't remove session row: %v", err, derr)
			}
			return Session{}, err
		}
	}

	sess.Status = Reduce(false, lo.Times(sess.ItemCount, func(int) ItemStatus { return ItemPending }))
	return sess, nil
}

// deleteSession drops the row of a session whose items couldn't be written.
// Items already written stay behind unreferenced.
func (s *Store) deleteSession(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.sessionsTable,
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) batchPut(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.itemsTable: requests}
	for attempt := 0; attempt < maxBatchAttempts; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dyn.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write session items: %w", err)
		}
		if len(out.UnprocessedItems[s.itemsTable]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("batch write session items: %d left unprocessed", len(pending[s.itemsTable]))
}

// Get fetches a session and derives its status from the items.
// Returns apperror.ErrNotFound if the session doesn't exist.
func (s *Store) Get(ctx context.Context, sessionID string) (View, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	items, err := s.Items(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	view := View{Session: sess, Items: items}
	view.Status = Reduce(sess.ClaimedAt != nil, view.itemStatuses())
	return view, nil
}

func (s *Store) getSession(ctx context.Context, sessionID string) (Session, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.sessionsTable,
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(out.Item) == 0 {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, apperror.ErrNotFound)
	}
	var sess Session
	if err := attributevalue.UnmarshalMap(out.Item, &sess); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

// Items returns every item of a session ordered by external id.
func (s *Store) Items(ctx context.Context, sessionID string) ([]Item, error) {
	var (
		items []Item
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.itemsTable,
			KeyConditionExpression: awsString("session_id = :sid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: sessionID},
			},
			ConsistentRead:    awsBool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query session items: %w", err)
		}
		var page []Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal session items: %w", err)
		}
		items = append(items, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

// Claim moves a session from pending to processing.
// Returns ErrAlreadyClaimed for a second claim, apperror.ErrNotFound if the session doesn't exist (yet).
func (s *Store) Claim(ctx context.Context, sessionID string) error {
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.sessionsTable,
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression:    awsString("SET claimed_at = :now, updated_at = :now"),
		ConditionExpression: awsString("attribute_exists(session_id) AND attribute_not_exists(claimed_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now},
		},
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("claim session: %w", err)
	}
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return err
	}
	return ErrAlreadyClaimed
}

// TransitionItem moves one item from pending to scraped or failed and returns
// the session status recomputed from all items afterwards.
func (s *Store) TransitionItem(ctx context.Context, sessionID, externalID string, to ItemStatus, reason string) (Status, error) {
	if to != ItemScraped && to != ItemFailed {
		return "", fmt.Errorf("%w: %s", ErrInvalidTransition, to)
	}

	key := map[string]types.AttributeValue{
		"session_id":  &types.AttributeValueMemberS{Value: sessionID},
		"external_id": &types.AttributeValueMemberS{Value: externalID},
	}
	values := map[string]types.AttributeValue{
		":new":     &types.AttributeValueMemberS{Value: string(to)},
		":pending": &types.AttributeValueMemberS{Value: string(ItemPending)},
		":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	names := map[string]string{"#s": "status"}
	updateExpr := "SET #s = :new, updated_at = :ua"
	if reason != "" {
		updateExpr += ", #e = :err"
		names["#e"] = "error"
		values[":err"] = &types.AttributeValueMemberS{Value: reason}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.itemsTable,
		Key:                       key,
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("attribute_exists(external_id) AND #s = :pending"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,

		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return "", fmt.Errorf("item %s/%s: %w", sessionID, externalID, apperror.ErrNotFound)
			}
			return "", fmt.Errorf("item %s/%s: %w", sessionID, externalID, ErrItemFinal)
		}
		return "", fmt.Errorf("update session item: %w", err)
	}

	view, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return view.Status, nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
