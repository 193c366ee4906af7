package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sicko7947/campaignflow"
)

// DynamoDBStore implements campaignflow.EntityStore using AWS DynamoDB
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
	clock     campaignflow.Clock
}

// NewDynamoDBStore creates a new DynamoDB-backed entity store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		clock:     campaignflow.SystemClock,
	}
}

// WithClock replaces the clock used to stamp updated_at
func (s *DynamoDBStore) WithClock(clock campaignflow.Clock) *DynamoDBStore {
	s.clock = clock
	return s
}

var _ campaignflow.EntityStore = (*DynamoDBStore)(nil)

// Campaign operations

func (s *DynamoDBStore) CreateCampaign(ctx context.Context, campaign *campaignflow.Campaign) error {
	return s.putNew(ctx, campaign.Key(), string(campaign.Status), campaign.CreatedAt, campaign, EntityTypeCampaign)
}

func (s *DynamoDBStore) GetCampaign(ctx context.Context, key campaignflow.EntityKey) (*campaignflow.Campaign, error) {
	var campaign campaignflow.Campaign
	if err := s.getItem(ctx, key, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *DynamoDBStore) UpdateCampaign(ctx context.Context, key campaignflow.EntityKey, patch campaignflow.CampaignPatch, expectedVersion int64) (*campaignflow.Campaign, error) {
	b := newUpdateBuilder(expectedVersion, s.clock())
	if err := buildCampaignUpdate(b, key, patch); err != nil {
		return nil, err
	}

	var campaign campaignflow.Campaign
	if err := s.conditionalUpdate(ctx, key, b, expectedVersion, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *DynamoDBStore) QueryCampaigns(ctx context.Context, q campaignflow.IndexQuery) (*campaignflow.CampaignPage, error) {
	items, next, err := s.queryIndex(ctx, q, campaignflow.EntityKindCampaign)
	if err != nil {
		return nil, err
	}

	page := &campaignflow.CampaignPage{Items: make([]*campaignflow.Campaign, 0, len(items)), Next: next}
	for _, item := range items {
		var campaign campaignflow.Campaign
		if err := attributevalue.UnmarshalMap(item, &campaign); err != nil {
			return nil, fmt.Errorf("failed to unmarshal campaign: %w", err)
		}
		page.Items = append(page.Items, &campaign)
	}
	return page, nil
}

// Social post operations

func (s *DynamoDBStore) CreatePost(ctx context.Context, post *campaignflow.SocialPost) error {
	return s.putNew(ctx, post.Key(), string(post.Status), post.CreatedAt, post, EntityTypePost)
}

func (s *DynamoDBStore) GetPost(ctx context.Context, key campaignflow.EntityKey) (*campaignflow.SocialPost, error) {
	var post campaignflow.SocialPost
	if err := s.getItem(ctx, key, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *DynamoDBStore) UpdatePost(ctx context.Context, key campaignflow.EntityKey, patch campaignflow.PostPatch, expectedVersion int64) (*campaignflow.SocialPost, error) {
	b := newUpdateBuilder(expectedVersion, s.clock())
	if err := buildPostUpdate(b, key, patch); err != nil {
		return nil, err
	}

	var post campaignflow.SocialPost
	if err := s.conditionalUpdate(ctx, key, b, expectedVersion, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *DynamoDBStore) QueryPosts(ctx context.Context, q campaignflow.IndexQuery) (*campaignflow.PostPage, error) {
	items, next, err := s.queryIndex(ctx, q, campaignflow.EntityKindPost)
	if err != nil {
		return nil, err
	}

	page := &campaignflow.PostPage{Items: make([]*campaignflow.SocialPost, 0, len(items)), Next: next}
	for _, item := range items {
		var post campaignflow.SocialPost
		if err := attributevalue.UnmarshalMap(item, &post); err != nil {
			return nil, fmt.Errorf("failed to unmarshal post: %w", err)
		}
		page.Items = append(page.Items, &post)
	}
	return page, nil
}

// Shared item plumbing

func (s *DynamoDBStore) itemKey(key campaignflow.EntityKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: primaryPK(key)},
		AttrSK: &types.AttributeValueMemberS{Value: primarySK(key)},
	}
}

func (s *DynamoDBStore) putNew(ctx context.Context, key campaignflow.EntityKey, status string, createdAt time.Time, entity any, entityType string) error {
	item, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key.Kind(), err)
	}

	// Add keys
	item[AttrPK] = &types.AttributeValueMemberS{Value: primaryPK(key)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: primarySK(key)}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: entityType}

	// Add GSI keys
	for attr, value := range indexKeys(key, status, createdAt) {
		item[attr] = &types.AttributeValueMemberS{Value: value}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPK,
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return campaignflow.NewConflictError(fmt.Sprintf("%s %s already exists", key.Kind(), key))
		}
		return campaignflow.NewExternalServiceError("create "+string(key.Kind()), err)
	}

	return nil
}

func (s *DynamoDBStore) getItem(ctx context.Context, key campaignflow.EntityKey, out any) error {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return campaignflow.NewExternalServiceError("get "+string(key.Kind()), err)
	}

	if result.Item == nil {
		return campaignflow.EntityNotFound(key)
	}

	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key.Kind(), err)
	}

	return nil
}

// conditionalUpdate applies b only when the item exists at
// expectedVersion. On a failed condition the old image tells an absent
// item apart from a stale version.
func (s *DynamoDBStore) conditionalUpdate(ctx context.Context, key campaignflow.EntityKey, b *updateBuilder, expectedVersion int64, out any) error {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.tableName),
		Key:                                 s.itemKey(key),
		UpdateExpression:                    aws.String(b.updateExpression()),
		ConditionExpression:                 aws.String(b.conditionExpression()),
		ExpressionAttributeNames:            b.names,
		ExpressionAttributeValues:           b.values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if ccf.Item == nil {
				return campaignflow.EntityNotFound(key)
			}
			return campaignflow.VersionConflict(key, expectedVersion)
		}
		return campaignflow.NewExternalServiceError("update "+string(key.Kind()), err)
	}

	if err := attributevalue.UnmarshalMap(result.Attributes, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key.Kind(), err)
	}

	return nil
}

func (s *DynamoDBStore) queryIndex(ctx context.Context, q campaignflow.IndexQuery, kind campaignflow.EntityKind) ([]map[string]types.AttributeValue, campaignflow.Cursor, error) {
	target, err := resolveIndex(q, kind)
	if err != nil {
		return nil, campaignflow.Cursor{}, err
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(target.indexName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": target.pkAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: target.partition},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(q.Limit)
	}

	position, err := q.After.Position()
	if err != nil {
		return nil, campaignflow.Cursor{}, err
	}
	if position != nil {
		if err := target.checkPosition(position, q.TenantID); err != nil {
			return nil, campaignflow.Cursor{}, err
		}
		input.ExclusiveStartKey = make(map[string]types.AttributeValue, len(position))
		for _, attr := range target.keyAttrs() {
			input.ExclusiveStartKey[attr] = &types.AttributeValueMemberS{Value: position[attr]}
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, campaignflow.Cursor{}, campaignflow.NewExternalServiceError("query "+string(kind)+"s", err)
	}

	next, err := cursorFromKey(result.LastEvaluatedKey)
	if err != nil {
		return nil, campaignflow.Cursor{}, err
	}
	return result.Items, next, nil
}

// cursorFromKey turns a LastEvaluatedKey into an opaque cursor. Every
// key attribute of the table and its indexes is a string.
func cursorFromKey(key map[string]types.AttributeValue) (campaignflow.Cursor, error) {
	if len(key) == 0 {
		return campaignflow.Cursor{}, nil
	}
	position := make(map[string]string, len(key))
	for attr, value := range key {
		s, ok := value.(*types.AttributeValueMemberS)
		if !ok {
			return campaignflow.Cursor{}, fmt.Errorf("unexpected key attribute type for %s", attr)
		}
		position[attr] = s.Value
	}
	return campaignflow.NewCursor(position)
}
