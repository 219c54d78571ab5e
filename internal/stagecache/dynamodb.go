package stagecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// dynamoCacheItem is the table layout. The table's partition key is the
// string attribute cache_key, and DynamoDB TTL should be enabled on ttl.
type dynamoCacheItem struct {
	CacheKey string `dynamodbav:"cache_key"`
	Payload  string `dynamodbav:"payload"`
	TTL      int64  `dynamodbav:"ttl"`
}

// DynamoDBBackend keeps cache entries in a DynamoDB table.
type DynamoDBBackend struct {
	svc   dynamodbiface.DynamoDBAPI
	table string
}

// NewDynamoDB wraps an existing client.
func NewDynamoDB(svc dynamodbiface.DynamoDBAPI, table string) (*DynamoDBBackend, error) {
	if svc == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("dynamodb table is required")
	}
	return &DynamoDBBackend{svc: svc, table: table}, nil
}

// NewDynamoDBFromConfig builds a client from the shared AWS configuration.
func NewDynamoDBFromConfig(table, region string) (*DynamoDBBackend, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            aws.Config{Region: aws.String(region)},
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewDynamoDB(dynamodb.New(sess), table)
}

// Load implements Backend. DynamoDB removes expired items on its own
// schedule, so the ttl attribute is returned for the caller to check.
func (b *DynamoDBBackend) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	out, err := b.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            map[string]*dynamodb.AttributeValue{"cache_key": {S: aws.String(key)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if len(out.Item) == 0 {
		return nil, time.Time{}, false, nil
	}
	var item dynamoCacheItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("unmarshal cache item: %w", err)
	}
	return []byte(item.Payload), time.Unix(item.TTL, 0), true, nil
}

// Store implements Backend.
func (b *DynamoDBBackend) Store(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	av, err := dynamodbattribute.MarshalMap(dynamoCacheItem{
		CacheKey: key,
		Payload:  string(payload),
		TTL:      expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal cache item: %w", err)
	}
	_, err = b.svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		Item:      av,
		TableName: aws.String(b.table),
	})
	return err
}

// Remove implements Backend.
func (b *DynamoDBBackend) Remove(ctx context.Context, key string) error {
	_, err := b.svc.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       map[string]*dynamodb.AttributeValue{"cache_key": {S: aws.String(key)}},
	})
	return err
}

// Close implements Backend.
func (b *DynamoDBBackend) Close() error { return nil }
