package stagecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"handout/internal/stagecache"
)

type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI
	items map[string]map[string]*dynamodb.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamo) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	key := aws.StringValue(in.Key["cache_key"].S)
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeDynamo) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	key := aws.StringValue(in.Item["cache_key"].S)
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItemWithContext(_ aws.Context, in *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, aws.StringValue(in.Key["cache_key"].S))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDBBackendRoundTrip(t *testing.T) {
	fake := newFakeDynamo()
	backend, err := stagecache.NewDynamoDB(fake, "handout-cache")
	if err != nil {
		t.Fatalf("NewDynamoDB: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := stagecache.New(backend, 24*time.Hour, nil, stagecache.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	cache.Set(ctx, "delivery-1", "ai:quiz", map[string]string{"title": "Q"})

	stored := fake.items[stagecache.Key("delivery-1", "ai:quiz")]
	if stored == nil {
		t.Fatal("expected item in table")
	}
	if ttl := aws.StringValue(stored["ttl"].N); ttl != "1772452800" {
		t.Fatalf("unexpected ttl attribute %q", ttl)
	}

	var got map[string]string
	if !cache.GetInto(ctx, "delivery-1", "ai:quiz", &got) || got["title"] != "Q" {
		t.Fatalf("expected hit, got %v", got)
	}

	now = now.Add(25 * time.Hour)
	if _, ok := cache.Get(ctx, "delivery-1", "ai:quiz"); ok {
		t.Fatal("expected expired item to miss")
	}
	if len(fake.items) != 0 {
		t.Fatalf("expected expired item to be deleted, have %d", len(fake.items))
	}
}

func TestNewDynamoDBRequiresTable(t *testing.T) {
	if _, err := stagecache.NewDynamoDB(newFakeDynamo(), " "); err == nil {
		t.Fatal("expected error for blank table")
	}
}
