package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem keys runs by command so one partition lists a command's history.
type dynamoItem struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Status    string `dynamodbav:"status"`
	Data      string `dynamodbav:"data"`
	Timestamp string `dynamodbav:"timestamp"`
	TTL       int64  `dynamodbav:"ttl"`
}

// DynamoRecorder writes entries to a DynamoDB table.
type DynamoRecorder struct {
	client    DynamoAPI
	tableName string
	retention time.Duration
}

// NewDynamoRecorder creates a recorder. Items expire after 90 days.
func NewDynamoRecorder(client DynamoAPI, tableName string) *DynamoRecorder {
	return &DynamoRecorder{client: client, tableName: tableName, retention: 90 * 24 * time.Hour}
}

// Record puts one entry.
func (r *DynamoRecorder) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	item := dynamoItem{
		PK:        fmt.Sprintf("RUN#%s", e.Command),
		SK:        fmt.Sprintf("%s#%s", e.StartedAt.UTC().Format(time.RFC3339), e.ID),
		Status:    e.Status,
		Data:      string(data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TTL:       e.StartedAt.Add(r.retention).Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}
