package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

// DynamoDBStorage implements ObjectStore using an AWS DynamoDB table, one
// item per key
type DynamoDBStorage struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// dynamoItem is the stored shape of an object. "key" is a DynamoDB
// reserved word, hence object_key.
type dynamoItem struct {
	ObjectKey   string `dynamodbav:"object_key"`
	Body        []byte `dynamodbav:"body"`
	ContentType string `dynamodbav:"content_type"`
	Version     int64  `dynamodbav:"version"`
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(ctx context.Context, cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	storage := &DynamoDBStorage{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}

	// Create table if it doesn't exist (for local testing)
	if err := storage.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}

	return storage, nil
}

// ensureTable creates the DynamoDB table if it doesn't exist
func (d *DynamoDBStorage) ensureTable(ctx context.Context) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		return nil
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("object_key"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("object_key"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err := d.client.CreateTableWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
}

// Get retrieves an object by key with a strongly consistent read
func (d *DynamoDBStorage) Get(ctx context.Context, key string) (*Object, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object %s: %w", key, err)
	}

	return &Object{
		Key:         item.ObjectKey,
		Body:        item.Body,
		ContentType: item.ContentType,
		Version:     strconv.FormatInt(item.Version, 10),
	}, nil
}

// Put overwrites an object, bumping its version atomically
func (d *DynamoDBStorage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              d.itemKey(key),
		UpdateExpression: aws.String("SET body = :b, content_type = :c ADD #v :one"),
		ExpressionAttributeNames: map[string]*string{
			"#v": aws.String("version"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":b":   {B: body},
			":c":   {S: aws.String(contentType)},
			":one": {N: aws.String("1")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return nil
}

// PutIfMatch writes the item under a condition on its version attribute
func (d *DynamoDBStorage) PutIfMatch(ctx context.Context, key string, body []byte, contentType, version string) (string, error) {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
	}

	var next int64 = 1
	if version == "" {
		input.ConditionExpression = aws.String("attribute_not_exists(object_key)")
	} else {
		current, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return "", ErrVersionMismatch
		}
		next = current + 1
		input.ConditionExpression = aws.String("#v = :expected")
		input.ExpressionAttributeNames = map[string]*string{"#v": aws.String("version")}
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":expected": {N: aws.String(version)},
		}
	}

	item, err := dynamodbattribute.MarshalMap(dynamoItem{
		ObjectKey:   key,
		Body:        body,
		ContentType: contentType,
		Version:     next,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal object %s: %w", key, err)
	}
	input.Item = item

	if _, err := d.client.PutItemWithContext(ctx, input); err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return "", ErrVersionMismatch
		}
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}

	return strconv.FormatInt(next, 10), nil
}

// List scans for keys with the prefix. DynamoDB scans are unordered, so the
// keys are sorted before truncating to limit.
func (d *DynamoDBStorage) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		ProjectionExpression: aws.String("object_key"),
		FilterExpression:     aws.String("begins_with(object_key, :p)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":p": {S: aws.String(prefix)},
		},
		ConsistentRead: aws.Bool(true),
	}

	keys := make([]string, 0)
	var unmarshalErr error
	err := d.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var items []dynamoItem
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); err != nil {
			unmarshalErr = err
			return false
		}
		for _, item := range items {
			keys = append(keys, item.ObjectKey)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan objects under %s: %w", prefix, err)
	}
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal keys: %w", unmarshalErr)
	}

	sort.Strings(keys)
	if limit >= 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (d *DynamoDBStorage) itemKey(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"object_key": {S: aws.String(key)},
	}
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
