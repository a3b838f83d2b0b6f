package cachez

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	defaultDynamoTable  = "cachez_entries"
	defaultDynamoRegion = "us-east-1"

	dynamoEnsureTableMaxAttempts = 20
	dynamoEnsureTableRetryDelay  = 150 * time.Millisecond
)

// DynamoAPI captures the subset of DynamoDB client methods used by the backend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoConfig describes a DynamoDB backed store. When Client is nil one is
// built from Region and Endpoint with static local credentials.
type DynamoConfig struct {
	Client   DynamoAPI
	Table    string
	Prefix   string
	Region   string
	Endpoint string
}

type dynamoBackend struct {
	client DynamoAPI
	table  string
	prefix string
}

// NewDynamoBackend creates the table when missing and returns a backend
// storing entries as items with k (name), v (blob) and sa (write time).
//
// Example: DynamoDB Local
//
//	backend, err := cachez.NewDynamoBackend(ctx, cachez.DynamoConfig{
//		Endpoint: "http://127.0.0.1:8000",
//	})
//	if err != nil {
//		return err
//	}
//	opt := cachez.WithBackend(backend)
func NewDynamoBackend(ctx context.Context, cfg DynamoConfig) (Backend, error) {
	if cfg.Table == "" {
		cfg.Table = defaultDynamoTable
	}
	if cfg.Region == "" {
		cfg.Region = defaultDynamoRegion
	}
	if cfg.Client == nil {
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.Client = client
	}
	if err := ensureDynamoTable(ctx, cfg.Client, cfg.Table); err != nil {
		return nil, err
	}
	return &dynamoBackend{client: cfg.Client, table: cfg.Table, prefix: cfg.Prefix}, nil
}

func newDynamoClient(ctx context.Context, cfg DynamoConfig) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint, HostnameImmutable: true}, nil
		})
		awsCfg.EndpointResolverWithOptions = resolver
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func (b *dynamoBackend) Driver() Driver { return DriverDynamo }

func (b *dynamoBackend) Load(ctx context.Context, name string) (Entry, bool, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       b.itemKey(name),
	})
	if err != nil {
		return Entry{}, false, err
	}
	if out.Item == nil {
		return Entry{}, false, nil
	}
	v, ok := out.Item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return Entry{}, false, fmt.Errorf("%w: dynamodb item missing binary value", ErrCorruptEntry)
	}
	sa, ok := out.Item["sa"].(*types.AttributeValueMemberN)
	if !ok {
		return Entry{}, false, fmt.Errorf("%w: dynamodb item missing write time", ErrCorruptEntry)
	}
	savedAt, err := strconv.ParseInt(sa.Value, 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return Entry{Blob: cloneBytes(v.Value), ModTime: time.Unix(0, savedAt)}, true, nil
}

func (b *dynamoBackend) Save(ctx context.Context, name string, blob []byte) error {
	_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item: map[string]types.AttributeValue{
			"k":  &types.AttributeValueMemberS{Value: b.key(name)},
			"v":  &types.AttributeValueMemberB{Value: cloneBytes(blob)},
			"sa": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().UnixNano(), 10)},
		},
	})
	return err
}

func (b *dynamoBackend) Delete(ctx context.Context, name string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       b.itemKey(name),
	})
	return err
}

// Flush deletes every item under the prefix, or the whole table without one.
func (b *dynamoBackend) Flush(ctx context.Context) error {
	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		out, err := b.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(b.table),
			ProjectionExpression: aws.String("k"),
			ExclusiveStartKey:    lastEvaluatedKey,
		})
		if err != nil {
			return err
		}
		var writes []types.WriteRequest
		for _, item := range out.Items {
			kv, ok := item["k"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if b.prefix != "" && !strings.HasPrefix(kv.Value, b.prefix+":") {
				continue
			}
			writes = append(writes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: kv.Value}},
				},
			})
		}
		// BatchWriteItem accepts at most 25 requests.
		for len(writes) > 0 {
			n := min(len(writes), 25)
			if _, err := b.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{b.table: writes[:n]},
			}); err != nil {
				return err
			}
			writes = writes[n:]
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		lastEvaluatedKey = out.LastEvaluatedKey
	}
}

func (b *dynamoBackend) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + ":" + name
}

func (b *dynamoBackend) itemKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: b.key(name)}}
}

func ensureDynamoTable(ctx context.Context, client DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= dynamoEnsureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isDynamoStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isDynamoStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == dynamoEnsureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dynamoEnsureTableRetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("dynamo table ensure failed")
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

func isDynamoStartupRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}
