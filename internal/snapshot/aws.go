package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/supplychain/notifyconsole/internal/notify"
)

const (
	awsOperationTimeout = 10 * time.Second
	maxSnapshotBytes    = 64 << 20
)

// AWSOptions configures the SDK clients. Endpoint is set for LocalStack
// style deployments; empty credentials fall back to the default chain.
type AWSOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func awsOptionsFromQuery(values url.Values) AWSOptions {
	return AWSOptions{
		Region:          strings.TrimSpace(values.Get("region")),
		Endpoint:        strings.TrimSpace(values.Get("endpoint")),
		AccessKeyID:     strings.TrimSpace(values.Get("access_key_id")),
		SecretAccessKey: strings.TrimSpace(values.Get("secret_access_key")),
	}
}

func loadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}

type dynamoSnapshotItem struct {
	Key        string `dynamodbav:"snapshot_key"`
	Snapshot   string `dynamodbav:"snapshot"`
	EntryCount int    `dynamodbav:"entry_count"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// DynamoBackend stores the snapshot as one item whose partition key
// attribute is snapshot_key.
type DynamoBackend struct {
	client *dynamodb.Client
	table  string
	key    string
}

func NewDynamoBackend(ctx context.Context, table, key string, opts AWSOptions) (*DynamoBackend, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("%w: dynamodb table is required", ErrInvalidInput)
	}
	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	clientOpts := []func(*dynamodb.Options){}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	return &DynamoBackend{
		client: dynamodb.NewFromConfig(cfg, clientOpts...),
		table:  table,
		key:    normalizeKey(key),
	}, nil
}

func (b *DynamoBackend) Load() ([]notify.StoredNotification, error) {
	if b == nil || b.client == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), awsOperationTimeout)
	defer cancel()
	key, err := attributevalue.MarshalMap(map[string]string{"snapshot_key": b.key})
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get snapshot: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item dynamoSnapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return Decode([]byte(item.Snapshot))
}

func (b *DynamoBackend) Save(items []notify.StoredNotification) error {
	if b == nil || b.client == nil {
		return nil
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(dynamoSnapshotItem{
		Key:        b.key,
		Snapshot:   string(data),
		EntryCount: len(items),
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot item: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), awsOperationTimeout)
	defer cancel()
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put snapshot: %w", err)
	}
	return nil
}

// S3Backend stores the snapshot as a single JSON object.
type S3Backend struct {
	client *s3.Client
	bucket string
	key    string
}

func NewS3Backend(ctx context.Context, bucket, objectKey string, opts AWSOptions) (*S3Backend, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidInput)
	}
	objectKey = strings.Trim(strings.TrimSpace(objectKey), "/")
	if objectKey == "" {
		objectKey = DefaultKey + ".json"
	}
	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	clientOpts := []func(*s3.Options){}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Backend{
		client: s3.NewFromConfig(cfg, clientOpts...),
		bucket: bucket,
		key:    objectKey,
	}, nil
}

func (b *S3Backend) Load() ([]notify.StoredNotification, error) {
	if b == nil || b.client == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), awsOperationTimeout)
	defer cancel()
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		var notFound *s3types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 get snapshot: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("s3 read snapshot: %w", err)
	}
	return Decode(data)
}

func (b *S3Backend) Save(items []notify.StoredNotification) error {
	if b == nil || b.client == nil {
		return nil
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), awsOperationTimeout)
	defer cancel()
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put snapshot: %w", err)
	}
	return nil
}
