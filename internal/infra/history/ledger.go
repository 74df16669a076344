// Where: internal/infra/history/ledger.go
// What: DynamoDB deploy ledger.
// Why: Keep a queryable record of what ran where, newest first per environment.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names. env is the hash key and deployed_at the range key.
const (
	attrEnv        = "env"
	attrDeployedAt = "deployed_at"
	attrRef        = "ref"
	attrEvent      = "event"
	attrStatus     = "status"
	attrFailedStep = "failed_step"
	attrImages     = "images"
	attrScriptKey  = "script_key"
)

// Deploy statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// timeLayout is fixed width so the range key sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var errTableRequired = errors.New("history table is required")

// Record is one pipeline run.
type Record struct {
	Env        string
	DeployedAt time.Time
	Ref        string
	Event      string
	Status     string
	FailedStep string
	Images     []string
	ScriptKey  string
}

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Ledger stores Records in one table.
type Ledger struct {
	api   DynamoAPI
	table string
}

// NewLedger returns a Ledger writing to table.
func NewLedger(api DynamoAPI, table string) (*Ledger, error) {
	if table == "" {
		return nil, errTableRequired
	}
	return &Ledger{api: api, table: table}, nil
}

// EnsureTable creates the table with on-demand billing when it is missing.
func (l *Ledger) EnsureTable(ctx context.Context) (bool, error) {
	_, err := l.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(l.table)})
	if err == nil {
		return false, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("describe table %s: %w", l.table, err)
	}
	_, err = l.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(l.table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrEnv), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrDeployedAt), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrEnv), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrDeployedAt), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return false, fmt.Errorf("create table %s: %w", l.table, err)
	}
	return true, nil
}

// Record writes rec.
func (l *Ledger) Record(ctx context.Context, rec Record) error {
	if rec.Env == "" {
		return errors.New("history record env is required")
	}
	if rec.DeployedAt.IsZero() {
		rec.DeployedAt = time.Now()
	}
	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item:      marshalRecord(rec),
	})
	if err != nil {
		return fmt.Errorf("put history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records for env, newest first.
func (l *Ledger) Recent(ctx context.Context, env string, limit int) ([]Record, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(l.table),
		KeyConditionExpression:   aws.String("#env = :env"),
		ExpressionAttributeNames: map[string]string{"#env": attrEnv},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":env": &types.AttributeValueMemberS{Value: env},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	out, err := l.api.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	records := make([]Record, 0, len(out.Items))
	for _, item := range out.Items {
		records = append(records, unmarshalRecord(item))
	}
	return records, nil
}

func marshalRecord(rec Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrEnv:        &types.AttributeValueMemberS{Value: rec.Env},
		attrDeployedAt: &types.AttributeValueMemberS{Value: rec.DeployedAt.UTC().Format(timeLayout)},
		attrStatus:     &types.AttributeValueMemberS{Value: rec.Status},
	}
	optional := map[string]string{
		attrRef:        rec.Ref,
		attrEvent:      rec.Event,
		attrFailedStep: rec.FailedStep,
		attrScriptKey:  rec.ScriptKey,
	}
	for name, value := range optional {
		if value != "" {
			item[name] = &types.AttributeValueMemberS{Value: value}
		}
	}
	if len(rec.Images) > 0 {
		item[attrImages] = &types.AttributeValueMemberSS{Value: append([]string(nil), rec.Images...)}
	}
	return item
}

func unmarshalRecord(item map[string]types.AttributeValue) Record {
	rec := Record{
		Env:        stringAttr(item, attrEnv),
		Ref:        stringAttr(item, attrRef),
		Event:      stringAttr(item, attrEvent),
		Status:     stringAttr(item, attrStatus),
		FailedStep: stringAttr(item, attrFailedStep),
		ScriptKey:  stringAttr(item, attrScriptKey),
	}
	if at, err := time.Parse(timeLayout, stringAttr(item, attrDeployedAt)); err == nil {
		rec.DeployedAt = at
	}
	if images, ok := item[attrImages].(*types.AttributeValueMemberSS); ok {
		rec.Images = images.Value
	}
	return rec
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if value, ok := item[name].(*types.AttributeValueMemberS); ok {
		return value.Value
	}
	return ""
}
