package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/RUGU2211/beachguardians-verify/internal/profile"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
)

// Dynamo implements a DynamoDB profile store.
type Dynamo struct {
	client *dynamodb.Client
	conf   Conf
}

// Conf contains DynamoDB configuration fields.
type Conf struct {
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Table     string `json:"table"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// New creates a DynamoDB profile store. When c.Endpoint is set
// (LocalStack), it overrides the endpoint so all traffic goes to the
// local instance.
func New(c Conf) (*Dynamo, error) {
	if c.Table == "" {
		return nil, fmt.Errorf("invalid dynamo table name")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if c.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
		})
	}

	return &Dynamo{
		client: dynamodb.NewFromConfig(awsCfg, clientOpts...),
		conf:   c,
	}, nil
}

// Ping checks if the profiles table is reachable.
func (d *Dynamo) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.conf.Table),
	})
	return err
}

// Get retrieves a profile by user ID.
func (d *Dynamo) Get(ctx context.Context, userID string) (models.Profile, error) {
	var out models.Profile

	res, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.conf.Table),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return out, err
	}
	if res.Item == nil {
		return out, profile.ErrNotExist
	}

	if err := attributevalue.UnmarshalMap(res.Item, &out); err != nil {
		return out, fmt.Errorf("error unmarshalling profile: %w", err)
	}
	return out, nil
}

// Merge performs a partial update on a profile, creating the item if it
// doesn't exist. Fields absent from updates are left untouched; flags
// are only ever set, never cleared, by the callers of this store.
func (d *Dynamo) Merge(ctx context.Context, userID string, updates map[string]interface{}) error {
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.conf.Table),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET
// expression.
func buildUpdateExpr(updates map[string]interface{}) (expr string, names map[string]string, values map[string]types.AttributeValue, err error) {
	names = make(map[string]string)
	values = make(map[string]types.AttributeValue)
	expr = "SET "
	i := 0
	for k, v := range updates {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = k
		av, mErr := attributevalue.Marshal(v)
		if mErr != nil {
			return "", nil, nil, fmt.Errorf("error marshalling field %s: %w", k, mErr)
		}
		values[valueKey] = av
		if i > 0 {
			expr += ", "
		}
		expr += fmt.Sprintf("%s = %s", nameKey, valueKey)
		i++
	}
	if i == 0 {
		return "", nil, nil, fmt.Errorf("no fields to update")
	}
	return expr, names, values, nil
}
