package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
)

const dedupKeyAttr = "dedup_key"

// Dynamo keeps tasks keyed by id and articles keyed by title#date, so the
// article table itself enforces (title, date) uniqueness.
type Dynamo struct {
	client   dynamodbiface.DynamoDBAPI
	tasks    string
	articles string
	timeout  time.Duration
}

var _ ports.Storage = (*Dynamo)(nil)

// NewDynamo creates an AWS session and ensures both tables exist.
func NewDynamo(ctx context.Context, cfg config.StoreConfig) (*Dynamo, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return newDynamo(ctx, dynamodb.New(sess), cfg)
}

func newDynamo(ctx context.Context, client dynamodbiface.DynamoDBAPI, cfg config.StoreConfig) (*Dynamo, error) {
	d := &Dynamo{
		client:   client,
		tasks:    cfg.TasksCollection,
		articles: cfg.ArticlesCollection,
		timeout:  cfg.Timeout,
	}

	cctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := d.ensureTable(cctx, d.tasks, "id"); err != nil {
		return nil, err
	}
	if err := d.ensureTable(cctx, d.articles, dedupKeyAttr); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dynamo) ensureTable(ctx context.Context, table, hashKey string) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("describe table %s: %w", table, err)
	}

	_, err = d.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
}

// Close is a no-op; the SDK client holds no connection state.
func (d *Dynamo) Close(context.Context) error {
	return nil
}

// ListPending scans the task table for unset flags.
func (d *Dynamo) ListPending(ctx context.Context) ([]domain.FeedTask, error) {
	return d.scanTasks(ctx, false)
}

func (d *Dynamo) scanTasks(ctx context.Context, done bool) ([]domain.FeedTask, error) {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("isdone").Equal(expression.Value(done))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build scan filter: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(d.tasks),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var (
		tasks   []domain.FeedTask
		pageErr error
	)
	err = d.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		var batch []domain.FeedTask
		if pageErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); pageErr != nil {
			return false
		}
		tasks = append(tasks, batch...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	if pageErr != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", pageErr)
	}
	return tasks, nil
}

// Claim flips the flag with a conditional update.
func (d *Dynamo) Claim(ctx context.Context, id string) (bool, error) {
	err := d.setDone(ctx, id, true)
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim task %s: %w", id, err)
	}
	return true, nil
}

// ResetAll clears every set flag. Tasks reset concurrently elsewhere are skipped.
func (d *Dynamo) ResetAll(ctx context.Context) (int, error) {
	done, err := d.scanTasks(ctx, true)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, t := range done {
		err := d.setDone(ctx, t.ID, false)
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("reset task %s: %w", t.ID, err)
		}
		n++
	}
	return n, nil
}

func (d *Dynamo) setDone(ctx context.Context, id string, done bool) error {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	update := expression.Set(expression.Name("isdone"), expression.Value(done))
	cond := expression.Name("isdone").Equal(expression.Value(!done))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	_, err = d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tasks),
		Key:                       map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}

// ExistsTitleOnDate looks the article up by its dedup key.
func (d *Dynamo) ExistsTitleOnDate(ctx context.Context, title, date string) (bool, error) {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(d.articles),
		Key:                  map[string]*dynamodb.AttributeValue{dedupKeyAttr: {S: aws.String(dedupKey(title, date))}},
		ProjectionExpression: aws.String(dedupKeyAttr),
	})
	if err != nil {
		return false, fmt.Errorf("get article: %w", err)
	}
	return len(out.Item) > 0, nil
}

// Save puts the article unless its dedup key is already taken.
func (d *Dynamo) Save(ctx context.Context, a domain.Article) error {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	item, err := dynamodbattribute.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal article %s: %w", a.ID, err)
	}
	item[dedupKeyAttr] = &dynamodb.AttributeValue{S: aws.String(dedupKey(a.Title, a.Date))}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.articles),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + dedupKeyAttr + ")"),
	})
	if isConditionFailed(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("put article %s: %w", a.ID, err)
	}
	return nil
}

func dedupKey(title, date string) string {
	return date + "#" + title
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
