package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
)

// Mongo keeps tasks and articles in two collections of one database.
type Mongo struct {
	client   *mongo.Client
	tasks    *mongo.Collection
	articles *mongo.Collection
	timeout  time.Duration
}

var _ ports.Storage = (*Mongo)(nil)

// NewMongo connects, pings and ensures the article uniqueness index.
func NewMongo(ctx context.Context, cfg config.StoreConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo: empty store uri")
	}

	cctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	cli, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(cctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := cli.Database(cfg.Database)
	m := &Mongo{
		client:   cli,
		tasks:    db.Collection(cfg.TasksCollection),
		articles: db.Collection(cfg.ArticlesCollection),
		timeout:  cfg.Timeout,
	}
	if err := m.ensureIndexes(cctx); err != nil {
		_ = m.Close(context.Background())
		return nil, err
	}
	return m, nil
}

// ensureIndexes creates:
// - a unique (title, date) index so a lost dedup race fails on insert
// - an isdone index for pending task queries
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.articles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "title", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetName("title_date_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo ensure article index: %w", err)
	}

	_, err = m.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "isdone", Value: 1}},
		Options: options.Index().SetName("isdone"),
	})
	if err != nil {
		return fmt.Errorf("mongo ensure task index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ListPending returns every task whose flag is false.
func (m *Mongo) ListPending(ctx context.Context) ([]domain.FeedTask, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	cur, err := m.tasks.Find(ctx, bson.D{{Key: "isdone", Value: false}})
	if err != nil {
		return nil, fmt.Errorf("mongo find pending: %w", err)
	}
	defer cur.Close(ctx)

	var tasks []domain.FeedTask
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("mongo decode tasks: %w", err)
	}
	return tasks, nil
}

// Claim flips the flag only when it is still false.
func (m *Mongo) Claim(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.tasks.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: taskIDFilter(id)}, {Key: "isdone", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isdone", Value: true}}}},
	)
	if err != nil {
		return false, fmt.Errorf("mongo claim task %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

// taskIDFilter matches id as stored. Tasks inserted by other tools carry
// an ObjectID _id, which ListPending decodes to its hex form.
func taskIDFilter(id string) any {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return id
	}
	return bson.D{{Key: "$in", Value: bson.A{oid, id}}}
}

// ResetAll sets every task flag back to false.
func (m *Mongo) ResetAll(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.tasks.UpdateMany(ctx,
		bson.D{{Key: "isdone", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isdone", Value: false}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("mongo reset tasks: %w", err)
	}
	return int(res.ModifiedCount), nil
}

// ExistsTitleOnDate reports whether an article with this title is stored for date.
func (m *Mongo) ExistsTitleOnDate(ctx context.Context, title, date string) (bool, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	n, err := m.articles.CountDocuments(ctx,
		bson.D{{Key: "title", Value: title}, {Key: "date", Value: date}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("mongo count articles: %w", err)
	}
	return n > 0, nil
}

// Save inserts the article.
func (m *Mongo) Save(ctx context.Context, article domain.Article) error {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.articles.InsertOne(ctx, article); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("mongo insert article: %w", err)
	}
	return nil
}
