package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

// Run locally:
//   GO_TEST_INTEGRATION=1 go test ./internal/infrastructure/storage -run Mongo -v

func startMongo(t *testing.T) *Mongo {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	m, err := NewMongo(ctx, config.StoreConfig{
		Type:               config.StoreMongo,
		URI:                fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database:           "test_" + uuid.NewString()[:8],
		TasksCollection:    "scrape_tasks",
		ArticlesCollection: "news_articles",
		Timeout:            10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestMongoTasksAndArticles(t *testing.T) {
	m := startMongo(t)
	ctx := context.Background()

	_, err := m.tasks.InsertMany(ctx, []any{
		domain.FeedTask{ID: "t1", Name: "Reuters", URL: "https://example.com/rss"},
		domain.FeedTask{ID: "t2", Name: "BBC", URL: "https://example.org/rss", Done: true},
	})
	require.NoError(t, err)

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "t1", pending[0].ID)

	ok, err := m.Claim(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Claim(ctx, "t1")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := m.ResetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, m.Save(ctx, sampleArticle("X", "2025-01-02")))
	exists, err := m.ExistsTitleOnDate(ctx, "X", "2025-01-02")
	require.NoError(t, err)
	require.True(t, exists)

	require.ErrorIs(t, m.Save(ctx, sampleArticle("X", "2025-01-02")), domain.ErrDuplicate)
}

func TestMongoClaimsObjectIDTasks(t *testing.T) {
	m := startMongo(t)
	ctx := context.Background()

	// No _id: the server assigns an ObjectID, as for tasks seeded by hand.
	_, err := m.tasks.InsertOne(ctx, bson.M{"name": "ISNA", "url": "https://www.isna.ir/rss", "isdone": false})
	require.NoError(t, err)

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID
	require.Len(t, id, 24)

	ok, err := m.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err = m.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestTaskIDFilter(t *testing.T) {
	t.Parallel()

	require.Equal(t, "t1", taskIDFilter("t1"))

	hex := "6ad449924bd6677e18e5adfc"
	oid, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)
	require.Equal(t, bson.D{{Key: "$in", Value: bson.A{oid, hex}}}, taskIDFilter(hex))
}
