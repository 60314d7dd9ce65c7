package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pricepatrol/internal/config"
	"pricepatrol/internal/types"
)

// Mongo backs jobs, alerts, and the static catalog with MongoDB. Job
// reclamation rides on a TTL index over expires_at; GetJob additionally
// guards against the TTL monitor's sweep lag.
type Mongo struct {
	client  *mongo.Client
	jobs    *mongo.Collection
	alerts  *mongo.Collection
	catalog *mongo.Collection
	logger  *slog.Logger
}

// NewMongo connects, pings, and ensures indexes.
func NewMongo(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	m := &Mongo{
		client:  client,
		jobs:    db.Collection("jobs"),
		alerts:  db.Collection("alerts"),
		catalog: db.Collection("catalog"),
		logger:  logger.With("component", "mongo_store"),
	}
	if err := m.ensureIndexes(connectCtx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("mongodb ttl index: %w", err)
	}
	_, err = m.jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "query", Value: 1}, {Key: "start_time", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongodb query index: %w", err)
	}
	return nil
}

func (m *Mongo) InsertJob(ctx context.Context, job *types.Job) error {
	if _, err := m.jobs.InsertOne(ctx, job); err != nil {
		return &types.StoreError{Op: "insert job", Err: err}
	}
	return nil
}

func (m *Mongo) GetJob(ctx context.Context, id string) (*types.Job, error) {
	var job types.Job
	err := m.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrJobNotFound
	}
	if err != nil {
		return nil, &types.StoreError{Op: "get job", Err: err}
	}
	// The TTL monitor sweeps on its own schedule; an expired document may
	// still be present.
	if job.Expired(time.Now()) {
		return nil, types.ErrJobNotFound
	}
	return &job, nil
}

func (m *Mongo) UpdateJob(ctx context.Context, job *types.Job) error {
	res, err := m.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return &types.StoreError{Op: "update job", Err: err}
	}
	if res.MatchedCount == 0 {
		return types.ErrJobNotFound
	}
	return nil
}

func (m *Mongo) FindReusable(ctx context.Context, query string, window time.Duration) (*types.Job, error) {
	filter := bson.M{
		"query":      primitive.Regex{Pattern: "^" + regexp.QuoteMeta(query) + "$", Options: "i"},
		"start_time": bson.M{"$gte": time.Now().Add(-window)},
		"status":     bson.M{"$ne": types.JobFailed},
		"$nor": []bson.M{
			{
				"status": types.JobCompleted,
				"$or": []bson.M{
					{"results": bson.M{"$size": 0}},
					{"results": nil},
				},
			},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}})

	var job types.Job
	err := m.jobs.FindOne(ctx, filter, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrJobNotFound
	}
	if err != nil {
		return nil, &types.StoreError{Op: "find reusable job", Err: err}
	}
	if job.Expired(time.Now()) {
		return nil, types.ErrJobNotFound
	}
	return &job, nil
}

func (m *Mongo) InsertAlert(ctx context.Context, alert *types.Alert) error {
	if _, err := m.alerts.InsertOne(ctx, alert); err != nil {
		return &types.StoreError{Op: "insert alert", Err: err}
	}
	return nil
}

func (m *Mongo) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	var alert types.Alert
	err := m.alerts.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrAlertNotFound
	}
	if err != nil {
		return nil, &types.StoreError{Op: "get alert", Err: err}
	}
	return &alert, nil
}

func (m *Mongo) UpdateAlert(ctx context.Context, alert *types.Alert) error {
	res, err := m.alerts.ReplaceOne(ctx, bson.M{"_id": alert.ID}, alert)
	if err != nil {
		return &types.StoreError{Op: "update alert", Err: err}
	}
	if res.MatchedCount == 0 {
		return types.ErrAlertNotFound
	}
	return nil
}

func (m *Mongo) ListAlerts(ctx context.Context, untriggeredOnly bool) ([]types.Alert, error) {
	filter := bson.M{}
	if untriggeredOnly {
		filter["is_triggered"] = false
	}
	cur, err := m.alerts.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, &types.StoreError{Op: "list alerts", Err: err}
	}
	defer cur.Close(ctx)

	var alerts []types.Alert
	if err := cur.All(ctx, &alerts); err != nil {
		return nil, &types.StoreError{Op: "decode alerts", Err: err}
	}
	return alerts, nil
}

func (m *Mongo) FindCatalog(ctx context.Context, query string, limit int) ([]types.Listing, error) {
	filter := bson.M{
		"title": primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
	}
	cur, err := m.catalog.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, &types.StoreError{Op: "find catalog", Err: err}
	}
	defer cur.Close(ctx)

	var listings []types.Listing
	if err := cur.All(ctx, &listings); err != nil {
		return nil, &types.StoreError{Op: "decode catalog", Err: err}
	}
	return listings, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	m.logger.Info("mongodb store closing")
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.client.Disconnect(disconnectCtx)
}
