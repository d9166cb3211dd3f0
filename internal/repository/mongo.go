package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/joseph-ayodele/rxscan/internal/entity"
)

type mongoExtractionRepository struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// OpenMongo connects, pings and ensures the prescriptions indexes.
func OpenMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*mongo.Client, ExtractionRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "backend", "mongo", "database", database)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	repo := newMongoExtractionRepository(client.Database(database), logger)
	if err := repo.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	logger.Info("successfully connected to database")
	return client, repo, nil
}

func newMongoExtractionRepository(db *mongo.Database, logger *slog.Logger) *mongoExtractionRepository {
	return &mongoExtractionRepository{coll: db.Collection(TablePrescriptions), logger: logger}
}

func (r *mongoExtractionRepository) createIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: colImageID, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: colUserEmail, Value: 1}, {Key: colTimestamp, Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("can't create indexes: %w", err)
	}
	return nil
}

type mongoExtraction struct {
	entity.Extraction `bson:",inline"`
	Message           string `bson:"message"`
}

func (r *mongoExtractionRepository) Insert(ctx context.Context, e *entity.Extraction) error {
	doc := mongoExtraction{Extraction: *e, Message: StoredMessage}
	doc.Timestamp = doc.Timestamp.UTC()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		r.logger.Error("failed to insert extraction", "image_id", e.ImageID, "error", err)
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

func (r *mongoExtractionRepository) ListBySubmitter(ctx context.Context, submitter string) ([]*entity.Extraction, error) {
	opts := options.Find().SetSort(bson.D{{Key: colTimestamp, Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{colUserEmail: submitter}, opts)
	if err != nil {
		r.logger.Error("failed to list extractions", "user_email", submitter, "error", err)
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*entity.Extraction, 0)
	for cursor.Next(ctx) {
		var doc mongoExtraction
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode extraction: %w", err)
		}
		e := doc.Extraction
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractions: %w", err)
	}
	return out, nil
}

func (r *mongoExtractionRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}
