package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// createIndexes creates the regular B-tree indexes on the photos collection.
// The Atlas Search and Vector Search indexes are managed in Atlas and only
// referenced here by name (cfg.SearchIndexName / cfg.VectorIndexName).
func createIndexes(client *mongo.Client, cfg *Config) error {
	db := client.Database(cfg.DBName)

	photosCollection := db.Collection(cfg.PhotosCollection)
	photoIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "photo_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "image_status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "date_uploaded", Value: -1}},
		},
	}
	_, err := photosCollection.Indexes().CreateMany(context.Background(), photoIndexes)
	if err != nil {
		return err
	}

	// Checkpoints collection, one document per ingestion job
	checkpointsCollection := db.Collection("ingest_checkpoints")
	checkpointIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err = checkpointsCollection.Indexes().CreateMany(context.Background(), checkpointIndexes)
	if err != nil {
		return err
	}

	return nil
}
