package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"visual-search-platform/internal/config"
	"visual-search-platform/models"
)

// Mongo implements Store on MongoDB Atlas: $vectorSearch for kNN,
// $search for text, plain collections for everything else.
type Mongo struct {
	photos      *mongo.Collection
	checkpoints *mongo.Collection
	searchIndex string
	vectorIndex string
}

func NewMongo(client *mongo.Client, cfg *config.Config) *Mongo {
	db := client.Database(cfg.DBName)
	return &Mongo{
		photos:      db.Collection(cfg.PhotosCollection),
		checkpoints: db.Collection("ingest_checkpoints"),
		searchIndex: cfg.SearchIndexName,
		vectorIndex: cfg.VectorIndexName,
	}
}

// knnScoreToUnit maps the raw $vectorSearch score to [0,1]. Atlas already
// reports cosine similarity as (1 + cos) / 2, so this is where a different
// store's rescale formula would go, and nowhere else.
func knnScoreToUnit(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}

// hitProjection pulls the metadata fields plus the search score. Vector
// fields stay behind; results never ship descriptor payloads.
func hitProjection(scoreMeta string) bson.M {
	return bson.M{
		"photo_id":      1,
		"user_id":       1,
		"title":         1,
		"tags":          1,
		"tag_list":      1,
		"latitude":      1,
		"longitude":     1,
		"views":         1,
		"date_taken":    1,
		"date_uploaded": 1,
		"flickr_secret": 1,
		"flickr_server": 1,
		"flickr_farm":   1,
		"score":         bson.M{"$meta": scoreMeta},
	}
}

func (s *Mongo) KNNSearch(ctx context.Context, field string, vector []float64, k int, filter *Filter) ([]Hit, error) {
	stage := bson.M{
		"index":         s.vectorIndex,
		"path":          field,
		"queryVector":   vector,
		"limit":         k,
		"numCandidates": k * 10,
	}
	if f := vectorFilterDoc(filter); f != nil {
		stage["filter"] = f
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: stage}},
		{{Key: "$project", Value: hitProjection("vectorSearchScore")}},
	}

	hits, err := s.runSearch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s failed: %w", field, err)
	}
	for i := range hits {
		hits[i].Score = knnScoreToUnit(hits[i].Score)
	}
	return hits, nil
}

func (s *Mongo) TextSearch(ctx context.Context, q *TextQuery, k int, filter *Filter) ([]Hit, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$search", Value: bson.M{
			"index":    s.searchIndex,
			"compound": compoundFromQuery(q),
		}}},
		{{Key: "$limit", Value: k}},
		{{Key: "$project", Value: hitProjection("searchScore")}},
	}
	if m := matchFilterDoc(filter); m != nil {
		// Structured filters ride as a $match after $search; over-fetch so
		// filtering does not starve the page.
		pipeline = mongo.Pipeline{
			pipeline[0],
			{{Key: "$limit", Value: k * 10}},
			{{Key: "$match", Value: m}},
			{{Key: "$limit", Value: k}},
			pipeline[2],
		}
	}

	hits, err := s.runSearch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	return hits, nil
}

// compoundFromQuery renders the store-agnostic query as an Atlas compound
// operator. The builder's contract is best-clause-per-field; compound.should
// sums clause scores instead, a monotone difference that washes out once the
// caller min-max rescales the batch.
func compoundFromQuery(q *TextQuery) bson.M {
	var should []bson.M
	for _, fc := range q.Fields {
		boost := bson.M{"boost": bson.M{"value": fc.Boost}}

		// Analyzed match over the whole text
		should = append(should, bson.M{
			"text": bson.M{"query": q.Text, "path": fc.Path, "score": boost},
		})

		// One fuzzy clause per term so each keeps its own edit budget
		for _, term := range fc.Terms {
			if term.MaxEdits == 0 {
				continue
			}
			should = append(should, bson.M{
				"text": bson.M{
					"query": term.Text,
					"path":  fc.Path,
					"fuzzy": bson.M{"maxEdits": term.MaxEdits},
					"score": boost,
				},
			})
		}

		if fc.Slop > 0 && len(fc.Terms) > 1 {
			should = append(should, bson.M{
				"phrase": bson.M{
					"query": q.Text,
					"path":  fc.Path,
					"slop":  fc.Slop,
					"score": boost,
				},
			})
		}
	}
	return bson.M{
		"should":             should,
		"minimumShouldMatch": 1,
	}
}

// vectorFilterDoc renders the structured filter for $vectorSearch, which
// takes plain MQL match expressions on indexed fields.
func vectorFilterDoc(f *Filter) bson.M {
	return matchFilterDoc(f)
}

func matchFilterDoc(f *Filter) bson.M {
	if f == nil {
		return nil
	}
	doc := bson.M{}
	if len(f.Tags) > 0 {
		doc["tag_list"] = bson.M{"$in": f.Tags}
	}
	if f.MinViews > 0 {
		doc["views"] = bson.M{"$gte": f.MinViews}
	}
	dateRange := bson.M{}
	if f.DateFrom != nil {
		dateRange["$gte"] = *f.DateFrom
	}
	if f.DateTo != nil {
		dateRange["$lte"] = *f.DateTo
	}
	if len(dateRange) > 0 {
		doc["date_uploaded"] = dateRange
	}
	if len(doc) == 0 {
		return nil
	}
	return doc
}

func (s *Mongo) runSearch(ctx context.Context, pipeline mongo.Pipeline) ([]Hit, error) {
	cursor, err := s.photos.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var hits []Hit
	for cursor.Next(ctx) {
		var doc struct {
			models.Photo `bson:",inline"`
			Score        float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode hit: %w", err)
		}
		photo := doc.Photo
		hits = append(hits, Hit{PhotoID: photo.PhotoID, Score: doc.Score, Photo: &photo})
	}
	return hits, cursor.Err()
}

func (s *Mongo) BulkUpsert(ctx context.Context, photos []*models.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	batch := make([]mongo.WriteModel, 0, len(photos))
	for _, photo := range photos {
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"photo_id": photo.PhotoID}).
			SetUpdate(bson.M{"$set": photo}).
			SetUpsert(true))
	}
	_, err := s.photos.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk upsert of %d photos failed: %w", len(photos), err)
	}
	return nil
}

func (s *Mongo) HasDescriptors(ctx context.Context, photoID string, fields []string) (bool, error) {
	filter := bson.M{"photo_id": photoID}
	for _, f := range fields {
		filter[f] = bson.M{"$exists": true}
	}
	n, err := s.photos.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("coverage check for %s failed: %w", photoID, err)
	}
	return n > 0, nil
}

func (s *Mongo) Count(ctx context.Context) (int64, error) {
	return s.photos.EstimatedDocumentCount(ctx)
}

// missingDescriptorsFilter matches items missing any of the given fields.
func missingDescriptorsFilter(fields []string) bson.M {
	or := make([]bson.M, 0, len(fields))
	for _, f := range fields {
		or = append(or, bson.M{f: bson.M{"$exists": false}})
	}
	return bson.M{"$or": or}
}

func (s *Mongo) CountMissingDescriptors(ctx context.Context, fields []string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := s.photos.CountDocuments(ctx, missingDescriptorsFilter(fields))
	if err != nil {
		return 0, fmt.Errorf("missing-descriptor count failed: %w", err)
	}
	return n, nil
}

func (s *Mongo) LoadCheckpoint(ctx context.Context, jobID string) (*models.IngestCheckpoint, error) {
	var cp models.IngestCheckpoint
	err := s.checkpoints.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&cp)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", jobID, err)
	}
	return &cp, nil
}

func (s *Mongo) SaveCheckpoint(ctx context.Context, cp *models.IngestCheckpoint) error {
	// $max keeps the offset advance-only even if an older writer races
	_, err := s.checkpoints.UpdateOne(ctx,
		bson.M{"job_id": cp.JobID},
		bson.M{
			"$max": bson.M{"offset": cp.Offset},
			"$set": bson.M{
				"processed":  cp.Processed,
				"skipped":    cp.Skipped,
				"failed":     cp.Failed,
				"updated_at": time.Now(),
			},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.JobID, err)
	}
	return nil
}
