package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Photo image document statuses.
const (
	ImageStatusIndexed        = "indexed"
	ImageStatusDownloadFailed = "download_failed"
	ImageStatusExtractFailed  = "extract_failed"
)

// Photo is a catalog item with its descriptor vectors, denormalized for
// Atlas Search/VectorSearch. A missing vector field means that descriptor
// was never computed for the item; zero vectors are never stored.
type Photo struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	PhotoID      string             `bson:"photo_id" json:"id"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Title        string             `bson:"title" json:"title"`
	Tags         string             `bson:"tags" json:"tags"`
	TagList      []string           `bson:"tag_list,omitempty" json:"tag_list,omitempty"`
	Latitude     *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude    *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Views        int64              `bson:"views" json:"views"`
	DateTaken    *time.Time         `bson:"date_taken,omitempty" json:"date_taken,omitempty"`
	DateUploaded *time.Time         `bson:"date_uploaded,omitempty" json:"date_uploaded,omitempty"`

	// Flickr locator parts; the URL is always derived, never stored.
	Secret string `bson:"flickr_secret" json:"-"`
	Server string `bson:"flickr_server" json:"-"`
	Farm   string `bson:"flickr_farm" json:"-"`

	ImageStatus string    `bson:"image_status,omitempty" json:"image_status,omitempty"`
	IndexedAt   time.Time `bson:"indexed_at,omitempty" json:"indexed_at,omitempty"`

	// Descriptor vectors
	VGGFeatures    []float64 `bson:"vgg_features,omitempty" json:"-"`
	ColorHistogram []float64 `bson:"color_histogram,omitempty" json:"-"`
	LBPFeatures    []float64 `bson:"lbp_features,omitempty" json:"-"`
	HOGFeatures    []float64 `bson:"hog_features,omitempty" json:"-"`
	EdgeHistogram  []float64 `bson:"edge_histogram,omitempty" json:"-"`
	SIFTFeatures   []float64 `bson:"sift_features,omitempty" json:"-"`
}

// URL derives the remote image location from the locator parts.
func (p *Photo) URL() string {
	return fmt.Sprintf("http://farm%s.staticflickr.com/%s/%s_%s.jpg", p.Farm, p.Server, p.PhotoID, p.Secret)
}

// IngestCheckpoint records the resume point of an ingestion job. The offset
// only ever moves forward, and only after the batch behind it is committed.
type IngestCheckpoint struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	JobID     string             `bson:"job_id" json:"job_id"`
	Offset    int64              `bson:"offset" json:"offset"`
	Processed int64              `bson:"processed" json:"processed"`
	Skipped   int64              `bson:"skipped" json:"skipped"`
	Failed    int64              `bson:"failed" json:"failed"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
