package ai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"visual-search-platform/internal/config"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		InferenceServiceURL: url,
		InferenceTimeout:    5,
		InferenceRPS:        100,
		InferenceBurst:      10,
		VGGModel:            "vgg16",
		VGGLayer:            "pool5",
		VectorDimensions:    512,
	}
}

func TestExtractFeaturesNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/features/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("layer"); got != "pool5" {
			t.Errorf("expected layer pool5, got %s", got)
		}
		features := make([]float64, 512)
		for i := range features {
			features[i] = 2 // arbitrary non-normalized values
		}
		json.NewEncoder(w).Encode(FeatureResponse{Success: true, Features: features, Dims: 512})
	}))
	defer srv.Close()

	client := NewInferenceClient(testConfig(srv.URL))
	vec, err := client.ExtractFeatures(context.Background(), []byte("fake-image"), "test.jpg")
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if len(vec) != 512 {
		t.Fatalf("expected 512 dims, got %d", len(vec))
	}
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-9 {
		t.Fatalf("expected unit L2 norm, got %f", math.Sqrt(sum))
	}
}

func TestExtractFeaturesDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FeatureResponse{Success: true, Features: []float64{1, 2, 3}, Dims: 3})
	}))
	defer srv.Close()

	client := NewInferenceClient(testConfig(srv.URL))
	if _, err := client.ExtractFeatures(context.Background(), []byte("fake-image"), "test.jpg"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestExtractFeaturesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FeatureResponse{Success: false, Error: "model not loaded"})
	}))
	defer srv.Close()

	client := NewInferenceClient(testConfig(srv.URL))
	if _, err := client.ExtractFeatures(context.Background(), []byte("fake-image"), "test.jpg"); err == nil {
		t.Fatal("expected service error")
	}
}

func TestIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", ModelLoaded: true})
	}))
	defer srv.Close()

	client := NewInferenceClient(testConfig(srv.URL))
	healthy, err := client.IsHealthy(context.Background())
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy service")
	}
}
