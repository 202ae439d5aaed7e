package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"visual-search-platform/internal/config"
)

// InferenceClient talks to the VGG feature extraction service. The service
// owns the network weights; this client only ships image bytes and gets
// activations back, with a circuit breaker and client-side rate limiting in
// front of it.
type InferenceClient struct {
	config     *config.Config
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

// FeatureResponse is the inference service's extraction payload.
type FeatureResponse struct {
	Success        bool      `json:"success"`
	Features       []float64 `json:"features"`
	Dims           int       `json:"dims"`
	Model          string    `json:"model"`
	Layer          string    `json:"layer"`
	ProcessingTime float64   `json:"processing_time"`
	Error          string    `json:"error,omitempty"`
}

// HealthResponse is the inference service's health check payload.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
	Version     string `json:"version"`
}

// NewInferenceClient creates a client for the feature extraction service.
func NewInferenceClient(cfg *config.Config) *InferenceClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "InferenceService",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &InferenceClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.InferenceTimeout) * time.Second,
		},
		baseURL: cfg.InferenceServiceURL,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.InferenceRPS), cfg.InferenceBurst),
	}
}

// IsHealthy checks if the inference service is up with its model loaded.
func (c *InferenceClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}

	return healthResp.Status == "healthy" && healthResp.ModelLoaded, nil
}

// ExtractFeatures sends the image to the inference service and returns the
// L2-normalized activation of the configured model layer.
func (c *InferenceClient) ExtractFeatures(ctx context.Context, imageData []byte, filename string) ([]float64, error) {
	tracer := otel.Tracer("inference-client")
	ctx, span := tracer.Start(ctx, "inference.extract_features")
	defer span.End()

	span.SetAttributes(
		attribute.String("inference.model", c.config.VGGModel),
		attribute.String("inference.layer", c.config.VGGLayer),
		attribute.Int("inference.image_bytes", len(imageData)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("inference.rate_limited", true))
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doExtract(ctx, imageData, filename)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("inference.circuit_breaker_open", true))
		} else {
			span.SetAttributes(attribute.Bool("inference.error", true))
		}
		return nil, err
	}

	features := result.([]float64)
	span.SetAttributes(attribute.Int("inference.dims", len(features)))

	normalizeL2(features)
	return features, nil
}

func (c *InferenceClient) doExtract(ctx context.Context, imageData []byte, filename string) ([]float64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}

	writer.WriteField("model", c.config.VGGModel)
	writer.WriteField("layer", c.config.VGGLayer)

	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/features/extract", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var featResp FeatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&featResp); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	if !featResp.Success {
		return nil, fmt.Errorf("feature extraction failed: %s", featResp.Error)
	}

	if len(featResp.Features) != c.config.VectorDimensions {
		return nil, fmt.Errorf("unexpected feature dimensions: got %d, want %d",
			len(featResp.Features), c.config.VectorDimensions)
	}

	return featResp.Features, nil
}

func normalizeL2(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}
