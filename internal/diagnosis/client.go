package diagnosis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agrimarket/internal/util"

	"go.uber.org/zap"
)

const analysisPrompt = `You are an expert agricultural pathologist. Analyze this plant image and provide a detailed diagnosis in JSON format.

Respond with a JSON object containing:
{
    "plant_type": "name of the plant if identifiable",
    "disease_name": "specific disease name or 'Healthy' if no disease detected",
    "confidence": confidence score from 0.0 to 1.0,
    "severity": "Low", "Medium", "High", or "Critical",
    "symptoms": "detailed description of visible symptoms",
    "causes": "what causes this disease (environmental, fungal, bacterial, viral, etc.)",
    "treatment": "detailed treatment recommendations including specific actions",
    "prevention": "prevention measures to avoid this disease in future",
    "recommended_products": ["list of 3-5 specific agricultural products/medications that can treat this"]
}

Be specific and professional. If the image is not a plant, indicate that clearly.`

const adviceSystemPrompt = `You are an expert agricultural advisor with extensive knowledge in:
- Crop cultivation and management
- Plant diseases and pest control
- Soil health and fertilization
- Irrigation and water management
- Organic and sustainable farming practices
- Weather-related crop planning
- Harvest timing and post-harvest handling

Provide practical, actionable advice to farmers. Be specific, clear, and helpful.`

// Result is the structured diagnosis returned by the vision model. A
// non-empty Error with zero Confidence marks the record non-diagnostic:
// callers must not read it as a "healthy" verdict.
type Result struct {
	PlantType           string   `json:"plant_type"`
	DiseaseName         string   `json:"disease_name"`
	Confidence          float64  `json:"confidence"`
	Severity            string   `json:"severity"`
	Symptoms            string   `json:"symptoms"`
	Causes              string   `json:"causes"`
	Treatment           string   `json:"treatment"`
	Prevention          string   `json:"prevention"`
	RecommendedProducts []string `json:"recommended_products"`
	Error               string   `json:"error,omitempty"`
}

// Diagnostic reports whether the result carries a usable diagnosis
func (r *Result) Diagnostic() bool {
	return r.Error == "" && r.Confidence > 0
}

// Client calls an OpenAI-compatible chat-completions endpoint. It is a thin
// synchronous collaborator: callers must never invoke it while holding a
// database transaction or lock.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	logger     *zap.Logger
}

// NewClient creates a diagnosis client. An empty apiKey leaves the client in
// an unconfigured state where every analysis yields the service-unavailable
// fallback record.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		logger:     util.GetLogger(),
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model               string            `json:"model"`
	Messages            []chatMessage     `json:"messages"`
	ResponseFormat      map[string]string `json:"response_format,omitempty"`
	MaxCompletionTokens int               `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzePlantImage diagnoses a plant photo. It never returns a Go error: any
// failure produces an error-flagged Result with confidence 0, mirroring the
// service's recoverable-by-retry contract.
func (c *Client) AnalyzePlantImage(ctx context.Context, image []byte) *Result {
	if c.apiKey == "" {
		return &Result{
			Error:       "AI service not configured",
			DiseaseName: "Service Unavailable",
			Confidence:  0,
			Severity:    "Unknown",
			Symptoms:    "AI analysis requires API key configuration.",
			Causes:      "No analysis available",
			Treatment:   "Please configure the AI API key to use disease detection.",
			Prevention:  "Configure the API key in settings",
		}
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []map[string]interface{}{
					{"type": "text", "text": analysisPrompt},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url": "data:image/jpeg;base64," + encoded,
						},
					},
				},
			},
		},
		ResponseFormat:      map[string]string{"type": "json_object"},
		MaxCompletionTokens: 2048,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		c.logger.Warn("Plant analysis failed", zap.Error(err))
		return analysisFallback(err)
	}

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		c.logger.Warn("Plant analysis returned malformed JSON", zap.Error(err))
		return analysisFallback(err)
	}
	return &result
}

// Advice answers a free-form agronomy question, optionally with context
func (c *Client) Advice(ctx context.Context, question, contextText string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("AI service not configured")
	}

	userMessage := question
	if contextText != "" {
		userMessage = fmt.Sprintf("Context: %s\n\nQuestion: %s", contextText, question)
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: adviceSystemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxCompletionTokens: 1024,
	}

	return c.complete(ctx, req)
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	return parsed.Choices[0].Message.Content, nil
}

func analysisFallback(err error) *Result {
	return &Result{
		Error:       err.Error(),
		DiseaseName: "Analysis Error",
		Confidence:  0,
		Severity:    "Unknown",
		Symptoms:    fmt.Sprintf("Error during analysis: %v", err),
		Causes:      "Unable to analyze",
		Treatment:   "Please try again or consult an expert",
		Prevention:  "Ensure good image quality",
	}
}
