package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

const defaultAPIBase = "https://api.openai.com/v1"

// Insight is one generated insight card
type Insight struct {
	Text  string `json:"text"`
	Type  string `json:"type"` // spending, saving, investment
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Client talks to the OpenAI chat completions API. Every method degrades to
// a canned response instead of failing; advice quality drops but the app
// keeps working without a key or through an outage.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewClient() *Client {
	viper.SetDefault("openai.api_base", defaultAPIBase)
	viper.SetDefault("openai.model", "gpt-4o")
	return &Client{
		apiKey:  viper.GetString("openai.api_key"),
		baseURL: viper.GetString("openai.api_base"),
		model:   viper.GetString("openai.model"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// complete runs one chat completion and returns the raw assistant content
func (c *Client) complete(ctx context.Context, messages []chatMessage, jsonMode bool) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai: api key missing")
	}

	payload := map[string]any{
		"model":    c.model,
		"messages": messages,
	}
	if jsonMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Advice answers a free-form question with the user's financial snapshot as
// context. The snapshot is already aggregated; raw card numbers never reach
// the prompt.
func (c *Client) Advice(ctx context.Context, message string, userData any) string {
	contextJSON, _ := json.Marshal(userData)
	content, err := c.complete(ctx, []chatMessage{
		{
			Role: "system",
			Content: "You are a helpful financial assistant in the Wallet Master app. " +
				"Provide useful, personalized financial advice based on the user data provided. " +
				"Be concise, practical, and friendly. Focus on actionable advice that can help " +
				"the user improve their financial health. Context about the user: " + string(contextJSON),
		},
		{Role: "user", Content: message},
	}, false)
	if err != nil {
		log.Printf("[ADVISOR] Advice request failed: %v", err)
		return "I'm experiencing technical difficulties. Please try again later."
	}
	if content == "" {
		return "I'm having trouble providing advice right now. Please try again later."
	}
	return content
}

// Insights generates 2-3 insight cards from the user's aggregated activity
func (c *Client) Insights(ctx context.Context, userData any) []Insight {
	dataJSON, _ := json.Marshal(userData)
	content, err := c.complete(ctx, []chatMessage{
		{
			Role: "system",
			Content: "You are a financial analysis AI for the Wallet Master app. " +
				"Based on the user's transaction history, budget allocation, savings goals, and overall financial behavior, " +
				"generate 2-3 actionable insights that can help them improve their financial health. " +
				"Each insight should include a type (spending, saving, or investment), " +
				"an appropriate icon name (from Font Awesome, like 'lightbulb', 'piggy-bank', etc.), " +
				"and a color (like '#3B82F6' for blue, '#10B981' for green, or '#EF4444' for red). " +
				"Format your response as JSON.",
		},
		{Role: "user", Content: string(dataJSON)},
	}, true)
	if err != nil {
		log.Printf("[ADVISOR] Insight generation failed: %v", err)
		return []Insight{
			{Text: "Try to save at least 20% of your monthly income for long-term goals.", Type: "saving", Icon: "piggy-bank", Color: "#10B981"},
			{Text: "Review your subscription services and cancel ones you don't use regularly.", Type: "spending", Icon: "lightbulb", Color: "#3B82F6"},
		}
	}

	var parsed struct {
		Insights []Insight `json:"insights"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || len(parsed.Insights) == 0 {
		return []Insight{
			{Text: "Based on your spending patterns, try to reduce dining out expenses to save more.", Type: "spending", Icon: "utensils", Color: "#3B82F6"},
			{Text: "Consider setting up an emergency fund worth 3-6 months of expenses.", Type: "saving", Icon: "piggy-bank", Color: "#10B981"},
		}
	}
	return parsed.Insights
}

// SpendingAnalysis produces 3 recommendations from recent transactions
func (c *Client) SpendingAnalysis(ctx context.Context, transactionData any) []string {
	dataJSON, _ := json.Marshal(transactionData)
	content, err := c.complete(ctx, []chatMessage{
		{
			Role: "system",
			Content: "You are a financial analysis AI that specializes in identifying spending patterns and providing " +
				"actionable recommendations. Analyze the provided transaction data and generate 3 specific recommendations " +
				"to help the user optimize their spending. Focus on identifying unusual spending patterns, potential savings " +
				"opportunities, and budget optimizations. Format your response as a JSON object with a 'recommendations' array.",
		},
		{Role: "user", Content: string(dataJSON)},
	}, true)
	if err != nil {
		log.Printf("[ADVISOR] Spending analysis failed: %v", err)
		return []string{
			"Analyze your recurring subscriptions and cancel unused ones.",
			"Try a 30-day spending challenge in a high-expense category.",
			"Consider using cashback or rewards credit cards for regular expenses.",
		}
	}

	var parsed struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || len(parsed.Recommendations) == 0 {
		return []string{
			"Consider meal prepping to reduce food delivery expenses.",
			"Your entertainment spending is higher than average. Try free alternatives.",
			"Consolidate subscriptions to save on monthly costs.",
		}
	}
	return parsed.Recommendations
}
