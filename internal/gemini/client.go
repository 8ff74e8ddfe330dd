package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Client wraps the GenAI SDK for the three narrow calls this engine needs:
// yes/no similarity judgments, category selection, and receipt OCR.
// The API key comes from the environment (GEMINI_API_KEY), read by the SDK.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient creates a Gemini client for the given model name.
func NewClient(ctx context.Context, model string) (*Client, error) {
	if model == "" {
		model = DefaultModelName
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewClient: create genai client: %w", err)
	}

	return &Client{genai: c, model: model}, nil
}

// SimilarityCheck asks the model whether two store names / descriptions
// refer to the same transaction. The prompt requests a bare yes/no answer.
func (c *Client) SimilarityCheck(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" {
		return false, nil
	}

	prompt := "以下の2つの店名・内容が同一取引を指しているか yes/no のみで答えてください。\n\n" +
		"A: " + a + "\n" +
		"B: " + b

	text, err := c.generateText(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("SimilarityCheck: %w", err)
	}
	return strings.Contains(strings.ToLower(strings.TrimSpace(text)), "yes"), nil
}

// pickCategoryResponse is the JSON shape requested from the model.
type pickCategoryResponse struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// PickCategory asks the model to pick one tax category from allowed for a
// purchase at storeName. The returned category is NOT validated against
// allowed here; the categorizer decides whether to accept it.
func (c *Client) PickCategory(ctx context.Context, storeName, itemsSummary string, allowed []string) (string, *string, error) {
	if itemsSummary == "" {
		itemsSummary = "（品目不明）"
	}
	itemsSummary = truncateRunes(itemsSummary, 200)

	prompt := fmt.Sprintf(
		"フリーランスの青色申告において、店名「%s」での購入品「%s」はどの勘定科目に分類すべきですか？\n"+
			"選択肢: %s\n"+
			`JSON形式のみで回答してください: {"category": "...", "subcategory": "...またはnull"}`,
		storeName, itemsSummary, strings.Join(allowed, "、"),
	)

	text, err := c.generateText(ctx, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("PickCategory: %w", err)
	}

	var parsed pickCategoryResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &parsed); err != nil {
		return "", nil, fmt.Errorf("PickCategory: unmarshal JSON: %w\nraw response: %s", err, text)
	}

	category := strings.TrimSpace(parsed.Category)
	if category == "" {
		return "", nil, fmt.Errorf("PickCategory: empty category in model response")
	}

	var subcategory *string
	if sub := strings.TrimSpace(parsed.Subcategory); sub != "" && !strings.EqualFold(sub, "null") {
		subcategory = &sub
	}
	return category, subcategory, nil
}

// ScanReceipt performs OCR over a receipt image and returns the raw parsed
// JSON object. Field coercion and fallbacks are the receipt package's job.
func (c *Client) ScanReceipt(ctx context.Context, imageData []byte, mimeType string) (map[string]interface{}, error) {
	prompt := "このレシート画像から以下の情報をJSON形式で抽出してください：\n" +
		"{\n" +
		"  \"date\": \"YYYY-MM-DD（購入日）\",\n" +
		"  \"store_name\": \"店名\",\n" +
		"  \"items\": [{\"name\": \"品名\", \"price\": 単価, \"quantity\": 数量}],\n" +
		"  \"subtotal\": 小計,\n" +
		"  \"tax\": 消費税額,\n" +
		"  \"total\": 合計金額,\n" +
		"  \"payment_method\": \"支払方法（記載があれば cash/credit_card/electronic、なければnull）\"\n" +
		"}\n" +
		"読み取れない項目はnullにしてください。"

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     imageData,
					},
				},
			},
		},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("ScanReceipt: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("ScanReceipt: empty response from model")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &parsed); err != nil {
		return nil, fmt.Errorf("ScanReceipt: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	return parsed, nil
}

// truncateRunes caps s at n characters without splitting a multi-byte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
