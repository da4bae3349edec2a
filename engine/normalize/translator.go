package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/headlinehq/newsflow/pkg/fn"
)

const translateBaseURL = "https://translation.googleapis.com/language/translate/v2"

// translateRetry paces retries of transient translation API failures.
var translateRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
}

// GoogleTranslate is a client for the Cloud Translation v2 REST API,
// authenticated by API key.
type GoogleTranslate struct {
	apiKey  string
	baseURL string
	client  *http.Client
	retry   fn.RetryOpts
}

// NewGoogleTranslate creates a translation client.
func NewGoogleTranslate(apiKey string) *GoogleTranslate {
	return &GoogleTranslate{
		apiKey:  apiKey,
		baseURL: translateBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		retry:   translateRetry,
	}
}

type detectResponse struct {
	Data struct {
		Detections [][]struct {
			Language   string  `json:"language"`
			Confidence float64 `json:"confidence"`
		} `json:"detections"`
	} `json:"data"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Detect implements Translator.
func (g *GoogleTranslate) Detect(ctx context.Context, text string) (string, float64, error) {
	var out detectResponse
	if err := g.post(ctx, g.baseURL+"/detect", map[string]any{"q": text}, &out); err != nil {
		return "", 0, err
	}
	if len(out.Data.Detections) == 0 || len(out.Data.Detections[0]) == 0 {
		return "", 0, fmt.Errorf("translate: empty detection response")
	}
	d := out.Data.Detections[0][0]
	return d.Language, d.Confidence, nil
}

// Translate implements Translator.
func (g *GoogleTranslate) Translate(ctx context.Context, text, target string) (string, error) {
	var out translateResponse
	body := map[string]any{"q": text, "target": target, "format": "text"}
	if err := g.post(ctx, g.baseURL, body, &out); err != nil {
		return "", err
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty translation response")
	}
	return out.Data.Translations[0].TranslatedText, nil
}

// post sends one API call, retrying transient failures with backoff.
func (g *GoogleTranslate) post(ctx context.Context, url string, body map[string]any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	res := fn.Retry(ctx, g.retry, func(ctx context.Context) fn.Result[[]byte] {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"?key="+g.apiKey, bytes.NewReader(data))
		if err != nil {
			return fn.Err[[]byte](err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return fn.Errf[[]byte]("translate: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fn.Errf[[]byte]("translate: unexpected status %d", resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fn.Errf[[]byte]("translate: read: %w", err)
		}
		return fn.Ok(raw)
	})

	raw, err := res.Unwrap()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("translate: decode: %w", err)
	}
	return nil
}
