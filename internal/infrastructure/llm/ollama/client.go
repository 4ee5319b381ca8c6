package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

// Client talks to an Ollama server and exposes the summarization capability.
type Client struct {
	baseURL    string
	model      string
	maxInput   int
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	// MaxInputChars truncates the text handed to the model; summaries do not
	// need the full tail of very long documents.
	MaxInputChars      int
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	maxInput := options.MaxInputChars
	if maxInput <= 0 {
		maxInput = 24000
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxInput:   maxInput,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// IsConfigured reports whether the capability can be invoked at all; it does
// not probe the server.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.model != ""
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if !c.IsConfigured() {
		return "", domain.WrapError(domain.ErrExternalService, "summarize",
			fmt.Errorf("ollama base url or model not configured"))
	}

	prompt := buildSummaryPrompt(truncate(text, c.maxInput))
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, "summarize")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.summarize", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(response.Response)
	if summary == "" {
		return "", domain.WrapError(domain.ErrExternalService, "summarize",
			fmt.Errorf("model returned an empty summary"))
	}
	return summary, nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexAny(cut, " \t\n"); i > limit/2 {
		cut = cut[:i]
	}
	return cut
}
