package meter_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	meter "github.com/ongoingai/meter"
)

func newOpenAIClient(baseURL string) *openai.Client {
	cfg := openai.DefaultConfig("sk-test-key")
	cfg.BaseURL = baseURL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAISDKCallIsMetered(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-test",
			"object":"chat.completion",
			"created":1700000000,
			"model":"gpt-4o",
			"choices":[
				{
					"index":0,
					"message":{"role":"assistant","content":"hello"},
					"finish_reason":"stop"
				}
			],
			"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}
		}`))
	}))
	defer upstream.Close()

	monitor := meter.Wrap(newOpenAIClient(upstream.URL))
	if monitor.Provider() != "openai" {
		t.Fatalf("detected provider = %q", monitor.Provider())
	}

	result, err := meter.WithCost(context.Background(), func(ctx context.Context) error {
		payload, err := monitor.Invoke(ctx, "CreateChatCompletion", openai.ChatCompletionRequest{
			Model: "gpt-4o",
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: "say hello"},
			},
		})
		if err != nil {
			return err
		}
		resp, ok := payload.(openai.ChatCompletionResponse)
		if !ok {
			t.Fatalf("payload = %T", payload)
		}
		if got := resp.Choices[0].Message.Content; got != "hello" {
			t.Fatalf("assistant message = %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("metered chat completion: %v", err)
	}

	if result.Usage == nil {
		t.Fatal("no usage extracted from SDK response")
	}
	if result.Usage.Model != "gpt-4o" {
		t.Fatalf("usage model = %q", result.Usage.Model)
	}
	if result.Usage.InputUnits == nil || *result.Usage.InputUnits != 5 {
		t.Fatalf("input units = %v", result.Usage.InputUnits)
	}
	if result.Usage.OutputUnits == nil || *result.Usage.OutputUnits != 4 {
		t.Fatalf("output units = %v", result.Usage.OutputUnits)
	}
	if result.Cost <= 0 {
		t.Fatalf("cost = %v, want > 0", result.Cost)
	}
}

func TestOpenAISDKStreamIsMetered(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"id":"chatcmpl-test","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"hel"}}]}`+"\n\n")
		_, _ = io.WriteString(w, `data: {"id":"chatcmpl-test","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`+"\n\n")
		_, _ = io.WriteString(w, `data: {"id":"chatcmpl-test","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`+"\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	var gotResp *meter.ResponseInfo
	monitor := meter.Wrap(newOpenAIClient(upstream.URL),
		meter.WithAfterResponse(func(_ context.Context, resp *meter.ResponseInfo) {
			gotResp = resp
		}),
	)

	payload, err := monitor.Invoke(context.Background(), "CreateChatCompletionStream", openai.ChatCompletionRequest{
		Model:  "gpt-4o",
		Stream: true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "say hello"},
		},
	})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	stream, ok := payload.(*meter.Stream)
	if !ok {
		t.Fatalf("payload = %T, want *meter.Stream", payload)
	}
	defer stream.Close()

	var content string
	var chunks int
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		chunks++
		resp, ok := chunk.(openai.ChatCompletionStreamResponse)
		if !ok {
			t.Fatalf("chunk = %T", chunk)
		}
		for _, choice := range resp.Choices {
			content += choice.Delta.Content
		}
	}

	if chunks != 3 {
		t.Fatalf("chunks = %d, want 3", chunks)
	}
	if content != "hello" {
		t.Fatalf("assembled content = %q", content)
	}
	if gotResp == nil || gotResp.Usage == nil {
		t.Fatalf("stream finalize resp = %+v", gotResp)
	}
	if gotResp.Usage.OutputUnits == nil || *gotResp.Usage.OutputUnits != 2 {
		t.Fatalf("stream output units = %v", gotResp.Usage.OutputUnits)
	}
	if gotResp.Cost <= 0 {
		t.Fatalf("stream cost = %v", gotResp.Cost)
	}
}
