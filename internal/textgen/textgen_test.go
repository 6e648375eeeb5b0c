package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

var testPrompt = Prompt{System: "be brief", User: "write feedback #1/1000"}

func testConfig(baseURL string) config.GeneratorConfig {
	return config.GeneratorConfig{
		BaseURL:    baseURL,
		APIKey:     "secret",
		AccountID:  "acct",
		Timeout:    5 * time.Second,
		RetryCount: 3,
	}
}

func TestCloudflare_ObjectResult(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody cloudflareRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"result":{"response":"  Love the new scenarios!  "},"success":true,"errors":[]}`))
	}))
	defer srv.Close()

	c, err := NewCloudflare(testConfig(srv.URL))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), testPrompt)
	require.NoError(t, err)

	assert.Equal(t, "  Love the new scenarios!  ", resp.Text)
	assert.Equal(t, cloudflareDefaultModel, resp.Model)
	assert.Equal(t, "/accounts/acct/ai/run/@cf/meta/llama-3.1-8b-instruct", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "be brief", gotBody.Messages[0].Content)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
}

func TestCloudflare_StringResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"Too expensive for our volunteer department.","success":true}`))
	}))
	defer srv.Close()

	c, err := NewCloudflare(testConfig(srv.URL))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "Too expensive for our volunteer department.", resp.Text)
}

func TestCloudflare_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null,"success":false,"errors":[{"code":5007,"message":"No such model"}]}`))
	}))
	defer srv.Close()

	c, err := NewCloudflare(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testPrompt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such model")
}

func TestCloudflare_RequiresCredentials(t *testing.T) {
	cfg := testConfig("")
	cfg.AccountID = ""
	_, err := NewCloudflare(cfg)
	assert.Error(t, err)

	cfg = testConfig("")
	cfg.APIKey = ""
	_, err = NewCloudflare(cfg)
	assert.Error(t, err)
}

func TestUnwrapResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"string", `"hello"`, "hello", false},
		{"object", `{"response":"hello"}`, "hello", false},
		{"object without response", `{"text":"hello"}`, "", true},
		{"null", `null`, "", true},
		{"empty", ``, "", true},
		{"number", `42`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unwrapResult(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOllama_Generate(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"llama3.1:latest","message":{"role":"assistant","content":"Needs offline mode."}}`))
	}))
	defer srv.Close()

	o := NewOllama(testConfig(srv.URL))
	resp, err := o.Generate(context.Background(), testPrompt)
	require.NoError(t, err)

	assert.Equal(t, "Needs offline mode.", resp.Text)
	assert.Equal(t, "llama3.1:latest", resp.Model)
	assert.Equal(t, ollamaDefaultModel, got.Model)
	assert.False(t, got.Stream)
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"model":"m","choices":[{"message":{"role":"assistant","content":"Chief here. Solid app."}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "Chief here. Solid app.", resp.Text)
	assert.Equal(t, "m", resp.Model)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testPrompt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestJSONClient_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer srv.Close()

	o := NewOllama(testConfig(srv.URL))
	o.client.initialBackoff = time.Millisecond

	resp, err := o.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestJSONClient_ExceedsRetryLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOllama(testConfig(srv.URL))
	o.client.initialBackoff = time.Millisecond

	_, err := o.Generate(context.Background(), testPrompt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestJSONClient_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	o := NewOllama(testConfig(srv.URL))
	_, err := o.Generate(context.Background(), testPrompt)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "boom", statusErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJSONClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("invalid json"))
	}))
	defer srv.Close()

	o := NewOllama(testConfig(srv.URL))
	_, err := o.Generate(context.Background(), testPrompt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestNew_Factory(t *testing.T) {
	cfg := testConfig("http://localhost:1")

	for _, provider := range []string{"cloudflare", "ollama", "openai"} {
		cfg.Provider = provider
		gen, err := New(context.Background(), cfg)
		require.NoError(t, err, provider)
		assert.NotNil(t, gen)
	}

	cfg.Provider = "markov"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported generator provider"))
}

func TestGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), config.GeneratorConfig{})
	assert.Error(t, err)
}

func TestGemini_Live(t *testing.T) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		t.Skip("GEMINI_API_KEY not set")
	}

	g, err := NewGemini(context.Background(), config.GeneratorConfig{APIKey: key})
	require.NoError(t, err)

	resp, err := g.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(resp.Text))
}

func TestFunc(t *testing.T) {
	gen := Func(func(ctx context.Context, p Prompt) (Response, error) {
		return Response{Text: p.User}, nil
	})
	resp, err := gen.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, testPrompt.User, resp.Text)
}
