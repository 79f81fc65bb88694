package embedder

import (
	"log/slog"
	"os"
	"testing"
)

func validateLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()

	chatModels := []string{"gpt-4o", "GPT-35-turbo", "llama3.1", "mistral-large", "claude-sonnet"}
	for _, m := range chatModels {
		if !looksLikeChatModel(m) {
			t.Errorf("%q should look like a chat model", m)
		}
	}

	embeddingModels := []string{"text-embedding-3-large", "nomic-embed-text", "text-embedding-ada-002"}
	for _, m := range embeddingModels {
		if looksLikeChatModel(m) {
			t.Errorf("%q should not look like a chat model", m)
		}
	}
}

func Test_ValidatePreflight_Ollama(t *testing.T) {
	clearEmbeddingEnv(t)

	if err := ValidatePreflight(validateLogger()); err != nil {
		t.Errorf("ollama needs no credentials: %v", err)
	}
}

func Test_ValidatePreflight_OpenAIMissingKey(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "openai")

	if err := ValidatePreflight(validateLogger()); err == nil {
		t.Error("openai without a key should fail preflight")
	}

	t.Setenv("EMBEDDING_API_KEY", "sk-test")
	if err := ValidatePreflight(validateLogger()); err != nil {
		t.Errorf("openai with EMBEDDING_API_KEY should pass: %v", err)
	}
}

func Test_ValidatePreflight_AzureMissingEndpoint(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "azure-key")

	if err := ValidatePreflight(validateLogger()); err == nil {
		t.Error("azure without an endpoint should fail preflight")
	}

	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	if err := ValidatePreflight(validateLogger()); err != nil {
		t.Errorf("azure with full credentials should pass: %v", err)
	}
}

func Test_ValidatePreflight_UnknownBackend(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "bedrock")

	if err := ValidatePreflight(validateLogger()); err == nil {
		t.Error("unknown backend should fail preflight")
	}
}
