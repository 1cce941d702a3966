package provider

import (
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	azure := ProviderAzureOpenAI{APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o"}

	tests := map[string]struct {
		cfg     Config
		wantErr string
	}{
		"ollama ok":  {cfg: Config{Backend: BackendOllama, Ollama: ProviderOllama{Model: "llama3"}}},
		"openai ok":  {cfg: Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}}},
		"azure ok":   {cfg: Config{Backend: BackendAzure, AzureOpenAI: azure}},
		"bedrock ok": {cfg: Config{Backend: BackendBedrock, Bedrock: ProviderBedrock{AWSRegion: "us-east-1", ModelID: "anthropic.claude-3"}}},
		"gemini ok":  {cfg: Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"}}},

		"ollama without model": {
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "provider: ollama backend requires OLLAMA_MODEL",
		},
		"openai without key": {
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "provider: openai backend requires OPENAI_API_KEY",
		},
		"azure reports every missing setting": {
			cfg:     Config{Backend: BackendAzure},
			wantErr: "provider: azure backend requires AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT",
		},
		"azure without deployment": {
			cfg:     Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Endpoint: azure.Endpoint}},
			wantErr: "provider: azure backend requires AZURE_OPENAI_DEPLOYMENT",
		},
		"bedrock without region": {
			cfg:     Config{Backend: BackendBedrock, Bedrock: ProviderBedrock{ModelID: "anthropic.claude-3"}},
			wantErr: "provider: bedrock backend requires AWS_REGION",
		},
		"gemini without anything": {
			cfg:     Config{Backend: BackendGemini},
			wantErr: "provider: gemini backend requires GOOGLE_API_KEY, GEMINI_MODEL",
		},
		"unknown backend": {
			cfg:     Config{Backend: "llamafile"},
			wantErr: `provider: unknown backend "llamafile" (valid values: ollama, openai, azure, bedrock, gemini)`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			switch {
			case tc.wantErr == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tc.wantErr != "" && err == nil:
				t.Errorf("expected %q, got nil", tc.wantErr)
			case tc.wantErr != "" && err.Error() != tc.wantErr:
				t.Errorf("error = %q, want %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	reasoning := []string{"o1", "o1-mini", "o3-pro", "o4-mini", "O3-Mini", "codex-mini"}
	chat := []string{"gpt-4o", "gpt-4.1", "gpt-35-turbo", "gpt-5.2-codex", "my-o1-copy", ""}

	for _, d := range reasoning {
		if !isAzureReasoningModel(d) {
			t.Errorf("%q: expected a reasoning deployment", d)
		}
	}
	for _, d := range chat {
		if isAzureReasoningModel(d) {
			t.Errorf("%q: expected a chat deployment", d)
		}
	}
}
