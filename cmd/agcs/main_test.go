package main

import (
	"testing"

	"github.com/securingskies/agcs/internal/config"
	"github.com/securingskies/agcs/internal/sitrep"
)

func TestBuildLLMClientSelectsLocalClient(t *testing.T) {
	cfg := config.Config{LLMProvider: "local", LLMEndpoint: "http://localhost:11434", LLMModel: "llama3"}
	client, err := buildLLMClient(cfg)
	if err != nil {
		t.Fatalf("buildLLMClient() error: %v", err)
	}
	if _, ok := client.(*sitrep.LocalClient); !ok {
		t.Errorf("expected *sitrep.LocalClient, got %T", client)
	}
}

func TestBuildLLMClientSelectsCloudClient(t *testing.T) {
	cfg := config.Config{LLMProvider: "cloud", LLMEndpoint: "https://api.example.com", LLMModel: "gpt", APIKey: "sk-test"}
	client, err := buildLLMClient(cfg)
	if err != nil {
		t.Fatalf("buildLLMClient() error: %v", err)
	}
	if _, ok := client.(*sitrep.CloudClient); !ok {
		t.Errorf("expected *sitrep.CloudClient, got %T", client)
	}
}

func TestBuildLLMClientRejectsUnknownProvider(t *testing.T) {
	cfg := config.Config{LLMProvider: "carrier-pigeon"}
	if _, err := buildLLMClient(cfg); err == nil {
		t.Error("expected error for unknown llm_provider")
	}
}
