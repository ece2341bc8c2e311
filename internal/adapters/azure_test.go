package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
)

// TestAzureBuildRequest_ComposesDeploymentURLAndStripsModel covers spec
// scenario 6: the outbound URL is shaped as
// .../openai/deployments/<deployment>/chat/completions?api-version=... and
// the top-level "model" field is removed from the relayed body.
func TestAzureBuildRequest_ComposesDeploymentURLAndStripsModel(t *testing.T) {
	upstream := &config.Upstream{
		Name:       "azure",
		Provider:   config.ProviderAzureOpenAI,
		BaseURL:    "https://my-resource.openai.azure.com",
		Deployment: "gpt4o",
		APIVersion: "2024-10-21",
		APIKey:     "azure-key",
	}
	req := &chatapi.Request{
		Model:    "gpt-4o",
		Messages: []chatapi.Message{{Role: "user", Content: "hi"}},
	}
	rawBody, _ := json.Marshal(req)

	httpReq, err := NewAzureAdapter().BuildRequest(context.Background(), req, rawBody, upstream)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	wantPrefix := "https://my-resource.openai.azure.com/openai/deployments/gpt4o/chat/completions?api-version="
	if !strings.HasPrefix(httpReq.URL.String(), wantPrefix) {
		t.Fatalf("expected URL to start with %q, got %q", wantPrefix, httpReq.URL.String())
	}
	if got := httpReq.URL.Query().Get("api-version"); got != "2024-10-21" {
		t.Fatalf("expected api-version 2024-10-21, got %q", got)
	}

	sent, _ := io.ReadAll(httpReq.Body)
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(sent, &generic); err != nil {
		t.Fatalf("unmarshal outbound body: %v", err)
	}
	if _, present := generic["model"]; present {
		t.Fatalf("expected model field stripped from outbound body, got %s", sent)
	}
}

func TestAzureURL_EscapesDeploymentName(t *testing.T) {
	got := azureURL("https://res.openai.azure.com/", "my deployment", "2024-10-21")
	want := "https://res.openai.azure.com/openai/deployments/" + url.PathEscape("my deployment") + "/chat/completions?api-version=2024-10-21"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAzureURL_PreservesExistingDeploymentPath(t *testing.T) {
	got := azureURL("https://res.openai.azure.com/openai/deployments/gpt4o", "gpt4o", "2024-10-21")
	want := "https://res.openai.azure.com/openai/deployments/gpt4o/chat/completions?api-version=2024-10-21"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
