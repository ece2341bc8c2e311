package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
	"github.com/pathemata-mathemata/openrouter/internal/usage"
)

// AzureAdapter targets Azure OpenAI's deployment-routed chat completions
// endpoint. The wire body is already OpenAI-shaped, so buffered and
// streaming relay follow the same byte-for-byte path as OpenAIAdapter;
// only URL composition, headers, and the stripped model field differ.
type AzureAdapter struct {
	passthrough *OpenAIAdapter
}

func NewAzureAdapter() *AzureAdapter {
	return &AzureAdapter{passthrough: NewOpenAIAdapter()}
}

func (a *AzureAdapter) Name() string { return "azure_openai" }

func (a *AzureAdapter) Kind() Kind { return KindPassthrough }

func (a *AzureAdapter) BuildRequest(ctx context.Context, req *chatapi.Request, rawBody []byte, upstream *config.Upstream) (*http.Request, error) {
	body, err := stripModel(rawBody)
	if err != nil {
		return nil, err
	}

	apiVersion := upstream.APIVersion
	if apiVersion == "" {
		apiVersion = os.Getenv("AZURE_API_VERSION")
	}
	if apiVersion == "" {
		apiVersion = "2024-10-21"
	}

	reqURL := azureURL(upstream.BaseURL, upstream.Deployment, apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(upstream.APIKey, "Bearer ") {
		httpReq.Header.Set("authorization", upstream.APIKey)
	} else {
		httpReq.Header.Set("api-key", upstream.APIKey)
	}
	setExtraHeaders(httpReq, upstream.Headers)
	return httpReq, nil
}

// azureURL composes <baseUrl>/openai/deployments/<deployment>/chat/completions
// unless baseUrl already contains that path, in which case it is preserved
// (appending /chat/completions if missing) and api-version is forced.
func azureURL(baseURL, deployment, apiVersion string) string {
	trimmed := strings.TrimRight(baseURL, "/")
	var path string
	if strings.Contains(trimmed, "/openai/deployments/") {
		path = trimmed
		if !strings.HasSuffix(path, "/chat/completions") {
			path += "/chat/completions"
		}
	} else {
		path = trimmed + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions"
	}
	return path + "?api-version=" + url.QueryEscape(apiVersion)
}

func stripModel(rawBody []byte) ([]byte, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &generic); err != nil {
		return rawBody, nil
	}
	delete(generic, "model")
	return json.Marshal(generic)
}

func (a *AzureAdapter) Buffered(body []byte) ([]byte, usage.RawUsage, bool, error) {
	return a.passthrough.Buffered(body)
}

func (a *AzureAdapter) StreamTransform() StreamTransformer {
	return a.passthrough.StreamTransform()
}
