package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// upstreamsFile is the on-disk overlay shape: each tier is either absent
// (inherit environment defaults), an explicit descriptor, or JSON null
// (suppress the tier).
type upstreamsFile struct {
	Cheap    *Upstream `json:"cheap"`
	Medium   *Upstream `json:"medium"`
	Frontier *Upstream `json:"frontier"`

	// rawHasKey tracks which keys were present in the source document, so an
	// explicit `"cheap": null` can be distinguished from an absent key.
	rawHasKey map[string]bool
}

func parseUpstreamsFile(data []byte) (*upstreamsFile, error) {
	var uf upstreamsFile
	if err := json.Unmarshal(data, &uf); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	uf.rawHasKey = make(map[string]bool, len(raw))
	for k := range raw {
		uf.rawHasKey[k] = true
	}
	return &uf, nil
}

// LoadUpstreamsOverlay reads UPSTREAMS_FILE (or the inline UPSTREAMS_JSON)
// and merges it onto the environment-derived Config. Missing fields on an
// overlay descriptor inherit the environment default for that tier; an
// explicit JSON null suppresses the tier entirely.
func LoadUpstreamsOverlay(cfg *Config) error {
	path := os.Getenv("UPSTREAMS_FILE")
	inline := os.Getenv("UPSTREAMS_JSON")

	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("read upstreams file %s: %w", path, err)
		}
		data = b
	default:
		return nil
	}

	uf, err := parseUpstreamsFile(data)
	if err != nil {
		return fmt.Errorf("parse upstreams overlay: %w", err)
	}

	applyOverlay(cfg, TierCheap, "cheap", uf.Cheap, uf.rawHasKey["cheap"])
	applyOverlay(cfg, TierMedium, "medium", uf.Medium, uf.rawHasKey["medium"])
	applyOverlay(cfg, TierFrontier, "frontier", uf.Frontier, uf.rawHasKey["frontier"])

	return nil
}

func applyOverlay(cfg *Config, tier Tier, key string, overlay *Upstream, present bool) {
	if !present {
		return // key absent: keep the environment default untouched
	}
	if overlay == nil {
		delete(cfg.Upstreams, tier) // explicit null: suppress the tier
		return
	}

	base := cfg.Upstreams[tier]
	if base == nil {
		base = &Upstream{Name: key}
	}
	merged := *base
	if overlay.Name != "" {
		merged.Name = overlay.Name
	}
	if overlay.Provider != "" {
		merged.Provider = overlay.Provider
	}
	if overlay.BaseURL != "" {
		merged.BaseURL = overlay.BaseURL
	}
	if overlay.APIKey != "" {
		merged.APIKey = overlay.APIKey
	}
	if overlay.Model != "" {
		merged.Model = overlay.Model
	}
	if overlay.Deployment != "" {
		merged.Deployment = overlay.Deployment
	}
	if overlay.APIVersion != "" {
		merged.APIVersion = overlay.APIVersion
	}
	if overlay.Headers != nil {
		merged.Headers = overlay.Headers
	}
	if overlay.TimeoutMs != 0 {
		merged.TimeoutMs = overlay.TimeoutMs
	}
	cfg.Upstreams[tier] = &merged
}

// NormalizeBaseURL strips trailing slashes so two configured base URLs that
// differ only by trailing-slash punctuation compare equal.
func NormalizeBaseURL(url string) string {
	return strings.TrimRight(url, "/")
}

// Validate enforces the required-field invariants and applies the
// cheap/classifier co-location rule. It must run after the upstreams
// overlay (if any) has been merged in.
func Validate(cfg *Config) error {
	frontier := cfg.Upstreams[TierFrontier]
	if frontier == nil || frontier.BaseURL == "" {
		return fmt.Errorf("frontier.baseUrl is required")
	}

	if cfg.Classifier.Enabled {
		cheap := cfg.Upstreams[TierCheap]
		medium := cfg.Upstreams[TierMedium]
		if cheap == nil || cheap.BaseURL == "" {
			return fmt.Errorf("cheap.baseUrl is required when the classifier is enabled")
		}
		if medium == nil || medium.BaseURL == "" {
			return fmt.Errorf("medium.baseUrl is required when the classifier is enabled")
		}

		// Co-location rule: if cheap and the classifier share a base URL,
		// force cheap's model to the classifier's model to avoid thrashing
		// a single local engine between weights.
		if NormalizeBaseURL(cheap.BaseURL) == NormalizeBaseURL(cfg.Classifier.BaseURL) {
			cheap.Model = cfg.Classifier.Model
		}
	}

	return nil
}
