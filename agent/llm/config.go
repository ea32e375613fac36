package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
	llmproviderx "github.com/tanpawarit/Vault-Concierge/pkg/llmprovider"
)

// Config is loaded with the LLM prefix. An empty API key is valid and puts
// the client in no-op mode.
type Config struct {
	Provider       string        `envconfig:"PROVIDER" default:"openai"`
	APIKey         string        `envconfig:"API_KEY" split_words:"true"`
	BaseURL        string        `envconfig:"BASE_URL" split_words:"true"`
	Model          string        `envconfig:"MODEL"`
	EmbeddingModel string        `envconfig:"EMBEDDING_MODEL" split_words:"true"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"30s"`
	SiteURL        string        `envconfig:"SITE_URL" split_words:"true" default:"https://thevault.local"`
	SiteName       string        `envconfig:"SITE_NAME" split_words:"true" default:"The Vault"`

	// IntentConfidenceThreshold is the minimum model confidence for an
	// affirmative or negative classification to count as a decision.
	IntentConfidenceThreshold float64 `envconfig:"INTENT_CONFIDENCE_THRESHOLD" split_words:"true" default:"0.8"`
}

func (c Config) Validate() error {
	if err := c.ProviderConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	if c.IntentConfidenceThreshold < 0 || c.IntentConfidenceThreshold > 1 {
		return fmt.Errorf("%w: intent confidence threshold must be within [0,1], got %v",
			contractx.ErrValidation, c.IntentConfidenceThreshold)
	}
	return nil
}

func (c Config) ProviderConfig() llmproviderx.Config {
	return llmproviderx.Config{
		Provider:       strings.TrimSpace(c.Provider),
		BaseURL:        strings.TrimSpace(c.BaseURL),
		APIKey:         strings.TrimSpace(c.APIKey),
		Model:          strings.TrimSpace(c.Model),
		EmbeddingModel: strings.TrimSpace(c.EmbeddingModel),
		Timeout:        c.Timeout,
		SiteURL:        strings.TrimSpace(c.SiteURL),
		SiteName:       strings.TrimSpace(c.SiteName),
	}
}
