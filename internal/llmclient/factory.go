// File: internal/llmclient/factory.go
package llmclient

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/config"
)

// NewFromConfig builds an LLMClient from configuration. A missing API key is
// not an error: it returns (nil, nil) so callers fall back to the
// deterministic offline generator instead of aborting the session.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.APIKey == "" {
		logger.Named("llm_client").Info("No LLM API key configured; running with the deterministic offline generator.")
		return nil, nil
	}
	return NewClient(cfg, logger)
}
