package anthropicclaude

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/droid2api/droidproxy/internal/openaiadapter"
)

// toCompletionUsage converts Anthropic usage to OpenAI usage. Prompt tokens
// include cache reads and cache writes, which Anthropic reports apart from
// input_tokens; cache reads are also reported as cached_tokens.
func toCompletionUsage(usage anthropic.Usage) *openaiadapter.Usage {
	prompt := usage.InputTokens + usage.CacheReadInputTokens + usage.CacheCreationInputTokens

	u := &openaiadapter.Usage{
		PromptTokens:     prompt,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      prompt + usage.OutputTokens,
	}
	if usage.CacheReadInputTokens > 0 {
		u.PromptTokensDetails = &openaiadapter.PromptTokensDetails{CachedTokens: usage.CacheReadInputTokens}
	}

	// Thinking tokens are part of output_tokens; Anthropic reports no breakdown
	// for completion_tokens_details.reasoning_tokens.
	return u
}
