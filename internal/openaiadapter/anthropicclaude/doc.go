// Package anthropicclaude adapts buffered Anthropic Messages responses to
// OpenAI chat completions.
//
// Text blocks are concatenated into the message content, tool_use blocks
// become tool calls with their input as the JSON arguments, and thinking
// blocks are surfaced as reasoning_content. Blocks without an OpenAI
// counterpart (server tool use, redacted thinking) are dropped.
//
// Errors are decoded as anthropic.ErrorResponse and their type translated
// to the OpenAI taxonomy.
package anthropicclaude
