// Package shaper turns client chat-completion requests into upstream requests.
//
// Each backend kind gets its own body shape:
//
//   - anthropic: an Anthropic Messages request. System and developer messages
//     are hoisted into the system field, tool calls become tool_use blocks and
//     consecutive tool messages are merged into one user turn of tool_result
//     blocks, as the Messages API requires strict role alternation.
//   - openai: an OpenAI Responses request with typed input items and the
//     system message moved to instructions.
//   - common: the client body as sent, with only the configured system prompt
//     injected.
//
// Headers builds the outbound header set for every kind.
package shaper
