// Package openaiadapter converts buffered backend responses and backend
// errors into the OpenAI chat-completions shapes clients expect.
//
// Streaming responses are handled by package translate. This package covers
// the rest: a non-streaming response body is collapsed into one
// chat.completion object, and a non-2xx body is turned into the
// {"error": {...}} envelope OpenAI SDKs recognise.
//
// # Adapters
//
//   - anthropicclaude: Anthropic Messages → chat.completion
//   - openairesponses: OpenAI Responses → chat.completion
//
// Pass-through backends already answer in chat-completions form and only
// need ParseError.
package openaiadapter
