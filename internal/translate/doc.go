// Package translate turns upstream streaming responses into the OpenAI
// chat-completion chunk stream expected by clients.
//
// Each backend vocabulary has its own state machine:
//
//   - MessageStream consumes Anthropic Messages events (message_start,
//     content_block_delta, message_delta, message_stop, ...).
//   - ResponseStream consumes OpenAI Responses events (response.created,
//     response.output_text.delta, response.done, ...).
//   - Passthrough forwards chat-completion streams verbatim.
//
// Translators are pull-based: Events and Translate return iterators that only
// read from the upstream body while the caller keeps consuming, so a slow client
// applies backpressure all the way to the upstream connection. A translator is
// created per request and must not be shared.
//
// Every successfully finished stream ends with exactly one End event, encoded
// as "data: [DONE]". A failed read ends the stream with a *StreamError instead.
package translate
