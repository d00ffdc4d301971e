// Package llm provides an OpenRouter chat client that writes image prompts.
//
// The pipeline's prompt stage calls Client.Synthesize when a job carries a
// theme but no explicit prompt. The model is asked for JSON of the form
// {"prompt": "..."}. Replies wrapped in code fences or surrounding prose are
// reduced to their JSON object before decoding.
//
// # Retry Behaviour
//
// Failures that retry.Classify marks retryable (rate limits, timeouts,
// 5xx responses, empty completions) are retried with a retry.Policy
// backoff: base 1s, doubling, capped at 10s, 3 attempts by default. A Retry-After header overrides the computed delay.
// Context cancellation aborts retries immediately. Errors returned to the
// caller carry the services markers so the engine can classify them.
//
// # Fallback
//
// When the LLM is disabled the daemon wires pipeline.TemplatePrompts
// instead, so prompt synthesis never depends on network availability.
package llm
