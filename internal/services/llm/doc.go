// Package llm is the chat completion client behind the AI functions.
//
// It talks to any OpenAI-compatible endpoint (OpenRouter by default) through
// openai-go. The SDK retries 408, 429 and 5xx responses with backoff and
// honours Retry-After; the client adds its own retry when a completion comes
// back empty. A refusal ends the call immediately.
//
// CompleteJSON and CompleteText serve the pipeline prompts, HealthCheck backs
// the preflight check, and DecodeLLMJSON tolerates fenced or prefixed JSON.
package llm
