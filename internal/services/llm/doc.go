// Package llm provides a JSON-mode chat client for OpenAI-compatible
// providers. The default endpoint is Deepseek (deepseek-chat).
//
// The script generator uses it twice per video: once for the story script
// and once per clip for the image prompt pair. Requests go through the
// official openai-go SDK with its own retries disabled; this package applies
// its own retry policy so backoff decisions stay visible in logs and tests.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts with sampling parameters,
// receive the raw JSON content.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: tolerant decoding of model output (code fences, stray
// whitespace inside string literals).
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty content, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Retry-After headers are honoured. Context cancellation aborts
// retries immediately. An optional requests-per-minute limiter paces calls
// when many clip prompts are generated concurrently.
package llm
