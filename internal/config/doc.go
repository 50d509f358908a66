// Package config loads, normalizes, and validates storyreel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as DEEPSEEK_API_KEY, ELEVENLABS_API_KEY,
// S3_BUCKET, and RUNPOD_API_KEY. The Config type centralizes every knob the
// orchestrator, render worker, and CLI need.
//
// Load applies structural validation only. Call RequireOrchestrator or
// RequireWorker once the process knows which role it plays so each side only
// demands the credentials it uses.
package config
