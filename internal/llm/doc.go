// Package llm defines the text-completion contract used by the analysis
// swarm. Backends live in subpackages: cli spawns a local process, anthropic
// and openai call hosted HTTP APIs. All of them honour context cancellation so
// a timed-out analyst call releases its process or connection.
package llm
