// Package config loads the Danni runtime configuration. A JSON file supplies
// the base values, environment variables override them and applyDefaults fills
// whatever is still empty. Secrets such as the wallet key and LLM API keys are
// only read from the environment.
package config
