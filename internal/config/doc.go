// Package config resolves server configuration from three layers, lowest
// precedence first:
//
//  1. DefaultConfig() — sane values for local development.
//  2. An optional YAML file (--config flag).
//  3. Environment variables, which always win.
//
// # Environment variables
//
//   - DATA_DIR, HOST, PORT, APP_ENV, LOG_LEVEL, LOG_PRETTY
//   - JOB_POLL_INTERVAL_SECONDS, SESSION_TTL_DAYS
//   - OAUTH_<PROVIDER>_CLIENT_ID / _CLIENT_SECRET / _REDIRECT_URL for each
//     of google, github, slack, notion
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY for the directly-keyed LLM providers
package config
