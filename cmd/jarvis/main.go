// Jarvis is a voice-driven assistant that operates an Android device over
// adb.
//
// Configuration is read from built-in defaults, an optional YAML file
// (--config) and JARVIS_ environment variables, e.g.:
//
//	JARVIS_LLM__API_KEY        - key for the OpenAI-compatible model backend
//	JARVIS_LLM__BASE_URL       - backend URL (default: Groq)
//	JARVIS_SEARCH__SERPAPI_KEY - enables SerpApi web search
//	JARVIS_DEVICE__SERIAL      - adb device serial when several are attached
//	JARVIS_SERVER__TOKEN       - bearer token required by the HTTP API
//
// Commands:
//
//	jarvis serve               - HTTP API, optional Matrix channel and notification scanner
//	jarvis listen              - voice loop using the configured recorder and TTS commands
//	jarvis chat [text...]      - terminal conversation, or a single request when text is given
//	jarvis sync-apps           - refresh the app catalog from the device
//	jarvis scan-notifications  - run one notification scan
//	jarvis skills              - list the skills offered to the model
//	jarvis version             - print build information
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("jarvis failed", "err", err)
		os.Exit(1)
	}
}
