// Package gemini implements the LLM-backed executor providers using
// Google's Gemini API: document generation from transcripts and
// free-text answer evaluation. Both share one client, one retry policy
// and one response-handling path.
package gemini
