// Package nlu abstracts structured natural-language completions behind
// the Capability interface. The engines depend only on Capability, so
// tests substitute deterministic stubs and production wires the
// Gemini-backed implementation.
package nlu
