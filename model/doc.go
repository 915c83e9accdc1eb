// Package model defines the provider-agnostic abstractions for driving
// language model generation inside Troupe.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so loops remain decoupled from vendor SDKs. Capability invocation
// is in-band (tag syntax inside the generated text), so adapters only need
// to move role-tagged text in and streamed text out.
package model
