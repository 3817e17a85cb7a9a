// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the provider-agnostic chat layer: the Service
// interface every backend implements, the normalized request/response
// types, the error taxonomy, the provider registry, model discovery,
// and title generation.
//
// Concrete backends live in the subpackages ollama, openai, gemini and
// anthropic. Each one translates the normalized ChatRequest into its
// vendor's wire format and decodes the vendor's streaming framing back
// into plain text fragments.
//
// # Key Types
//
//   - Service: the capability contract (ListModels, StreamChat,
//     SingleCompletion, CancelActiveStream)
//   - Registry: closed map from Provider to Service
//   - Manager: parallel model discovery across enabled providers
//   - ChatModel: a named model with user-editable overrides
//
// # Usage
//
//	reg := llm.NewRegistry(map[llm.Provider]llm.Service{
//	    llm.ProviderOllama: ollama.NewClient(),
//	})
//	svc := reg.Client(llm.ProviderOllama)
//	err := svc.StreamChat(ctx, req, func(fragment string) {
//	    fmt.Print(fragment)
//	})
package llm
