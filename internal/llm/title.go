// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"regexp"
	"strings"
)

// =============================================================================
// TITLE GENERATION
// =============================================================================

// titleInstruction is the fixed prompt wrapped around the user's first
// message. The model's raw output still gets sanitized afterwards because
// smaller models routinely ignore the punctuation instruction.
const titleInstruction = "Summarize the following message into a short title (5 words or less). " +
	"Do not include quotes or punctuation. Only output the final short title. " +
	"Do not quote it. The output will be used for a conversation title."

var (
	// thinkBlockPattern strips reasoning blocks some local models emit
	// before their answer.
	thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// titlePunctPattern strips quote and punctuation characters.
	titlePunctPattern = regexp.MustCompile(`["'.,!?;:]`)
)

// GenerateTitle asks a model for a short conversation title derived from
// text, then sanitizes the output. The network call is the only side
// effect; failures propagate to the caller, which treats them as loggable
// and keeps the placeholder title.
func GenerateTitle(ctx context.Context, svc Service, modelName, text string) (string, error) {
	req := ChatRequest{
		Model: modelName,
		Messages: []ChatMessagePayload{
			NewUserPayload(titleInstruction + "\n\n" + text),
		},
	}

	raw, err := svc.SingleCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return SanitizeTitle(raw), nil
}

// SanitizeTitle deterministically cleans a model's raw title output:
// reasoning blocks removed, quotes and punctuation stripped, whitespace
// trimmed.
func SanitizeTitle(raw string) string {
	s := thinkBlockPattern.ReplaceAllString(raw, "")
	s = titlePunctPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
