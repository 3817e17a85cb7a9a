// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the DraftPatch TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The Theme struct bundles the styles the chat view renders with
and records the detected terminal capabilities.

# Usage

	import "github.com/Robdel12/DraftPatch/internal/ui/styles"

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}
	title := theme.ThreadTitle.Render(thread.DisplayTitle())
*/
package styles
