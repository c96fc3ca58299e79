/*
Copyright 2024 Fable Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sync status values for an author's reconciliation record.
const (
	StatusPending   = "PENDING"
	StatusSyncing   = "SYNCING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// descriptionPreviewLength bounds the synthesized description when story
// content does not parse as the expected shape.
const descriptionPreviewLength = 280

func GenerateUUIDWithSuffix(module string) string {
	// Generate a new UUID
	id := uuid.New()

	// Convert the UUID to a string
	uuidStr := id.String()

	// Add the module suffix
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)

	return idWithSuffix
}

// SynthesizeContent builds a minimal story content shape from a raw payload
// that failed to parse as StoryContent. Reconciliation favors availability
// over strict validation, so the entity is kept with a truncated preview as
// its description instead of being discarded.
func SynthesizeContent(raw string) *StoryContent {
	preview := strings.TrimSpace(raw)
	if len(preview) > descriptionPreviewLength {
		// back the cut up to a rune boundary so the preview stays valid UTF-8
		cut := descriptionPreviewLength
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	return &StoryContent{
		Description: preview,
	}
}
