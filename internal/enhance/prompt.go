// Package enhance runs the encounter enhancement pipeline: a generative
// text model rewrites the submitted story and a generative image model
// renders an illustration for it.
package enhance

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ghostatlas/ghostatlas/internal/encounter"
)

// MaxImagePromptChars caps the full image prompt length. The image model
// rejects longer prompts, so the scene description is trimmed to fit.
const MaxImagePromptChars = 512

// Story length targets handed to the text model.
const (
	MinStoryWords = 500
	MaxStoryWords = 2000
)

// imagePromptPrefix and imagePromptSuffix frame the scene description.
const (
	imagePromptPrefix = "A moody, atmospheric illustration of a paranormal encounter: "
	imagePromptSuffix = " Dark, misty, cinematic lighting. No text or captions."
)

// BuildStoryPrompt composes the text-model prompt from the submitted story
// and its context.
func BuildStoryPrompt(e *encounter.Encounter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the following firsthand paranormal encounter report as an immersive short story between %d and %d words.\n", MinStoryWords, MaxStoryWords)
	b.WriteString("Keep every factual detail from the report; embellish atmosphere, never events. Write in the first person.\n\n")
	if e.Location.Address != "" {
		fmt.Fprintf(&b, "Location: %s (%.4f, %.4f)\n", e.Location.Address, e.Location.Latitude, e.Location.Longitude)
	} else {
		fmt.Fprintf(&b, "Location: %.4f, %.4f\n", e.Location.Latitude, e.Location.Longitude)
	}
	fmt.Fprintf(&b, "Time of encounter: %s\n\n", e.EncounterTime.UTC().Format(time.RFC1123))
	b.WriteString("Report:\n")
	b.WriteString(e.OriginalStory)
	return b.String()
}

// BuildImagePrompt composes the image-model prompt, trimming the scene
// description so prefix + description + suffix never exceeds
// MaxImagePromptChars.
func BuildImagePrompt(sceneDescription string) string {
	sceneDescription = strings.TrimSpace(sceneDescription)

	budget := MaxImagePromptChars - utf8.RuneCountInString(imagePromptPrefix) - utf8.RuneCountInString(imagePromptSuffix)
	if utf8.RuneCountInString(sceneDescription) > budget {
		runes := []rune(sceneDescription)
		sceneDescription = strings.TrimSpace(string(runes[:budget]))
	}

	return imagePromptPrefix + sceneDescription + imagePromptSuffix
}
