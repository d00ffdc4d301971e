package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"podforge/internal/queue"
	"podforge/internal/services"
)

var (
	templatePalettes = []string{
		"vibrant colors",
		"pastel tones",
		"monochrome",
		"neon colors",
		"earth tones",
		"black and gold",
		"warm sunset palette",
		"cool ocean palette",
	}
	templateCompositions = []string{
		"centered composition",
		"symmetrical layout",
		"bold badge layout",
		"dynamic angle",
		"close-up",
	}
)

const templateSuffix = "isolated on a plain background, clean edges, print-ready, high quality, detailed"

// TemplatePrompts synthesizes prompts without an LLM. Palette and composition
// are chosen from a hash of the theme so the same theme always yields the
// same prompt.
type TemplatePrompts struct{}

// Synthesize builds a prompt from theme, style, and niche.
func (TemplatePrompts) Synthesize(_ context.Context, theme queue.ThemeConfig) (string, error) {
	subject := strings.TrimSpace(theme.Theme)
	if subject == "" {
		return "", services.Wrap(services.ErrValidation, StagePrompt, "template", "theme is required", nil)
	}
	style := strings.TrimSpace(theme.Style)
	if style == "" {
		style = "vector art"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(subject + "|" + style + "|" + theme.Niche)))
	sum := h.Sum32()
	palette := templatePalettes[sum%uint32(len(templatePalettes))]
	composition := templateCompositions[(sum/7)%uint32(len(templateCompositions))]

	parts := []string{fmt.Sprintf("%s %s design", subject, style)}
	if niche := strings.TrimSpace(theme.Niche); niche != "" {
		parts = append(parts, "for "+niche+" fans")
	}
	parts = append(parts, palette, composition, templateSuffix)
	return strings.Join(parts, ", "), nil
}
