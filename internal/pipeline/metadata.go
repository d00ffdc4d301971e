package pipeline

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"podforge/internal/catalog"
	"podforge/internal/queue"
)

const (
	maxTitleSubjectWords = 6
	maxTitleLength       = 120
	maxTags              = 13
)

// BuildDraft assembles listing metadata for one product type.
func BuildDraft(job *queue.Job, product catalog.Product, imageURL string, mockups []string) ProductDraft {
	subject := titleSubject(job)
	title := strings.TrimSpace(subject + " " + product.Name)
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	return ProductDraft{
		JobID:       job.ID,
		ProductType: product.ID,
		Product:     product,
		Title:       title,
		Description: describe(job, product, subject),
		Handle:      slug.Make(title),
		Tags:        buildTags(job, product),
		ImageURL:    imageURL,
		MockupURLs:  append([]string(nil), mockups...),
		PriceCents:  product.PriceCents,
		Publish:     job.Input.AutoPublish,
	}
}

// titleSubject prefers the theme and falls back to the first words of the
// prompt, title-cased.
func titleSubject(job *queue.Job) string {
	var source string
	if job.Input.ThemeConfig != nil && strings.TrimSpace(job.Input.ThemeConfig.Theme) != "" {
		source = job.Input.ThemeConfig.Theme
	} else {
		source = job.Input.Prompt
		if source == "" && job.Result != nil {
			source = job.Result.Prompt
		}
		// drop trailing style clauses
		if idx := strings.IndexByte(source, ','); idx > 0 {
			source = source[:idx]
		}
	}
	words := strings.Fields(source)
	if len(words) > maxTitleSubjectWords {
		words = words[:maxTitleSubjectWords]
	}
	if len(words) == 0 {
		return "Original Design"
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func describe(job *queue.Job, product catalog.Product, subject string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s design printed on a %s.", subject, strings.ToLower(product.Name))
	if theme := job.Input.ThemeConfig; theme != nil {
		if theme.Style != "" {
			fmt.Fprintf(&b, " Style: %s.", theme.Style)
		}
		if theme.Niche != "" {
			fmt.Fprintf(&b, " Made for %s.", theme.Niche)
		}
	}
	return b.String()
}

func buildTags(job *queue.Job, product catalog.Product) []string {
	candidates := []string{product.ID, string(product.Category)}
	if theme := job.Input.ThemeConfig; theme != nil {
		candidates = append(candidates, theme.Theme, theme.Style, theme.Niche)
	}
	seen := make(map[string]struct{}, len(candidates))
	tags := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tag := slug.Make(c)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// AssetKey returns the storage key for a job image.
func AssetKey(jobID string, index int, variant, ext string) string {
	name := fmt.Sprintf("image-%d", index)
	if variant != "" {
		name = fmt.Sprintf("%s-%s", name, slug.Make(variant))
	}
	return fmt.Sprintf("jobs/%s/%s.%s", jobID, name, strings.TrimPrefix(ext, "."))
}
