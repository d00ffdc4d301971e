package queue

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"podforge/internal/catalog"
	"podforge/internal/services"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterStructValidation(themeOrPrompt, Input{})
		validate = v
	})
	return validate
}

// themeOrPrompt rejects inputs where the prompt is whitespace and no theme
// is supplied; required_without only checks for the zero value.
func themeOrPrompt(sl validator.StructLevel) {
	in := sl.Current().Interface().(Input)
	if strings.TrimSpace(in.Prompt) == "" && in.ThemeConfig == nil {
		sl.ReportError(in.Prompt, "Prompt", "prompt", "required_without", "ThemeConfig")
	}
}

// Normalize trims and lowercases list fields and removes duplicates. It does
// not apply defaults.
func (in *Input) Normalize() {
	in.Prompt = strings.TrimSpace(in.Prompt)
	in.ProductTypes = normalizeNames(in.ProductTypes)
	in.Platforms = normalizeNames(in.Platforms)
	if in.ThemeConfig != nil {
		in.ThemeConfig.Theme = strings.TrimSpace(in.ThemeConfig.Theme)
		in.ThemeConfig.Style = strings.TrimSpace(in.ThemeConfig.Style)
		in.ThemeConfig.Niche = strings.TrimSpace(in.ThemeConfig.Niche)
	}
}

// ValidateInput checks a submission, returning an error marked with
// services.ErrValidation that lists every problem found.
func ValidateInput(in Input) error {
	var problems []string
	if err := inputValidator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return services.Wrap(services.ErrValidation, "submit", "validate input", "", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}
	for _, pt := range in.ProductTypes {
		if pt != "" && !catalog.Known(pt) {
			problems = append(problems, fmt.Sprintf("unknown product type %q", pt))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "submit", "validate input", strings.Join(problems, "; "), nil)
}

func describeFieldError(fe validator.FieldError) string {
	field := jsonFieldName(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return "prompt or themeConfig is required"
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "slice" || fe.Kind().String() == "string" {
			return fmt.Sprintf("%s exceeds maximum length %s", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// jsonFieldName turns "Input.ThemeConfig.Theme" into "themeConfig.theme".
func jsonFieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToLower(part[:1]) + part[1:]
	}
	return strings.Join(parts, ".")
}

func normalizeNames(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
