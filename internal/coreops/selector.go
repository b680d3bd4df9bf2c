package coreops

import (
	"fmt"
	"strings"

	"github.com/goose-run/goose-core/internal/logging"
)

// ExperienceSource is the minimal view of the Experience Store the Selector
// needs, kept as an interface here so coreops never imports the experience
// package (it would otherwise create an import cycle, since experience
// consults coreops.Variant).
type ExperienceSource interface {
	// BestCoreForCategory returns the core with the highest historical
	// success rate for category, the number of qualifying records, and
	// whether at least one core has enough records to judge.
	BestCoreForCategory(category string) (core Variant, records int, ok bool)
}

// MinExperienceThreshold is the minimum number of category records required
// before experience overrides static recommendation (spec §4.2 step 3).
const MinExperienceThreshold = 3

// keywordCategories maps keywords (lowercased) found in a task description to
// a category, checked in the listed order so more specific categories win.
var keywordCategories = []struct {
	category string
	keywords []string
}{
	{"code-test-fix", []string{"fix the test", "fix test", "failing test", "test fail", "bug fix", "fix bug"}},
	{"large-refactor", []string{"refactor", "restructure", "multi-file", "across files"}},
	{"review", []string{"review", "audit", "critique"}},
	{"pipeline", []string{"pipeline", "workflow", "multi-step process"}},
}

// ClassifyCategory deterministically classifies a task description into a
// category via keyword match (spec §4.2 step 2). Returns "general" when no
// keyword list matches.
func ClassifyCategory(description string) string {
	lower := strings.ToLower(description)
	for _, kc := range keywordCategories {
		for _, kw := range kc.keywords {
			if strings.Contains(lower, kw) {
				return kc.category
			}
		}
	}
	return "general"
}

// Selector maps a task hint to a core using static scoring plus experience,
// subject to user override (spec §4.2).
type Selector struct {
	Registry      *Registry
	Experience    ExperienceSource // may be nil
	DefaultCore   Variant
}

// NewSelector creates a selector. registry and experience may both be nil;
// defaultCore is used only when neither can decide (spec §4.2 step 5).
func NewSelector(registry *Registry, experience ExperienceSource, defaultCore Variant) *Selector {
	if defaultCore == "" {
		defaultCore = Freeform
	}
	return &Selector{Registry: registry, Experience: experience, DefaultCore: defaultCore}
}

// Select runs the five-step algorithm of spec §4.2.
func (s *Selector) Select(hint TaskHint) SelectionResult {
	log := logging.Get(logging.CategorySelector)

	// Step 1: hard override.
	if hint.UserPreference != nil {
		result := SelectionResult{
			CoreType:       *hint.UserPreference,
			Category:       hint.Category,
			Confidence:     1.0,
			FromExperience: false,
		}
		result.Rationale = fmt.Sprintf("user override selected %s for category %q (confidence 1.00)", result.CoreType, result.Category)
		log.Info("%s", result.Rationale)
		return result
	}

	// Step 2: classify.
	category := hint.Category
	if category == "" {
		category = ClassifyCategory(hint.Description)
	}

	// Step 3: experience, if enough records exist.
	if s.Experience != nil {
		if core, records, ok := s.Experience.BestCoreForCategory(category); ok && records >= MinExperienceThreshold {
			confidence := float64(records) / 20.0
			if confidence > 1.0 {
				confidence = 1.0
			}
			result := SelectionResult{
				CoreType:       core,
				Category:       category,
				Confidence:     confidence,
				FromExperience: true,
			}
			result.Rationale = fmt.Sprintf(
				"selected %s for category %q from %d historical experiences (confidence %.2f)",
				result.CoreType, category, records, confidence)
			log.Info("%s", result.Rationale)
			return result
		}
	}

	// Step 4: registry's static+capability recommendation.
	if s.Registry != nil {
		variant, confidence := s.Registry.RecommendCore(TaskHint{Description: hint.Description, Category: category})
		result := SelectionResult{
			CoreType:       variant,
			Category:       category,
			Confidence:     confidence,
			FromExperience: false,
		}
		result.Rationale = fmt.Sprintf(
			"recommended %s for category %q by static/capability scoring (confidence %.2f)",
			result.CoreType, category, confidence)
		log.Info("%s", result.Rationale)
		return result
	}

	// Step 5: configured default.
	result := SelectionResult{
		CoreType:       s.DefaultCore,
		Category:       category,
		Confidence:     0.3,
		FromExperience: false,
	}
	result.Rationale = fmt.Sprintf("fell back to default core %s for category %q (no registry or experience available)", result.CoreType, category)
	log.Info("%s", result.Rationale)
	return result
}
