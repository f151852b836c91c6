package classify

import (
	"strings"

	"github.com/kalambet/ticketlens/internal/ticket"
)

// Signals are feature hints found in the ticket text. They drive the
// clarification, technical-consideration, and risk rules rather than the
// template bundles.
type Signals struct {
	Mobile          bool `json:"mobile"`
	Performance     bool `json:"performance"`
	Accessibility   bool `json:"accessibility"`
	Integration     bool `json:"integration"`
	Security        bool `json:"security"`
	I18n            bool `json:"i18n"`
	Animation       bool `json:"animation"`
	ErrorHandling   bool `json:"error_handling"`
	Data            bool `json:"data"`
	UserFlow        bool `json:"user_flow"`
	BusinessContext bool `json:"business_context"`
}

var (
	mobileWords        = []string{"mobile", "responsive", "tablet", "ios", "android"}
	performanceWords   = []string{"performance", "speed", "load", "optimization", "latency"}
	accessibilityWords = []string{"accessibility", "a11y", "wcag", "screen reader"}
	integrationWords   = []string{"api", "integration", "third-party", "external", "webhook"}
	securityWords      = []string{"security", "authentication", "authorization", "encryption"}
	i18nWords          = []string{"i18n", "internationalization", "localization", "multi-language", "translation"}
	animationWords     = []string{"animation", "transition", "motion", "interaction"}
	errorWords         = []string{"error", "exception", "fallback", "edge case"}
	dataWords          = []string{"data", "database", "storage", "cache"}
	userFlowWords      = []string{"user flow", "workflow", "process", "journey"}
	businessWords      = []string{"user", "customer", "business", "goal"}
)

// DetectSignals scans the title and description. Business context is judged
// on the description alone.
func DetectSignals(t ticket.Ticket) Signals {
	text := strings.ToLower(t.Title + " " + t.Description)
	return Signals{
		Mobile:          containsAny(text, mobileWords),
		Performance:     containsAny(text, performanceWords),
		Accessibility:   containsAny(text, accessibilityWords),
		Integration:     containsAny(text, integrationWords),
		Security:        containsAny(text, securityWords),
		I18n:            containsAny(text, i18nWords),
		Animation:       containsAny(text, animationWords),
		ErrorHandling:   containsAny(text, errorWords),
		Data:            containsAny(text, dataWords),
		UserFlow:        containsAny(text, userFlowWords),
		BusinessContext: containsAny(strings.ToLower(t.Description), businessWords),
	}
}
