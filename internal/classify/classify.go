// Package classify decides which domain template bundles apply to a ticket.
package classify

import (
	"strings"

	"github.com/kalambet/ticketlens/internal/ticket"
)

// Category is a closed set of domain tags. Declaration order is the order in
// which matched categories are reported and their templates applied.
type Category string

const (
	Booking        Category = "booking"
	Payment        Category = "payment"
	Profile        Category = "profile"
	Authentication Category = "authentication"
	Search         Category = "search"
	Mobile         Category = "mobile"
	Notification   Category = "notification"
	Chat           Category = "chat"
	Dashboard      Category = "dashboard"
	Generic        Category = "generic"
)

// All lists every category in declaration order.
var All = []Category{Booking, Payment, Profile, Authentication, Search, Mobile, Notification, Chat, Dashboard, Generic}

var triggers = map[Category][]string{
	Booking:        {"booking", "session", "advisor", "availability", "slot", "schedule", "appointment"},
	Payment:        {"payment", "billing", "subscription", "purchase", "transaction", "checkout", "refund"},
	Profile:        {"profile", "user", "account", "edit", "update", "occupation"},
	Authentication: {"login", "authentication", "signin", "sign in", "signup", "sign up", "register", "password", "otp"},
	Search:         {"search", "filter", "sort", "browse", "discover"},
	Mobile:         {"mobile", "ios", "android", "tablet", "responsive", "touch", "swipe"},
	Notification:   {"notification", "email", "sms", "push", "alert"},
	Chat:           {"chat", "message", "messaging", "communication", "support", "conversation"},
	Dashboard:      {"dashboard", "report", "analytics", "metrics", "chart"},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range All {
		if k == c {
			return true
		}
	}
	return false
}

// Classify returns the categories whose trigger keywords occur in the ticket's
// title, description, or labels. Generic is returned alone when nothing
// matches.
func Classify(t ticket.Ticket) []Category {
	text := t.Text()
	var out []Category
	for _, c := range All {
		if containsAny(text, triggers[c]) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []Category{Generic}
	}
	return out
}

// Keywords returns the trigger keywords for c.
func Keywords(c Category) []string {
	return append([]string(nil), triggers[c]...)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
