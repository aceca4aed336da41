package router

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
)

// handoffMessage builds the synthetic first user turn of a new session.
// Fragments appear in name, phone, address order; a profile carrying none of
// them renders the same as no profile.
func handoffMessage(description string, p *profile.Profile, message string) string {
	fragments := profileFragments(p)
	// an empty profile gets the plain form rather than a blank context line
	if fragments == "" {
		return fmt.Sprintf("I'm connecting you with %s. The user said: '%s' - please help them with their request.",
			description, message)
	}
	return fmt.Sprintf("I'm connecting you with %s. \n%s\nThe user said: '%s' - please help them with their request.",
		description, fragments, message)
}

func profileFragments(p *profile.Profile) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	if name := strings.TrimSpace(p.FullName); name != "" {
		fmt.Fprintf(&b, "Customer name: %s. ", name)
	}
	if phone := strings.TrimSpace(p.Phone); phone != "" {
		fmt.Fprintf(&b, "Phone: %s. ", phone)
	}
	if p.HasAddress() {
		fmt.Fprintf(&b, "Address: %s. ", p.Address.String())
	}
	return b.String()
}
