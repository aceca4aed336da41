package conversation

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/model/session"
)

const responseStyle = `

RESPONSE STYLE:
- Be clear, concise, and direct
- Avoid unnecessary explanations or verbose descriptions
- Get straight to the point
- Only provide essential information needed for the user's request
`

const notProvided = "Not provided"

const personalization = "Use this profile information to provide personalized service. " +
	"The User ID can be used to store/retrieve service-specific authentication tokens or preferences if your MCP supports it. " +
	"If the customer needs to place an order, you already have their contact information and can use it to streamline the process."

// buildSystemPrompt concatenates the service template, the response-style
// directive and, when a profile was captured, the customer profile block.
func buildSystemPrompt(template string, sess *session.Session) string {
	var b strings.Builder
	b.WriteString(template)
	b.WriteString(responseStyle)

	if p := sess.Context.Profile; p != nil {
		b.WriteString("\n\nCUSTOMER PROFILE:\n")
		fmt.Fprintf(&b, "- User ID: %s\n", orNotProvided(sess.UserID))
		fmt.Fprintf(&b, "- Name: %s\n", orNotProvided(p.FullName))
		fmt.Fprintf(&b, "- Phone: %s\n", orNotProvided(p.Phone))
		fmt.Fprintf(&b, "- Email: %s\n", orNotProvided(p.Email))
		fmt.Fprintf(&b, "- Address: %s\n", orNotProvided(addressText(p)))
		b.WriteString("\n")
		b.WriteString(personalization)
		b.WriteString("\n")
	}
	return b.String()
}

// toolsUnavailableNote is appended for the degraded, tool-less retry.
func toolsUnavailableNote(service string) string {
	return fmt.Sprintf("\n\nNote: I don't have access to external tools right now, but I can still help you with general information about %s.", service)
}

func addressText(p *profile.Profile) string {
	if !p.HasAddress() {
		return ""
	}
	return p.Address.String()
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}
