package inboundnode

const (
	knoxInfoText = `The Vault is a private, invite-only social club run through concierge messaging. If you want to continue, reply "Yes". If not, reply "No" and I will move along.`

	knoxExplicitText = `I could not determine if you want to continue. Please reply "Yes" to continue or "No" and I will move along.`

	ellisFallbackText = "Thanks for sharing that. To start curating well for you, what city are you based in?"

	// ClarificationMarker appears in every Knox message that asks for an
	// explicit answer.
	ClarificationMarker = `reply "Yes"`

	ellisLevel = 2
)
