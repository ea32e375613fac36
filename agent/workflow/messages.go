package workflow

import (
	"fmt"

	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

const (
	knoxHandoffText = "Great, I am going to connect you with Ellis, who handles onboarding."

	ellisOpeningText = "Technically we don't need more information from you other than your location. " +
		"This will enable the concierge team to curate experiences for you nearby. " +
		"That said, the more I can learn about you, the better I can curate experiences " +
		"and the higher likelihood you'll unlock private members-only experiences."

	knoxLevel  = 1
	ellisLevel = 2
)

func knoxInviteText(m *contractx.Member) string {
	return fmt.Sprintf("Hey %s, %s invited you to The Vault, a private social club. "+
		"Happy to provide you with more details if you're interested. "+
		"If not, I will move along and will never message you again! ~ Knox (Lead onboarding concierge)",
		m.FirstName, m.NominatedByFullName)
}
