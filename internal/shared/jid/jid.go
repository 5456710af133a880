// Package jid normalizes WhatsApp destination identifiers.
package jid

import "strings"

// DefaultServer is the user-JID domain for individual chats.
const DefaultServer = "s.whatsapp.net"

// Normalize canonicalizes a destination identifier. Inputs that already
// carry a server part (anything containing '@') pass through unchanged;
// everything else is reduced to its digits and qualified with the default
// user server. Normalize is idempotent.
func Normalize(to string) string {
	if strings.Contains(to, "@") {
		return to
	}
	var b strings.Builder
	b.Grow(len(to) + 1 + len(DefaultServer))
	for _, r := range to {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	b.WriteByte('@')
	b.WriteString(DefaultServer)
	return b.String()
}
