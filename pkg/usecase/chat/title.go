package chat

import "strings"

const titleMaxRunes = 40

// deriveTitle returns the first 40 characters of the message, ellipsized when cut
func deriveTitle(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	runes := []rune(message)
	if len(runes) <= titleMaxRunes {
		return message
	}
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}
