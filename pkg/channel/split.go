package channel

import "strings"

type chunk struct {
	text string
	// separated is set when the chunk starts with the newline or space it was split at
	separated bool
}

func splitChunks(text string, limit int) []chunk {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []chunk{{text: text}}
	}

	var chunks []chunk
	separated := false
	for len(runes) > limit {
		window := string(runes[:limit])
		cut, atSeparator := limit, false
		if idx := strings.LastIndex(window, "\n"); idx > 0 {
			cut, atSeparator = len([]rune(window[:idx])), true
		} else if idx := strings.LastIndex(window, " "); idx > 0 {
			cut, atSeparator = len([]rune(window[:idx])), true
		}

		chunks = append(chunks, chunk{text: string(runes[:cut]), separated: separated})
		runes = runes[cut:]
		separated = atSeparator
	}
	if len(runes) > 0 {
		chunks = append(chunks, chunk{text: string(runes), separated: separated})
	}
	return chunks
}

// Split cuts text into chunks of at most limit characters. A chunk ends before the last
// newline within the limit, else before the last space, else exactly at the limit. The
// separator stays at the head of the next chunk, so joining the chunks gives back text.
func Split(text string, limit int) []string {
	chunks := splitChunks(text, limit)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.text
	}
	return out
}

// SplitForSend is Split with the separator at each split point removed and blank chunks
// dropped, ready to hand to a transport. Other leading whitespace, such as indentation,
// is kept.
func SplitForSend(text string, limit int) []string {
	var out []string
	for _, c := range splitChunks(text, limit) {
		s := c.text
		if c.separated {
			s = s[1:]
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
