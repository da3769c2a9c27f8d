package chat

// Test helpers exposing private functions to the external test package

var (
	DeriveTitle       = deriveTitle
	IsTokenLimitError = isTokenLimitError
	RenderMessages    = renderMessages
	FallbackReply     = fallbackReply
)
