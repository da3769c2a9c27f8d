package chat

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

// isTokenLimitError checks if the error is due to token limit exceeded
func isTokenLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return false
		}
		apiErr = *apiErrPtr
	}

	// Example: "The input token count (2500030) exceeds the maximum number of tokens allowed (1048576)."
	return apiErr.Code == 400 &&
		apiErr.Status == "INVALID_ARGUMENT" &&
		strings.HasPrefix(apiErr.Message, "The input token count (") &&
		strings.Contains(apiErr.Message, ") exceeds the maximum number of tokens allowed (")
}
