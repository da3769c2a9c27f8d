package channel

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

const (
	// MaxTextLength is the largest accepted inbound message in characters
	MaxTextLength = 8000
	// MaxAttachmentSize is the largest accepted attachment in bytes
	MaxAttachmentSize = 20 << 20
)

var allowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"audio/wav":       true,
}

// ValidationError rejects an inbound message before it reaches the pipeline. Reason is
// safe to show to the sender.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid inbound message: " + e.Reason
}

// normalizeMIMEType drops parameters and maps aliases
func normalizeMIMEType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "image/jpg":
		return "image/jpeg"
	case "audio/mp3":
		return "audio/mpeg"
	case "audio/x-wav", "audio/wave":
		return "audio/wav"
	}
	return mimeType
}

// Validate checks the inbound text and attachments
func Validate(text string, attachments []*model.Attachment) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return &ValidationError{Reason: "The message is empty."}
	}

	if n := utf8.RuneCountInString(text); n > MaxTextLength {
		return &ValidationError{
			Reason: fmt.Sprintf("The message is too long (%d characters). Please keep it under %d characters.", n, MaxTextLength),
		}
	}

	for _, a := range attachments {
		mimeType := normalizeMIMEType(a.MIMEType)
		if !allowedMIMETypes[mimeType] {
			return &ValidationError{
				Reason: fmt.Sprintf("Files of type %q are not supported. Please send an image, a PDF or an audio file.", a.MIMEType),
			}
		}
		if len(a.Data) > MaxAttachmentSize {
			return &ValidationError{
				Reason: fmt.Sprintf("The file %q is too large. The limit is %d MB.", a.Name, MaxAttachmentSize>>20),
			}
		}
		a.MIMEType = mimeType
	}

	return nil
}
