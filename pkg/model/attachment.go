package model

// Attachment is a binary part sent along with a user message
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}
