package model

import "time"

// SourceMessage is one mailbox item under consideration. It is created by the
// mailbox transport at fetch time and is read-only for the rest of the
// pipeline; the "mark processed" side effect belongs to the mailbox and is
// applied by the coordinator only after a terminal outcome.
type SourceMessage struct {
	ID          string       `json:"id"`
	ReceivedAt  time.Time    `json:"received_at"`
	Sender      string       `json:"sender"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a single MIME part attached to a SourceMessage.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// BlockKind classifies a content block for the model transport.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockImage    BlockKind = "image"
	BlockDocument BlockKind = "document"
)

// ContentBlock is one typed unit of extraction input. Image and document
// blocks carry the attachment's original bytes unmodified so the model
// transport can pass them through without re-encoding.
type ContentBlock struct {
	Kind     BlockKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	MIMEType string    `json:"mime_type,omitempty"`
	Data     []byte    `json:"-"`
	Filename string    `json:"filename,omitempty"`
}

// ExtractionInput is the canonical form of a SourceMessage: normalized text
// plus ordered content blocks. Derived deterministically, one-to-one, and
// discarded after extraction.
type ExtractionInput struct {
	MessageID  string         `json:"message_id"`
	Subject    string         `json:"subject"`
	Sender     string         `json:"sender"`
	ReceivedAt time.Time      `json:"received_at"`
	Text       string         `json:"text"`
	Blocks     []ContentBlock `json:"blocks,omitempty"`

	// Warnings records attachments that were dropped or degraded during
	// normalization. Normalization never fails; problems land here.
	Warnings []string `json:"warnings,omitempty"`
}
