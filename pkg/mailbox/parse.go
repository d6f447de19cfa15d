package mailbox

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rotisserie/eris"

	"github.com/propbooks/invoice-cli/internal/model"
)

// ParseMessage parses a raw RFC 5322 message into a source message. The body
// is the concatenated text/plain parts, falling back to text/html when a
// message carries no plain text. Every non-inline part becomes an attachment.
func ParseMessage(raw []byte) (model.SourceMessage, error) {
	var msg model.SourceMessage

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return msg, eris.Wrap(err, "mailbox: create mail reader")
	}
	defer func() { _ = mr.Close() }()

	if id, err := mr.Header.MessageID(); err == nil {
		msg.ID = id
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.ReceivedAt = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
	}

	var plain, html strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, eris.Wrap(err, "mailbox: read mime part")
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(ct, "text/plain"):
				_, _ = io.Copy(&plain, part.Body)
				plain.WriteString("\n")
			case strings.HasPrefix(ct, "text/html"):
				_, _ = io.Copy(&html, part.Body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, eris.Wrapf(err, "mailbox: read attachment %q", filename)
			}
			msg.Attachments = append(msg.Attachments, model.Attachment{
				Filename: filename,
				MIMEType: ct,
				Data:     data,
			})
		}
	}

	msg.Body = plain.String()
	if strings.TrimSpace(msg.Body) == "" {
		msg.Body = html.String()
	}
	return msg, nil
}
