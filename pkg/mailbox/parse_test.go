package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const multipartMsg = `From: Agent <agent@example.com>
To: books@example.com
Subject: Water bill
Date: Fri, 28 Feb 2025 10:00:00 +0000
Message-ID: <abc123@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

Water bill attached.
--BOUNDARY
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQ=
--BOUNDARY--
`

func TestParseMessage_Multipart(t *testing.T) {
	msg, err := ParseMessage(crlf(multipartMsg))
	require.NoError(t, err)

	assert.Equal(t, "<abc123@example.com>", msg.ID)
	assert.Equal(t, "Water bill", msg.Subject)
	assert.Equal(t, "agent@example.com", msg.Sender)
	assert.Equal(t, 2025, msg.ReceivedAt.Year())
	assert.Contains(t, msg.Body, "Water bill attached.")

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "invoice.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.MIMEType)
	assert.Equal(t, []byte("%PDF-1.4"), att.Data)
}

const plainMsg = `From: tenant@example.com
Subject: Rent paid
Date: Sat, 01 Mar 2025 09:00:00 +0000
Message-ID: <rent-1@example.com>
Content-Type: text/plain; charset=utf-8

Paid 1500 for March rent, 12 Oak St.
`

func TestParseMessage_PlainText(t *testing.T) {
	msg, err := ParseMessage(crlf(plainMsg))
	require.NoError(t, err)

	assert.Equal(t, "<rent-1@example.com>", msg.ID)
	assert.Contains(t, msg.Body, "Paid 1500 for March rent")
	assert.Empty(t, msg.Attachments)
}

const htmlOnlyMsg = `From: portal@example.com
Subject: Statement ready
Date: Sat, 01 Mar 2025 09:00:00 +0000
Message-ID: <stmt-1@example.com>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="ALT"

--ALT
Content-Type: text/html; charset=utf-8

<html><body><p>Your statement total is $99.00</p></body></html>
--ALT--
`

func TestParseMessage_HTMLFallback(t *testing.T) {
	msg, err := ParseMessage(crlf(htmlOnlyMsg))
	require.NoError(t, err)

	assert.Contains(t, msg.Body, "statement total")
}

func TestParseMessage_Garbage(t *testing.T) {
	_, err := ParseMessage([]byte("\x00\x01not a mail message"))
	assert.Error(t, err)
}
