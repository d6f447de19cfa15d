package notify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propbooks/invoice-cli/internal/config"
)

// fakeSMTP speaks just enough SMTP to accept one message. It advertises no
// extensions, so the client skips STARTTLS and AUTH.
func fakeSMTP(t *testing.T) (port int, received *strings.Builder) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	received = &strings.Builder{}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		write("220 fake ESMTP")
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")

			if inData {
				if line == "." {
					inData = false
					write("250 OK")
					continue
				}
				received.WriteString(line + "\n")
				continue
			}

			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				write("250 fake")
			case strings.HasPrefix(line, "MAIL FROM"):
				received.WriteString(line + "\n")
				write("250 OK")
			case strings.HasPrefix(line, "RCPT TO"):
				received.WriteString(line + "\n")
				write("250 OK")
			case line == "DATA":
				inData = true
				write("354 go ahead")
			case line == "QUIT":
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, received
}

func TestSendSummary(t *testing.T) {
	port, received := fakeSMTP(t)

	n := NewSMTPNotifier(config.NotifyConfig{
		Host:        "127.0.0.1",
		Port:        port,
		From:        "bot@example.com",
		To:          "books@example.com, owner@example.com",
		TimeoutSecs: 5,
	})

	err := n.SendSummary(context.Background(), "Invoice run summary",
		"<h2>Run complete</h2><p>3 messages, 5 rows</p>")
	require.NoError(t, err)

	got := received.String()
	assert.Contains(t, got, "MAIL FROM:<bot@example.com>")
	assert.Contains(t, got, "RCPT TO:<books@example.com>")
	assert.Contains(t, got, "RCPT TO:<owner@example.com>")
	assert.Contains(t, got, "Subject: Invoice run summary")
	assert.Contains(t, got, "Content-Type: text/html")
	assert.Contains(t, got, "Run complete")
}

func TestSendSummary_NoRecipients(t *testing.T) {
	port, _ := fakeSMTP(t)

	n := NewSMTPNotifier(config.NotifyConfig{
		Host: "127.0.0.1",
		Port: port,
		From: "bot@example.com",
	})

	err := n.SendSummary(context.Background(), "x", "y")
	assert.Error(t, err)
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, splitRecipients("a@x.com, b@x.com"))
	assert.Equal(t, []string{"a@x.com"}, splitRecipients("a@x.com,"))
	assert.Nil(t, splitRecipients("  "))
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("from@x.com", []string{"to@x.com"}, "Hi", "<p>body</p>"))
	assert.True(t, strings.HasPrefix(msg, "From: from@x.com\r\n"))
	assert.Contains(t, msg, "\r\n\r\n<p>body</p>")
}
