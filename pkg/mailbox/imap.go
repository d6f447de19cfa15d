// Package mailbox reads candidate invoice messages from an IMAP folder and
// flags them once their line items are committed to the ledger. Candidates
// are the unseen messages in the configured folder; the \Seen flag is the
// mailbox-side processed marker.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/model"
	"github.com/propbooks/invoice-cli/internal/resilience"
)

// Mailbox lists candidate messages and marks them processed.
type Mailbox interface {
	// ListCandidates returns the unseen messages in the configured folder,
	// parsed into source messages.
	ListCandidates(ctx context.Context) ([]model.SourceMessage, error)
	// MarkProcessed flags a previously listed message as seen.
	MarkProcessed(ctx context.Context, messageID string) error
	Close() error
}

// IMAPMailbox is the live IMAP implementation.
type IMAPMailbox struct {
	client  *imapclient.Client
	cfg     config.MailboxConfig
	timeout time.Duration

	// uids maps the IDs handed out by ListCandidates back to mailbox UIDs
	// so MarkProcessed can address them.
	uids map[string]imap.UID
}

// Dial connects and authenticates against the configured IMAP server. The
// configured timeout bounds the dial, the TLS handshake, and every
// subsequent command individually.
func Dial(ctx context.Context, cfg config.MailboxConfig) (*IMAPMailbox, error) {
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", address, &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "mailbox: dial %s", address), 0)
	}

	client := imapclient.New(conn, &imapclient.Options{})
	m := &IMAPMailbox{
		client:  client,
		cfg:     cfg,
		timeout: timeout,
		uids:    make(map[string]imap.UID),
	}

	if err := m.wait(ctx, "login", func() error {
		return client.Login(cfg.Username, cfg.Password).Wait()
	}); err != nil {
		_ = client.Close()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, resilience.NewTransientError(err, 0)
		}
		return nil, &resilience.UnauthorizedError{Service: "imap", Err: err}
	}

	// Drop the connection if the run context ends while a command is
	// in flight.
	context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	zap.L().Debug("imap connection established",
		zap.String("address", address),
		zap.String("user", cfg.Username),
		zap.Bool("tls", cfg.UseTLS))

	return m, nil
}

// commandTimeout bounds one IMAP command. The client offers no per-command
// deadline hook, so on expiry abort is called to close the connection and
// unblock the command; the timeout error surfaces instead of the close
// error.
func commandTimeout(ctx context.Context, timeout time.Duration, op string, abort func(), fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, abort)
	defer stop()

	err := fn()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return eris.Wrapf(ctxErr, "mailbox: %s timed out after %s", op, timeout)
	}
	return err
}

func (m *IMAPMailbox) wait(ctx context.Context, op string, fn func() error) error {
	return commandTimeout(ctx, m.timeout, op, func() { _ = m.client.Close() }, fn)
}

// ListCandidates selects the folder, searches for unseen messages, and
// fetches them whole. Messages that fail MIME parsing are skipped with a
// warning rather than failing the listing.
func (m *IMAPMailbox) ListCandidates(ctx context.Context) ([]model.SourceMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "mailbox: context done")
	}

	if err := m.wait(ctx, "select", func() error {
		_, err := m.client.Select(m.cfg.Folder, nil).Wait()
		return err
	}); err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "mailbox: select %q", m.cfg.Folder), 0)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	var search *imap.SearchData
	if err := m.wait(ctx, "search", func() (err error) {
		search, err = m.client.UIDSearch(criteria, nil).Wait()
		return err
	}); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "mailbox: search unseen"), 0)
	}

	uids := search.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	var bufs []*imapclient.FetchMessageBuffer
	if err := m.wait(ctx, "fetch", func() (err error) {
		bufs, err = m.client.Fetch(imap.UIDSetNum(uids...), fetchOptions).Collect()
		return err
	}); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "mailbox: fetch messages"), 0)
	}

	msgs := make([]model.SourceMessage, 0, len(bufs))
	for _, buf := range bufs {
		raw := buf.FindBodySection(&imap.FetchItemBodySection{})
		if raw == nil {
			zap.L().Warn("message has no body section, skipped",
				zap.Uint32("uid", uint32(buf.UID)))
			continue
		}

		msg, err := ParseMessage(raw)
		if err != nil {
			zap.L().Warn("message failed MIME parsing, skipped",
				zap.Uint32("uid", uint32(buf.UID)),
				zap.Error(err))
			continue
		}

		if msg.ID == "" {
			msg.ID = "uid:" + strconv.FormatUint(uint64(buf.UID), 10)
		}
		if msg.Subject == "" && buf.Envelope != nil {
			msg.Subject = buf.Envelope.Subject
		}
		m.uids[msg.ID] = buf.UID
		msgs = append(msgs, msg)
	}

	zap.L().Info("listed candidate messages",
		zap.String("folder", m.cfg.Folder),
		zap.Int("unseen", len(uids)),
		zap.Int("parsed", len(msgs)))
	return msgs, nil
}

// MarkProcessed adds the \Seen flag to the message. It must follow a
// ListCandidates call in the same session.
func (m *IMAPMailbox) MarkProcessed(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "mailbox: context done")
	}

	uid, ok := m.uids[messageID]
	if !ok {
		return eris.Errorf("mailbox: unknown message %q", messageID)
	}

	store := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagSeen},
		Silent: true,
	}
	if err := m.wait(ctx, "store", func() error {
		return m.client.Store(imap.UIDSetNum(uid), store, nil).Close()
	}); err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "mailbox: mark %q seen", messageID), 0)
	}
	return nil
}

// Close logs out and drops the connection.
func (m *IMAPMailbox) Close() error {
	if err := m.client.Logout().Wait(); err != nil {
		zap.L().Debug("imap logout failed", zap.Error(err))
	}
	return m.client.Close()
}
