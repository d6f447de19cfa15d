package run

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/propbooks/invoice-cli/internal/model"
	"github.com/propbooks/invoice-cli/internal/store"
)

// --- Mailbox mock ---

type mockMailbox struct {
	mock.Mock
}

func (m *mockMailbox) ListCandidates(ctx context.Context) ([]model.SourceMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SourceMessage), args.Error(1)
}

func (m *mockMailbox) MarkProcessed(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *mockMailbox) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Extractor mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, input model.ExtractionInput) (*model.ExtractionResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExtractionResult), args.Error(1)
}

// --- Ledger mock ---

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) AppendRows(ctx context.Context, items []model.LineItem) (int, error) {
	args := m.Called(ctx, items)
	return args.Int(0), args.Error(1)
}

func (m *mockLedger) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context) (*model.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	args := m.Called(ctx, runID, status, summary)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) MarkMessageCommitted(ctx context.Context, messageID, runID string, rows int) error {
	args := m.Called(ctx, messageID, runID, rows)
	return args.Error(0)
}

func (m *mockStore) IsMessageCommitted(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Notifier mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendSummary(ctx context.Context, subject, htmlBody string) error {
	args := m.Called(ctx, subject, htmlBody)
	return args.Error(0)
}
