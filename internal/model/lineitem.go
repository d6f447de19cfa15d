package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// DateFormat is the calendar format line item dates are exchanged in.
const DateFormat = "2006-01-02"

// LineItem is one ledger-bound record. By convention a negative amount is an
// expense and a positive amount is income.
type LineItem struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Property    string          `json:"property,omitempty"`
}

// Validate checks the structural invariants of a line item: a valid calendar
// date, a non-empty description and a non-zero amount. Domain rules
// (plausibility bounds, category whitelist) live in the reconciler.
func (li LineItem) Validate() error {
	return validation.ValidateStruct(&li,
		validation.Field(&li.Date, validation.Required.Error("date is required")),
		validation.Field(&li.Description, validation.Required.Error("description is required")),
		validation.Field(&li.Amount, validation.By(func(any) error {
			if li.Amount.IsZero() {
				return validation.NewError("validation_amount_zero", "amount must be non-zero")
			}
			return nil
		})),
	)
}

// ExtractedItem is a line item as emitted by the model, carrying the model's
// own confidence in the extraction.
type ExtractedItem struct {
	Item       LineItem `json:"item"`
	Confidence float64  `json:"confidence"`
}

// ExtractionResult is the model's response for one SourceMessage. Zero items
// is a legitimate success (the message was not an invoice).
type ExtractionResult struct {
	MessageID string          `json:"message_id"`
	Items     []ExtractedItem `json:"items"`
}

// RejectedItem is a line item that failed reconciliation, kept for the run
// summary instead of being written to the ledger.
type RejectedItem struct {
	Item   LineItem `json:"item"`
	Reason string   `json:"reason"`
}

// Rejection reasons reported by the reconciler.
const (
	ReasonInvalidDate       = "InvalidDate"
	ReasonImplausibleDate   = "ImplausibleDate"
	ReasonZeroAmount        = "ZeroAmount"
	ReasonImplausibleAmount = "ImplausibleAmount"
	ReasonEmptyDescription  = "EmptyDescription"
	ReasonUnknownCategory   = "UnknownCategory"
)

// NeedsReviewTag marks items passed through in review mode instead of being
// rejected for an unknown category.
const NeedsReviewTag = "needs-review"
