// Package reconcile validates extracted line items against bookkeeping
// plausibility rules before anything reaches the ledger. It is pure: no I/O,
// no clock reads, so every boundary is testable.
package reconcile

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/model"
)

// UnknownCategoryReject and UnknownCategoryReview are the two handling modes
// for a category outside the whitelist.
const (
	UnknownCategoryReject = "reject"
	UnknownCategoryReview = "review"
)

// Reconciler applies the configured plausibility rules.
type Reconciler struct {
	cfg        config.ReconcileConfig
	categories map[string]string // lowercased -> canonical
	maxAmount  decimal.Decimal
}

// New builds a Reconciler. The category whitelist is matched
// case-insensitively against each item's canonical spelling.
func New(cfg config.ReconcileConfig) *Reconciler {
	cats := make(map[string]string, len(cfg.Categories))
	for _, c := range cfg.Categories {
		cats[strings.ToLower(c)] = c
	}
	return &Reconciler{
		cfg:        cfg,
		categories: cats,
		maxAmount:  decimal.NewFromFloat(cfg.MaxAmount),
	}
}

// Reconcile splits extracted items into ledger-ready rows and rejections.
// now anchors the date plausibility window.
func (r *Reconciler) Reconcile(result *model.ExtractionResult, now time.Time) (valid []model.LineItem, rejected []model.RejectedItem) {
	for _, ex := range result.Items {
		item := ex.Item
		if reason := r.check(item, now); reason != "" {
			rejected = append(rejected, model.RejectedItem{Item: item, Reason: reason})
			continue
		}

		canonical, known := r.categories[strings.ToLower(item.Category)]
		if known {
			item.Category = canonical
		} else {
			// check already rejected unknowns in reject mode, so this
			// is review mode: keep the row but flag it.
			item.Description = item.Description + " [" + model.NeedsReviewTag + "]"
		}
		valid = append(valid, item)
	}

	if len(rejected) > 0 {
		zap.L().Info("rejected line items",
			zap.String("messageID", result.MessageID),
			zap.Int("rejected", len(rejected)),
			zap.Int("valid", len(valid)))
	}
	return valid, rejected
}

// check returns the first rejection reason for an item, or "" if it passes.
// Structural invariants come from the item itself; the plausibility bounds
// and the category whitelist are domain rules owned here.
func (r *Reconciler) check(item model.LineItem, now time.Time) string {
	if err := item.Validate(); err != nil {
		return structuralReason(err)
	}

	past := now.AddDate(-r.cfg.MaxYearsPast, 0, 0)
	future := now.AddDate(r.cfg.MaxYearsFuture, 0, 0)
	if item.Date.Before(past) || item.Date.After(future) {
		return model.ReasonImplausibleDate
	}

	if item.Amount.Abs().GreaterThan(r.maxAmount) {
		return model.ReasonImplausibleAmount
	}

	if _, known := r.categories[strings.ToLower(item.Category)]; !known {
		if r.cfg.UnknownCategory != UnknownCategoryReview {
			return model.ReasonUnknownCategory
		}
	}
	return ""
}

// structuralReason maps a LineItem.Validate failure to the rejection reason
// of its highest-priority violated field.
func structuralReason(err error) string {
	fields, ok := err.(validation.Errors)
	if !ok {
		return model.ReasonInvalidDate
	}
	switch {
	case fields["date"] != nil:
		return model.ReasonInvalidDate
	case fields["description"] != nil:
		return model.ReasonEmptyDescription
	default:
		return model.ReasonZeroAmount
	}
}
