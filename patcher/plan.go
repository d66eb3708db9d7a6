package patcher

import (
	"github.com/wudi/bookingpdf/booking"
	"github.com/wudi/bookingpdf/contentstream/editor"
	"github.com/wudi/bookingpdf/observability"
	"github.com/wudi/bookingpdf/template"
)

// step is the replacement text of one field and, for centred fields, the x
// coordinate and font size it is placed with.
type step struct {
	text string
	x    float64
	size float64
	skip bool
}

// plan resolves every field of one booking before any edit runs.
type plan struct {
	cfg    *template.Config
	steps  map[template.Field]step
	logger observability.Logger
}

func newPlan(e *Engine, d booking.Data, cfg *template.Config) *plan {
	c, s := cfg.ColumnCenters, cfg.FontSizes
	bold := func(text string, size, center float64) step {
		return step{text: text, size: size, x: e.bold.Metrics.CenteredX(text, size, center)}
	}
	// The editor turns a weekday's x into a Td offset from the month anchor.
	weekday := func(text string, center float64) step {
		return step{text: text, size: s.Weekday, x: e.italic.Metrics.CenteredX(text, s.Weekday, center)}
	}
	optional := func(text string) step { return step{text: text, skip: text == ""} }

	steps := map[template.Field]step{
		template.Confirmation:    {text: d.ConfirmationNumber},
		template.PIN:             {text: d.PinCode},
		template.GuestName:       {text: d.GuestName},
		template.CheckinDay:      bold(d.CheckinDay, s.Day, c.Checkin),
		template.CheckinMonth:    bold(d.CheckinMonth, s.Month, c.Checkin),
		template.CheckinWeekday:  weekday(d.CheckinWeekday, c.Checkin),
		template.CheckinTime:     {text: d.CheckinTime},
		template.CheckoutDay:     bold(d.CheckoutDay, s.Day, c.Checkout),
		template.CheckoutMonth:   bold(d.CheckoutMonth, s.Month, c.Checkout),
		template.CheckoutWeekday: weekday(d.CheckoutWeekday, c.Checkout),
		template.CheckoutTime:    {text: d.CheckoutTime},
		template.Nights:          bold(d.Nights, s.Day, c.Nights),
		template.RefundLine1:     {text: booking.RefundLine1},
		template.RefundLine2:     {text: d.RefundLine2()},
		template.RefundLine3:     {text: d.RefundLine3()},
		template.RefundTLAmount:  optional(d.RefundAmountTL),
		template.NumGuests:       {text: d.NumGuests, skip: d.NumGuests == "" || d.NumGuests == "1"},
		template.PriceBaseTL:     optional(d.PriceBaseTL),
		template.PriceVATTL:      optional(d.PriceVATTL),
		template.PriceTotalTL:    optional(d.PriceTotalTL),
		template.PriceTotalDKK:   optional(d.PriceTotalDKK),
	}
	return &plan{cfg: cfg, steps: steps, logger: e.logger}
}

// run applies the fields in template.Fields order.
func (p *plan) run(ed *editor.Editor) {
	for _, f := range template.Fields {
		st := p.steps[f]
		if st.skip {
			p.logger.Debug("field skipped", observability.String("field", string(f)))
			continue
		}
		rule, ok := p.cfg.Rule(f)
		if !ok {
			if f == template.RefundTLAmount {
				ed.ReplaceRefundAmount(string(f), st.text)
				continue
			}
			p.logger.Debug("field has no rule", observability.String("field", string(f)))
			continue
		}
		p.apply(ed, f, rule, st)
	}
}

func (p *plan) apply(ed *editor.Editor, f template.Field, rule template.Rule, st step) bool {
	name := string(f)
	switch rule.Kind {
	case template.Simple:
		return ed.ReplaceSimple(name, rule.Old, st.text, rule.Context)
	case template.Positioned:
		return ed.ReplacePositioned(name, rule.OldX, rule.Y, rule.Old, st.text, st.x)
	case template.Arrayed:
		re, err := rule.Regexp()
		if err != nil {
			p.logger.Error("bad pattern", observability.String("field", name), observability.Error("error", err))
			return false
		}
		text := st.text
		if f == template.GuestName {
			// The arrayed name pattern swallows the space before the name.
			text = " " + text
		}
		return ed.ReplaceArrayed(name, re, text, rule.Y, st.x, rule.Centers())
	case template.Weekday:
		return ed.ReplaceWeekday(name, rule.Old, st.text, rule.Y, st.x, st.size)
	}
	return false
}
