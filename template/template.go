// Package template describes where the per-booking fields live in one
// booking confirmation layout: column centres, font resource names, font
// sizes and one replacement rule per field.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// Field names a patchable piece of the document.
type Field string

const (
	Confirmation    Field = "confirmation"
	PIN             Field = "pin"
	GuestName       Field = "guest_name"
	CheckinDay      Field = "checkin_day"
	CheckinMonth    Field = "checkin_month"
	CheckinWeekday  Field = "checkin_weekday"
	CheckinTime     Field = "checkin_time"
	CheckoutDay     Field = "checkout_day"
	CheckoutMonth   Field = "checkout_month"
	CheckoutWeekday Field = "checkout_weekday"
	CheckoutTime    Field = "checkout_time"
	Nights          Field = "nights"
	RefundLine1     Field = "refund_line1"
	RefundLine2     Field = "refund_line2"
	RefundLine3     Field = "refund_line3"
	RefundTLAmount  Field = "refund_tl_amount"
	NumGuests       Field = "num_guests"
	PriceBaseTL     Field = "price_base_tl"
	PriceVATTL      Field = "price_vat_tl"
	PriceTotalTL    Field = "price_total_tl"
	PriceTotalDKK   Field = "price_total_dkk"
)

// Fields lists every field in the order edits are applied.
var Fields = []Field{
	Confirmation, PIN, GuestName,
	CheckinDay, CheckinMonth, CheckinWeekday, CheckinTime,
	CheckoutDay, CheckoutMonth, CheckoutWeekday, CheckoutTime,
	Nights,
	RefundLine2, RefundLine3, RefundLine1, RefundTLAmount,
	NumGuests,
	PriceBaseTL, PriceVATTL, PriceTotalTL, PriceTotalDKK,
}

// Known reports whether f is one of Fields.
func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// Centered reports whether the field is drawn centred on a layout column.
func (f Field) Centered() bool {
	switch f {
	case CheckinDay, CheckinMonth, CheckinWeekday,
		CheckoutDay, CheckoutMonth, CheckoutWeekday, Nights:
		return true
	}
	return false
}

// IsWeekday reports whether f is one of the weekday fields.
func (f Field) IsWeekday() bool { return f == CheckinWeekday || f == CheckoutWeekday }

// Kind selects the replacement strategy of a Rule.
type Kind string

const (
	// Simple replaces (Old)Tj, optionally the first one after Context.
	Simple Kind = "simple"
	// Positioned moves the "OldX Y Tm" operator and replaces the (Old)Tj after it.
	Positioned Kind = "positioned"
	// Arrayed replaces the first match of Pattern with one string. With Y set
	// the nearest preceding Tm at that y is moved as well.
	Arrayed Kind = "arrayed"
	// Weekday rewrites the Td displacement from the anchor Tm at Y and
	// replaces (Old)Tj.
	Weekday Kind = "weekday"
)

// Rule locates one field in the content stream. Which members are used
// depends on Kind.
type Rule struct {
	Kind    Kind   `yaml:"kind" json:"kind" validate:"required,oneof=simple positioned arrayed weekday"`
	Old     string `yaml:"old_text,omitempty" json:"old_text,omitempty"`
	Context string `yaml:"context,omitempty" json:"context,omitempty"`
	OldX    string `yaml:"old_tm_x,omitempty" json:"old_tm_x,omitempty" validate:"omitempty,numeric"`
	Y       string `yaml:"tm_y,omitempty" json:"tm_y,omitempty" validate:"omitempty,numeric"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

func SimpleRule(old, context string) Rule { return Rule{Kind: Simple, Old: old, Context: context} }

func PositionedRule(oldX, y, old string) Rule {
	return Rule{Kind: Positioned, OldX: oldX, Y: y, Old: old}
}

// ArrayedRule builds an Arrayed rule; anchorY may be empty.
func ArrayedRule(pattern, anchorY string) Rule {
	return Rule{Kind: Arrayed, Pattern: pattern, Y: anchorY}
}

func WeekdayRule(old, anchorY string) Rule { return Rule{Kind: Weekday, Old: old, Y: anchorY} }

// Regexp compiles the Arrayed pattern.
func (r Rule) Regexp() (*regexp.Regexp, error) {
	return regexp.Compile(r.Pattern)
}

// Centers reports whether an Arrayed rule also re-centres its text.
func (r Rule) Centers() bool { return r.Kind == Arrayed && r.Y != "" }

// check enforces the members each kind needs and forbids the ones it ignores.
func (r Rule) check(field Field) error {
	path := "patterns." + string(field)
	need := func(name, v string) error {
		if v == "" {
			return NewConfigError(path+"."+name, fmt.Sprintf("required for kind %s", r.Kind))
		}
		return nil
	}
	unused := func(name, v string) error {
		if v != "" {
			return NewConfigError(path+"."+name, fmt.Sprintf("not used by kind %s", r.Kind))
		}
		return nil
	}

	var errs []error
	switch r.Kind {
	case Simple:
		errs = append(errs, need("old_text", r.Old), unused("old_tm_x", r.OldX), unused("tm_y", r.Y), unused("pattern", r.Pattern))
	case Positioned:
		errs = append(errs, need("old_tm_x", r.OldX), need("tm_y", r.Y), need("old_text", r.Old), unused("context", r.Context), unused("pattern", r.Pattern))
		if !field.Centered() {
			errs = append(errs, NewConfigError(path+".kind", "positioned rules need a centred field"))
		}
	case Arrayed:
		errs = append(errs, need("pattern", r.Pattern), unused("old_text", r.Old), unused("context", r.Context), unused("old_tm_x", r.OldX))
		if r.Pattern != "" {
			if _, err := r.Regexp(); err != nil {
				errs = append(errs, &ConfigError{Field: path + ".pattern", Message: "invalid regular expression", Err: err})
			}
		}
		if r.Y != "" && !field.Centered() {
			errs = append(errs, NewConfigError(path+".tm_y", "only centred fields can be re-positioned"))
		}
	case Weekday:
		errs = append(errs, need("old_text", r.Old), need("tm_y", r.Y), unused("context", r.Context), unused("old_tm_x", r.OldX), unused("pattern", r.Pattern))
		if !field.IsWeekday() {
			errs = append(errs, NewConfigError(path+".kind", "weekday rules apply to weekday fields only"))
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ColumnCenters are the x coordinates the day, month and weekday of each
// column are centred on.
type ColumnCenters struct {
	Checkin  float64 `yaml:"checkin" json:"checkin" validate:"gt=0"`
	Checkout float64 `yaml:"checkout" json:"checkout" validate:"gt=0"`
	Nights   float64 `yaml:"nights" json:"nights" validate:"gt=0"`
}

// FontNames lists the font resource names of each replacement font role.
type FontNames struct {
	Bold    []string `yaml:"bold" json:"bold" validate:"dive,required"`
	Italic  []string `yaml:"italic" json:"italic" validate:"dive,required"`
	Regular []string `yaml:"regular" json:"regular" validate:"dive,required"`
}

// FontSizes are the point sizes used for centring.
type FontSizes struct {
	Day     float64 `yaml:"day" json:"day" validate:"gt=0"`
	Month   float64 `yaml:"month" json:"month" validate:"gt=0"`
	Weekday float64 `yaml:"weekday" json:"weekday" validate:"gt=0"`
}

// Config is the complete description of one template layout.
type Config struct {
	ColumnCenters ColumnCenters  `yaml:"column_centers" json:"column_centers"`
	FontNames     FontNames      `yaml:"font_names" json:"font_names"`
	FontSizes     FontSizes      `yaml:"font_sizes" json:"font_sizes"`
	Patterns      map[Field]Rule `yaml:"patterns" json:"patterns" validate:"dive"`
}

// Rule returns the rule for f.
func (c *Config) Rule(f Field) (Rule, bool) {
	r, ok := c.Patterns[f]
	return r, ok
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.FontNames = FontNames{
		Bold:    append([]string(nil), c.FontNames.Bold...),
		Italic:  append([]string(nil), c.FontNames.Italic...),
		Regular: append([]string(nil), c.FontNames.Regular...),
	}
	out.Patterns = make(map[Field]Rule, len(c.Patterns))
	for f, r := range c.Patterns {
		out.Patterns[f] = r
	}
	return &out
}

// normalize prefixes font resource names with '/'.
func (c *Config) normalize() {
	for _, names := range [][]string{c.FontNames.Bold, c.FontNames.Italic, c.FontNames.Regular} {
		for i, n := range names {
			if n != "" && !strings.HasPrefix(n, "/") {
				names[i] = "/" + n
			}
		}
	}
}

// Default returns the configuration of the reference booking template.
func Default() *Config {
	return &Config{
		ColumnCenters: ColumnCenters{Checkin: 364.9, Checkout: 448.0, Nights: 545.5},
		FontNames: FontNames{
			Bold:    []string{"/TT0", "/TT9", "/TT12"},
			Italic:  []string{"/TT13"},
			Regular: []string{"/TT3", "/TT4"},
		},
		FontSizes: FontSizes{Day: 19.5, Month: 7.5, Weekday: 7.5},
		Patterns: map[Field]Rule{
			Confirmation:    ArrayedRule(`\[\(5087\.509\)-?\d*\s*\(\.967\)\]TJ`, ""),
			PIN:             SimpleRule("0751", "PIN C"),
			GuestName:       ArrayedRule(`\[\(\s*CA\)\d+\s*\(GRI ONCEK\)\]TJ`, ""),
			CheckinDay:      PositionedRule("354.1875", "498.1125", "30"),
			CheckinMonth:    ArrayedRule(`\[\(MAR\)\d+\s*\(CH\)\]TJ`, "486.6125"),
			CheckinWeekday:  WeekdayRule("Monday", "486.6125"),
			CheckinTime:     ArrayedRule(`\[\(\s*15:0\)\d*\s*\(0 - 00\)\d*\s*\(:00\)\]TJ`, ""),
			CheckoutDay:     PositionedRule("441.7625", "498.1125", "7"),
			CheckoutMonth:   PositionedRule("436.8625", "486.6125", "APRIL"),
			CheckoutWeekday: WeekdayRule("Tuesday", "486.6125"),
			CheckoutTime:    ArrayedRule(`\[\(\s*until 11\)\d*\s*\(:00\)\]TJ`, ""),
			Nights:          PositionedRule("539.475", "498.1125", "8"),
			RefundLine1:     ArrayedRule(`\[\(Y\)88\s*\(ou'll get a full r\)-?\d*\s*\(efund if you cancel before 11:\)\d*\s*\(59\)\]TJ`, ""),
			RefundLine2:     SimpleRule("on 30 March 2026. If you cancel from 12:00 on", ""),
			RefundLine3:     SimpleRule("30 March 2026, you'll get a TL", ""),
			PriceBaseTL:     ArrayedRule(`\[\(2\)-?\d*\s*\(1,727\)\]TJ`, ""),
			PriceVATTL:      ArrayedRule(`\[\(5\)-?\d*\s*\(,431\)\]TJ`, ""),
			PriceTotalTL:    SimpleRule("27,158", ""),
			PriceTotalDKK:   ArrayedRule(`\[\(3,91\)-?\d*\s*\(5\)\]TJ`, ""),
		},
	}
}
