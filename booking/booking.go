// Package booking holds the display strings written into a booking
// confirmation and the formatter that derives them from raw dates and
// amounts.
package booking

import (
	"sort"
)

// Data is the formatted text of one reservation. Optional fields are empty
// when the corresponding edit should be skipped.
type Data struct {
	CheckinDay         string `yaml:"checkin_day" json:"checkin_day"`
	CheckinMonth       string `yaml:"checkin_month" json:"checkin_month"`
	CheckinWeekday     string `yaml:"checkin_weekday" json:"checkin_weekday"`
	CheckinTime        string `yaml:"checkin_time" json:"checkin_time"`
	CheckoutDay        string `yaml:"checkout_day" json:"checkout_day"`
	CheckoutMonth      string `yaml:"checkout_month" json:"checkout_month"`
	CheckoutWeekday    string `yaml:"checkout_weekday" json:"checkout_weekday"`
	CheckoutTime       string `yaml:"checkout_time" json:"checkout_time"`
	Nights             string `yaml:"nights" json:"nights"`
	ConfirmationNumber string `yaml:"confirmation_number" json:"confirmation_number"`
	PinCode            string `yaml:"pin_code" json:"pin_code"`
	GuestName          string `yaml:"guest_name" json:"guest_name"`
	RefundDateStr      string `yaml:"refund_date_str" json:"refund_date_str"`

	NumGuests      string `yaml:"num_guests,omitempty" json:"num_guests,omitempty"`
	RefundAmountTL string `yaml:"refund_amount_tl,omitempty" json:"refund_amount_tl,omitempty"`
	PriceBaseTL    string `yaml:"price_base_tl,omitempty" json:"price_base_tl,omitempty"`
	PriceVATTL     string `yaml:"price_vat_tl,omitempty" json:"price_vat_tl,omitempty"`
	PriceTotalTL   string `yaml:"price_total_tl,omitempty" json:"price_total_tl,omitempty"`
	PriceTotalDKK  string `yaml:"price_total_dkk,omitempty" json:"price_total_dkk,omitempty"`
}

// Refund line texts built around RefundDateStr.
const (
	RefundLine1      = "You'll get a full refund if you cancel before 11:59"
	refundLine2Start = "on "
	refundLine2End   = ". If you cancel from 12:00 on"
	refundLine3End   = ", you'll get a TL"
	refundSuffix     = " refund."
)

// StaticFragments is text the patcher writes besides the field values.
var StaticFragments = []string{
	RefundLine1,
	refundLine2Start + refundLine2End,
	refundLine3End,
	refundSuffix,
	" until 11:00 15:00 - 00:00",
}

// RefundLine2 is the second refund line for d.
func (d Data) RefundLine2() string { return refundLine2Start + d.RefundDateStr + refundLine2End }

// RefundLine3 is the third refund line for d.
func (d Data) RefundLine3() string { return d.RefundDateStr + refundLine3End }

// Values returns every field value in declaration order.
func (d Data) Values() []string {
	return []string{
		d.CheckinDay, d.CheckinMonth, d.CheckinWeekday, d.CheckinTime,
		d.CheckoutDay, d.CheckoutMonth, d.CheckoutWeekday, d.CheckoutTime,
		d.Nights, d.ConfirmationNumber, d.PinCode, d.GuestName, d.RefundDateStr,
		d.NumGuests, d.RefundAmountTL, d.PriceBaseTL, d.PriceVATTL, d.PriceTotalTL, d.PriceTotalDKK,
	}
}

// Codepoints returns the sorted, distinct runes of every value and of
// static.
func (d Data) Codepoints(static ...string) []rune {
	set := make(map[rune]struct{})
	for _, group := range [][]string{d.Values(), static} {
		for _, s := range group {
			for _, r := range s {
				set[r] = struct{}{}
			}
		}
	}
	out := make([]rune, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
