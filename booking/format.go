package booking

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Default check-in and check-out time texts.
const (
	DefaultCheckinTime  = " 15:00 - 00:00"
	DefaultCheckoutTime = " until 11:00"
)

// VATRate is the rate included in the total price.
const VATRate = 0.25

var ErrStayLength = errors.New("booking: check-out must be after check-in")

// Input is a reservation before formatting.
type Input struct {
	Checkin            string   `yaml:"checkin" json:"checkin" validate:"required,datetime=2006-01-02"`
	Checkout           string   `yaml:"checkout" json:"checkout" validate:"required,datetime=2006-01-02"`
	ConfirmationNumber string   `yaml:"confirmation_number" json:"confirmation_number" validate:"required"`
	PinCode            string   `yaml:"pin_code" json:"pin_code" validate:"required"`
	GuestName          string   `yaml:"guest_name" json:"guest_name" validate:"required"`
	CheckinTime        string   `yaml:"checkin_time,omitempty" json:"checkin_time,omitempty"`
	CheckoutTime       string   `yaml:"checkout_time,omitempty" json:"checkout_time,omitempty"`
	NumGuests          int      `yaml:"num_guests,omitempty" json:"num_guests,omitempty" validate:"gte=0"`
	RefundAmountTL     *float64 `yaml:"refund_amount_tl,omitempty" json:"refund_amount_tl,omitempty"`
	PriceTotalTL       *float64 `yaml:"price_total_tl,omitempty" json:"price_total_tl,omitempty"`
	PriceTotalDKK      *float64 `yaml:"price_total_dkk,omitempty" json:"price_total_dkk,omitempty"`
}

var validate = validator.New()

// FromDates formats in: day numbers, upper-case English month names,
// weekday names, the night count, the refund date as "2 January 2006", the
// upper-cased guest name and the price split into base and VAT.
func FromDates(in Input) (Data, error) {
	if err := validate.Struct(in); err != nil {
		return Data{}, fmt.Errorf("booking input: %w", err)
	}
	ci, err := time.Parse(dateLayout, in.Checkin)
	if err != nil {
		return Data{}, err
	}
	co, err := time.Parse(dateLayout, in.Checkout)
	if err != nil {
		return Data{}, err
	}
	if !co.After(ci) {
		return Data{}, ErrStayLength
	}

	d := Data{
		CheckinDay:         strconv.Itoa(ci.Day()),
		CheckinMonth:       strings.ToUpper(ci.Month().String()),
		CheckinWeekday:     ci.Weekday().String(),
		CheckinTime:        or(in.CheckinTime, DefaultCheckinTime),
		CheckoutDay:        strconv.Itoa(co.Day()),
		CheckoutMonth:      strings.ToUpper(co.Month().String()),
		CheckoutWeekday:    co.Weekday().String(),
		CheckoutTime:       or(in.CheckoutTime, DefaultCheckoutTime),
		Nights:             strconv.Itoa(int(co.Sub(ci).Hours() / 24)),
		ConfirmationNumber: in.ConfirmationNumber,
		PinCode:            in.PinCode,
		GuestName:          strings.ToUpper(in.GuestName),
		RefundDateStr:      ci.Format("2 January 2006"),
	}
	guests := in.NumGuests
	if guests == 0 {
		guests = 1
	}
	d.NumGuests = strconv.Itoa(guests)
	if in.RefundAmountTL != nil {
		d.RefundAmountTL = Thousands(*in.RefundAmountTL)
	}
	if in.PriceTotalTL != nil {
		total := *in.PriceTotalTL
		base := total / (1 + VATRate)
		d.PriceBaseTL = Thousands(base)
		d.PriceVATTL = Thousands(total - base)
		d.PriceTotalTL = Thousands(total)
	}
	if in.PriceTotalDKK != nil {
		d.PriceTotalDKK = Thousands(*in.PriceTotalDKK)
	}
	return d, nil
}

// Thousands rounds v half to even and groups the digits with commas.
func Thousands(v float64) string {
	n := int64(math.RoundToEven(v))
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// LoadInput reads an Input from a YAML (or JSON) file.
func LoadInput(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("failed to read booking file: %w", err)
	}
	var in Input
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return Input{}, fmt.Errorf("failed to parse booking file: %w", err)
	}
	return in, nil
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
