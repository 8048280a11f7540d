package pipedrive

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// EmptyValue is the formatted form of a missing value, whatever the field type.
const EmptyValue = "-"

const displayDateLayout = "1/2/2006"

var (
	printer = message.NewPrinter(language.AmericanEnglish)

	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}

	// Symbols are kept here because x/text's currency.Symbol formatter
	// separates symbol and amount with a space ("$ 1,234.50").
	currencySymbols = map[string]string{
		"USD": "$",
		"CAD": "CA$",
		"AUD": "A$",
		"EUR": "€",
		"GBP": "£",
		"JPY": "¥",
		"INR": "₹",
	}
)

// FieldType is the declared type of a CRM field. The set of variants is
// closed; each one formats its own values.
type FieldType interface {
	Name() string
	format(raw interface{}) string
}

type DateField struct{}

// MonetaryField amounts are shown in Currency, defaulting to USD.
type MonetaryField struct {
	Currency string
}

// NumericField covers integer fields and, with Decimal set, fractional ones.
type NumericField struct {
	Decimal bool
}

type EnumField struct {
	Options []Option
}

type UserField struct{}

type TextField struct{}

// Option is one choice of an enum field.
type Option struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

func (DateField) Name() string     { return "date" }
func (MonetaryField) Name() string { return "monetary" }
func (f NumericField) Name() string {
	if f.Decimal {
		return "decimal"
	}
	return "int"
}
func (EnumField) Name() string { return "enum" }
func (UserField) Name() string { return "user" }
func (TextField) Name() string { return "text" }

// ParseFieldType maps a CRM field_type to its variant. Unknown types are text.
func ParseFieldType(fieldType string, options []Option) FieldType {
	switch fieldType {
	case "date":
		return DateField{}
	case "monetary":
		return MonetaryField{}
	case "int":
		return NumericField{}
	case "double", "decimal":
		return NumericField{Decimal: true}
	case "enum", "set":
		return EnumField{Options: options}
	case "user":
		return UserField{}
	default:
		return TextField{}
	}
}

// FormatValue renders raw for display according to t. Missing values format
// to EmptyValue.
func FormatValue(raw interface{}, t FieldType) string {
	if isEmpty(raw) {
		return EmptyValue
	}
	if t == nil {
		t = TextField{}
	}
	return t.format(raw)
}

func isEmpty(raw interface{}) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

func (DateField) format(raw interface{}) string {
	s := stringValue(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(displayDateLayout)
		}
	}
	return s
}

func (f MonetaryField) format(raw interface{}) string {
	amount, ok := toDecimal(raw)
	if !ok {
		return stringValue(raw)
	}

	code := "USD"
	if f.Currency != "" {
		if unit, err := currency.ParseISO(f.Currency); err == nil {
			code = unit.String()
		}
	}
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code + " "
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	return sign + symbol + printer.Sprint(number.Decimal(amount.Round(2).InexactFloat64(), number.Scale(2)))
}

func (f NumericField) format(raw interface{}) string {
	n, ok := toDecimal(raw)
	if !ok {
		return stringValue(raw)
	}
	if n.IsInteger() {
		return printer.Sprint(number.Decimal(n.IntPart()))
	}
	return printer.Sprint(number.Decimal(n.InexactFloat64(), number.MaxFractionDigits(3)))
}

func (EnumField) format(raw interface{}) string {
	return stringValue(raw)
}

// Label returns the option label for id, or id itself when unknown.
func (f EnumField) Label(id string) string {
	for _, o := range f.Options {
		if o.ID == id {
			return o.Label
		}
	}
	return id
}

func (UserField) format(raw interface{}) string {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return stringValue(raw)
	}
	for _, key := range []string{"name", "email", "id", "value"} {
		if s := stringValue(m[key]); s != "" {
			return s
		}
	}
	return EmptyValue
}

func (TextField) format(raw interface{}) string {
	switch v := raw.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return stringValue(raw)
}

func toDecimal(raw interface{}) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	}
	return decimal.Zero, false
}
