package pipedrive

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Deal is a CRM deal record. Standard attributes have readable names; custom
// fields are keyed by opaque hashes.
type Deal map[string]interface{}

func (d Deal) ID() int64 {
	switch v := d["id"].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (d Deal) Title() string {
	return stringValue(d["title"])
}

// OrgName returns the linked organization's name, if any.
func (d Deal) OrgName() string {
	if name := stringValue(d["org_name"]); name != "" {
		return name
	}
	return nestedName(d["org_id"])
}

// PersonName returns the linked contact person's name, if any.
func (d Deal) PersonName() string {
	if name := stringValue(d["person_name"]); name != "" {
		return name
	}
	return nestedName(d["person_id"])
}

func (d Deal) Value() decimal.Decimal {
	v, _ := toDecimal(d["value"])
	return v
}

func (d Deal) Currency() string {
	return stringValue(d["currency"])
}

func nestedName(v interface{}) string {
	if m, ok := v.(map[string]interface{}); ok {
		return stringValue(m["name"])
	}
	return ""
}

// stringValue coerces a decoded JSON value to text. Numbers are written in
// plain decimal notation, never in exponent form.
func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// envelope is the common API response wrapper.
type envelope[T any] struct {
	Success        bool   `json:"success"`
	Data           T      `json:"data"`
	Error          string `json:"error,omitempty"`
	AdditionalData struct {
		Pagination struct {
			Start                 int  `json:"start"`
			Limit                 int  `json:"limit"`
			MoreItemsInCollection bool `json:"more_items_in_collection"`
			NextStart             int  `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

// dealField is a field definition as returned by the dealFields endpoint.
type dealField struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	FieldType string `json:"field_type"`
	EditFlag  bool   `json:"edit_flag"`
	Options   []struct {
		ID    interface{} `json:"id"`
		Label string      `json:"label"`
	} `json:"options"`
}
