package pipedrive

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultInvoiceNumberFieldKey is the deal field holding the accounting document number.
const DefaultInvoiceNumberFieldKey = "8f14e45fceea167a5a36dedd4bea2543a1b2c3d4"

var customFieldKeyPattern = regexp.MustCompile(`^[0-9a-f]{20,}$`)

//go:embed static_fields.yaml
var staticFieldsYAML []byte

var staticFields = mustParseFieldDefinitions(staticFieldsYAML)

// IsCustomFieldKey reports whether key has the opaque hash shape the CRM uses
// for tenant-defined fields.
func IsCustomFieldKey(key string) bool {
	return customFieldKeyPattern.MatchString(key)
}

// FieldDefinition describes one deal field.
type FieldDefinition struct {
	Key    string
	Name   string
	Type   FieldType
	Custom bool
}

type fieldDefinitionYAML struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Currency string   `yaml:"currency"`
	Options  []Option `yaml:"options"`
}

// ParseFieldDefinitions reads a YAML list of field definitions.
func ParseFieldDefinitions(data []byte) ([]FieldDefinition, error) {
	var raw []fieldDefinitionYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse field definitions: %w", err)
	}

	defs := make([]FieldDefinition, 0, len(raw))
	for _, r := range raw {
		if !IsCustomFieldKey(r.Key) {
			return nil, fmt.Errorf("parse field definitions: %q is not a custom field key", r.Key)
		}
		t := ParseFieldType(r.Type, r.Options)
		if m, ok := t.(MonetaryField); ok {
			m.Currency = r.Currency
			t = m
		}
		defs = append(defs, FieldDefinition{Key: r.Key, Name: r.Name, Type: t, Custom: true})
	}
	return defs, nil
}

func mustParseFieldDefinitions(data []byte) []FieldDefinition {
	defs, err := ParseFieldDefinitions(data)
	if err != nil {
		panic(err)
	}
	return defs
}

// StaticFields returns the field definitions compiled into the binary.
func StaticFields() []FieldDefinition {
	return append([]FieldDefinition(nil), staticFields...)
}

// FieldTable resolves field keys to definitions. It is immutable; reloading
// builds a new table.
type FieldTable struct {
	static  map[string]FieldDefinition
	dynamic map[string]FieldDefinition
}

func NewFieldTable(static, dynamic []FieldDefinition) *FieldTable {
	t := &FieldTable{
		static:  make(map[string]FieldDefinition, len(static)),
		dynamic: make(map[string]FieldDefinition, len(dynamic)),
	}
	for _, d := range static {
		t.static[d.Key] = d
	}
	for _, d := range dynamic {
		t.dynamic[d.Key] = d
	}
	return t
}

// Resolve looks key up in the static table, then the dynamic one.
func (t *FieldTable) Resolve(key string) (FieldDefinition, bool) {
	if t == nil {
		return FieldDefinition{}, false
	}
	if d, ok := t.static[key]; ok {
		return d, true
	}
	d, ok := t.dynamic[key]
	return d, ok
}

// Definitions returns every known definition sorted by name, static entries
// shadowing dynamic ones with the same key.
func (t *FieldTable) Definitions() []FieldDefinition {
	merged := make(map[string]FieldDefinition, len(t.static)+len(t.dynamic))
	for k, d := range t.dynamic {
		merged[k] = d
	}
	for k, d := range t.static {
		merged[k] = d
	}

	defs := make([]FieldDefinition, 0, len(merged))
	for _, d := range merged {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Name != defs[j].Name {
			return defs[i].Name < defs[j].Name
		}
		return defs[i].Key < defs[j].Key
	})
	return defs
}

// FieldLister lists the CRM's deal field definitions.
type FieldLister interface {
	ListDealFields(ctx context.Context) ([]FieldDefinition, error)
}

// LoadFieldTable fetches the current deal fields and returns a new table
// over static and the fetched custom fields.
func LoadFieldTable(ctx context.Context, lister FieldLister, static []FieldDefinition) (*FieldTable, error) {
	fetched, err := lister.ListDealFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("load field table: %w", err)
	}

	dynamic := make([]FieldDefinition, 0, len(fetched))
	for _, d := range fetched {
		if IsCustomFieldKey(d.Key) {
			d.Custom = true
			dynamic = append(dynamic, d)
		}
	}
	return NewFieldTable(static, dynamic), nil
}

// CustomFieldValue is a custom field's raw value on a deal.
type CustomFieldValue struct {
	Key   string
	Value interface{}
}

// ExtractCustomFields returns the deal's custom fields sorted by key.
func ExtractCustomFields(deal Deal) []CustomFieldValue {
	var out []CustomFieldValue
	for k, v := range deal {
		if IsCustomFieldKey(k) {
			out = append(out, CustomFieldValue{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// FormattedField is a custom field ready for display.
type FormattedField struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NonEmptyFormattedFields formats the deal's custom fields, dropping those
// without a value. Unknown keys are named by their key and shown as text.
func (t *FieldTable) NonEmptyFormattedFields(deal Deal) []FormattedField {
	var out []FormattedField
	for _, cf := range ExtractCustomFields(deal) {
		def, ok := t.Resolve(cf.Key)
		if !ok {
			def = FieldDefinition{Key: cf.Key, Name: cf.Key, Type: TextField{}}
		}

		fieldType := def.Type
		// Monetary values carry their currency in a companion attribute.
		if m, ok := fieldType.(MonetaryField); ok {
			if code := stringValue(deal[cf.Key+"_currency"]); code != "" {
				m.Currency = code
				fieldType = m
			}
		}

		value := FormatValue(cf.Value, fieldType)
		if value == EmptyValue {
			continue
		}
		out = append(out, FormattedField{Key: cf.Key, Name: def.Name, Value: value})
	}
	return out
}

// InvoiceNumber returns the document number stored in the deal's key field.
// When the field is declared as an option list, the option label is the number.
func (t *FieldTable) InvoiceNumber(deal Deal, key string) (string, bool) {
	raw := deal[key]
	if isEmpty(raw) {
		return "", false
	}
	number := stringValue(raw)
	if def, ok := t.Resolve(key); ok {
		if enum, ok := def.Type.(EnumField); ok {
			number = enum.Label(number)
		}
	}
	return number, true
}
