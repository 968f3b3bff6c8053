package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Project is a portfolio entry shown on the public site.
type Project struct {
	// ID is the unique identifier of the project.
	ID string `json:"id"`

	// Title is the human-readable name of the project.
	Title string `json:"title" validate:"required,max=200"`

	// Slug is the URL-safe identifier used by the public site.
	Slug string `json:"slug" validate:"omitempty,max=200"`

	// Description is the long-form case study text.
	Description string `json:"description"`

	// Category groups projects on the portfolio page (e.g., "branding").
	Category string `json:"category"`

	// Client is the name of the customer the project was made for.
	Client string `json:"client"`

	// Year is the year the project shipped.
	Year int `json:"year" validate:"omitempty,gte=1900,lte=2100"`

	// Featured marks projects promoted on the landing page.
	Featured bool `json:"featured"`

	// CoverImage is the URL of the media file used as the cover.
	CoverImage string `json:"coverImage"`

	// Media lists the filenames of uploaded files attached to the project.
	Media []string `json:"media"`

	// CustomFields carries arbitrary typed attributes set by the editor.
	CustomFields map[string]FieldValue `json:"customFields,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FieldKind discriminates the FieldValue variants.
type FieldKind int

const (
	FieldString FieldKind = iota + 1
	FieldNumber
	FieldBool
)

func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "bool"
	default:
		return "invalid"
	}
}

// FieldValue is a tagged union of the scalar values a custom field may hold.
// On the wire it is encoded as the bare JSON scalar.
type FieldValue struct {
	kind FieldKind
	str  string
	num  float64
	b    bool
}

var errInvalidFieldValue = errors.New("custom field must be a string, number or boolean")

func StringValue(s string) FieldValue  { return FieldValue{kind: FieldString, str: s} }
func NumberValue(n float64) FieldValue { return FieldValue{kind: FieldNumber, num: n} }
func BoolValue(b bool) FieldValue      { return FieldValue{kind: FieldBool, b: b} }

// Kind returns the variant held by the value.
func (v FieldValue) Kind() FieldKind { return v.kind }

// AsString returns the string variant and whether the value holds it.
func (v FieldValue) AsString() (string, bool) { return v.str, v.kind == FieldString }

// AsNumber returns the number variant and whether the value holds it.
func (v FieldValue) AsNumber() (float64, bool) { return v.num, v.kind == FieldNumber }

// AsBool returns the bool variant and whether the value holds it.
func (v FieldValue) AsBool() (bool, bool) { return v.b, v.kind == FieldBool }

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FieldString:
		return json.Marshal(v.str)
	case FieldNumber:
		return json.Marshal(v.num)
	case FieldBool:
		return json.Marshal(v.b)
	default:
		return nil, errInvalidFieldValue
	}
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errInvalidFieldValue
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		b, err := strconv.ParseBool(string(data))
		if err != nil {
			return errInvalidFieldValue
		}
		*v = BoolValue(b)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("custom field number: %w", err)
		}
		*v = NumberValue(n)
	default:
		return errInvalidFieldValue
	}
	return nil
}
