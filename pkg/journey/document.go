package journey

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/offerforge/offerforge/pkg/pricing"
)

// OfferDocument is a persisted offer as read back for editing. Every field
// is optional: older offers lack legs, dates or even the product type.
// Unknown fields are ignored and malformed values decode as absent.
type OfferDocument struct {
	ID          string              `json:"id"`
	ProductType string              `json:"productType"`
	Destination Destination         `json:"destination"`
	Duration    DocumentDuration    `json:"duration"`
	Markup      DocumentMarkup      `json:"markup"`
	Validity    DocumentValidity    `json:"validity"`
	Components  []DocumentComponent `json:"components"`
}

// DocumentDuration is the stored stay length.
type DocumentDuration struct {
	Nights pricing.Amount `json:"nights"`
	Days   pricing.Amount `json:"days"`
}

// DocumentMarkup is the stored markup.
type DocumentMarkup struct {
	Kind  string         `json:"kind"`
	Value pricing.Amount `json:"value"`
}

// DocumentValidity is the stored sale window.
type DocumentValidity struct {
	From FlexTime `json:"from"`
	To   FlexTime `json:"to"`
}

// DocumentComponent is one stored component.
type DocumentComponent struct {
	Slot    string             `json:"slot"`
	RefID   string             `json:"refId"`
	Display Display            `json:"display"`
	Pricing pricing.RawPricing `json:"pricing"`
	RoomID  string             `json:"roomId,omitempty"`
}

// UnmarshalJSON drops malformed documents' sections instead of failing.
func (d *OfferDocument) UnmarshalJSON(data []byte) error {
	*d = OfferDocument{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	decode := func(key string, into any) {
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, into)
		}
	}
	decode("id", &d.ID)
	decode("productType", &d.ProductType)
	decode("destination", &d.Destination)
	decode("duration", &d.Duration)
	decode("markup", &d.Markup)
	decode("validity", &d.Validity)

	if raw, ok := fields["components"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			for _, item := range items {
				var c DocumentComponent
				if err := json.Unmarshal(item, &c); err == nil {
					d.Components = append(d.Components, c)
				}
			}
		}
	}
	return nil
}

// FlexTime is a date that decodes from RFC 3339 timestamps or plain
// yyyy-mm-dd dates. Anything else decodes as unset.
type FlexTime struct {
	Time *time.Time
}

var flexLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexTime) UnmarshalJSON(data []byte) error {
	f.Time = nil
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || raw[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range flexLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			f.Time = &t
			return nil
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.Time == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f.Time.Format(time.RFC3339))
}
