package crm

import (
	"bytes"
	"encoding/json"
)

// SearchItem is one row of a search result. The two API generations and the
// different record types disagree on where addresses live, so every field is
// optional and oddly-shaped values decode to their zero value instead of
// failing the whole response.
type SearchItem struct {
	ID           int64        `json:"id"`
	Item         SearchRecord `json:"item"`
	FieldMatches FlexMatches  `json:"field_matches"`
	Matches      FlexMatches  `json:"matches"`
}

// SearchRecord is the nested record payload of a search item.
type SearchRecord struct {
	ID             int64       `json:"id"`
	EmailAddresses []FlexEmail `json:"email_addresses"`
	Emails         []FlexEmail `json:"emails"`
	PrimaryEmail   string      `json:"primary_email"`
	Matches        FlexMatches `json:"matches"`
}

// RecordID returns the record identifier carried by the item, preferring the
// nested record's id over the row id. Zero means no id was present.
func (it SearchItem) RecordID() int64 {
	if it.Item.ID != 0 {
		return it.Item.ID
	}
	return it.ID
}

// FlexEmail decodes both {"value": "a@b.c"} objects and bare "a@b.c" strings.
type FlexEmail struct {
	Value string
}

func (f *FlexEmail) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &f.Value)
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		// unrecognized shape contributes nothing
		return nil
	}
	f.Value = obj.Value
	return nil
}

// FlexMatch decodes both {"content": "..."} objects and bare strings.
type FlexMatch struct {
	Content string
}

func (m *FlexMatch) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &m.Content)
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil
	}
	m.Content = obj.Content
	return nil
}

// FlexMatches decodes a single match object as a one-element list.
type FlexMatches []FlexMatch

func (m *FlexMatches) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var arr []FlexMatch
		if err := json.Unmarshal(b, &arr); err != nil {
			return nil
		}
		*m = arr
		return nil
	}
	var one FlexMatch
	if err := json.Unmarshal(b, &one); err != nil {
		return nil
	}
	*m = FlexMatches{one}
	return nil
}

// itemsEnvelope is the v2 search response wrapper.
type itemsEnvelope struct {
	Data struct {
		Items []SearchItem `json:"items"`
	} `json:"data"`
}

// legacyEnvelope tolerates the v1 search response, whose data member is
// either {"items": [...]} or a bare array.
type legacyEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (e legacyEnvelope) items() []SearchItem {
	if len(e.Data) == 0 {
		return nil
	}
	var wrapped struct {
		Items []SearchItem `json:"items"`
	}
	if err := json.Unmarshal(e.Data, &wrapped); err == nil && wrapped.Items != nil {
		return wrapped.Items
	}
	var arr []SearchItem
	if err := json.Unmarshal(e.Data, &arr); err == nil {
		return arr
	}
	return nil
}
