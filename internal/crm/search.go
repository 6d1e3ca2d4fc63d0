package crm

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// ItemQuery parameterizes the generic v2 item search.
type ItemQuery struct {
	Term   string
	Types  string // comma-separated record types: person, organization, lead
	Fields string // optional field scope, e.g. "email" or "email,custom_fields"
	Exact  bool
	Limit  int
}

func (q ItemQuery) encode() string {
	v := url.Values{}
	v.Set("term", q.Term)
	if q.Types != "" {
		v.Set("item_types", q.Types)
	}
	if q.Fields != "" {
		v.Set("fields", q.Fields)
	}
	if q.Exact {
		v.Set("exact_match", "1")
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v.Encode()
}

// SearchItems runs the generic v2 item search.
func (c *Client) SearchItems(ctx context.Context, q ItemQuery) ([]SearchItem, error) {
	var env itemsEnvelope
	if err := c.V2(ctx, "/itemSearch?"+q.encode(), &env); err != nil {
		return nil, err
	}
	return env.Data.Items, nil
}

// SearchPersons runs the v2 person search.
func (c *Client) SearchPersons(ctx context.Context, term, fields string, exact bool, limit int) ([]SearchItem, error) {
	v := url.Values{}
	v.Set("term", term)
	if fields != "" {
		v.Set("fields", fields)
	}
	if exact {
		v.Set("exact_match", "1")
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var env itemsEnvelope
	if err := c.V2(ctx, "/persons/search?"+v.Encode(), &env); err != nil {
		return nil, err
	}
	return env.Data.Items, nil
}

// FindPersonsByEmail runs the legacy v1 person lookup. Only presence
// matters to callers, so rows stay undecoded.
func (c *Client) FindPersonsByEmail(ctx context.Context, address string, limit int) ([]json.RawMessage, error) {
	v := url.Values{}
	v.Set("term", address)
	v.Set("search_by_email", "1")
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.V1(ctx, "/persons/find?"+v.Encode(), &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SearchOrganizationsLegacy runs the v1 organization search.
func (c *Client) SearchOrganizationsLegacy(ctx context.Context, term string, limit int) ([]SearchItem, error) {
	v := url.Values{}
	v.Set("term", term)
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var env legacyEnvelope
	if err := c.V1(ctx, "/organizations/search?"+v.Encode(), &env); err != nil {
		return nil, err
	}
	return env.items(), nil
}

// OrganizationDetail fetches one organization's full record via v1. The
// result is the raw decoded JSON so callers can scan custom fields that have
// no fixed schema.
func (c *Client) OrganizationDetail(ctx context.Context, id int64) (any, error) {
	var body map[string]any
	if err := c.V1(ctx, "/organizations/"+strconv.FormatInt(id, 10), &body); err != nil {
		return nil, err
	}
	if data, ok := body["data"]; ok && data != nil {
		return data, nil
	}
	return body, nil
}
