package classify

import (
	"context"
	"strings"

	"crmscan/internal/crm"
	"crmscan/pkg/email"
)

// KnownDomain reports whether any CRM person or organization carries an
// address on the given domain, subdomains included. Five queries of
// decreasing precision run in sequence, stopping at the first hit; query
// failures are swallowed, so a fully failed check is simply false.
func (r *Resolver) KnownDomain(ctx context.Context, domain string) (bool, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return false, nil
	}

	personTerms := []string{"@" + d, d}
	for _, term := range personTerms {
		items, err := r.client.SearchPersons(ctx, term, "", false, 50)
		if err != nil {
			if fatal(err) {
				return false, err
			}
			r.swallow(ctx, "domain person search", err)
			continue
		}
		if anyOnDomain(items, d) {
			return true, nil
		}
	}

	queries := []crm.ItemQuery{
		{Term: "@" + d, Types: "person", Fields: "email", Limit: 50},
		{Term: "@" + d, Types: "organization", Fields: "email,custom_fields", Limit: 50},
		{Term: d, Types: "organization", Limit: 50},
	}
	for _, q := range queries {
		items, err := r.client.SearchItems(ctx, q)
		if err != nil {
			if fatal(err) {
				return false, err
			}
			r.swallow(ctx, "domain item search", err)
			continue
		}
		if anyOnDomain(items, d) {
			return true, nil
		}
	}
	return false, nil
}

func anyOnDomain(items []crm.SearchItem, d string) bool {
	for _, it := range items {
		for _, e := range crm.ExtractEmails(it) {
			if email.MatchesDomain(e, d) {
				return true
			}
		}
	}
	return false
}
