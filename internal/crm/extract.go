package crm

import "crmscan/pkg/email"

// ExtractEmails collects every address a search item may carry, across the
// shapes the two API generations use: email_addresses rows, legacy emails
// rows, a primary_email scalar, and free-text field matches. Values are
// normalized and deduplicated; absent shapes contribute nothing.
func ExtractEmails(it SearchItem) []string {
	var out []string
	seen := map[string]bool{}
	push := func(v string) {
		e := email.Normalize(v)
		if e == "" || seen[e] {
			return
		}
		seen[e] = true
		out = append(out, e)
	}

	for _, x := range it.Item.EmailAddresses {
		push(x.Value)
	}
	for _, x := range it.Item.Emails {
		push(x.Value)
	}
	push(it.Item.PrimaryEmail)

	matches := it.FieldMatches
	if len(matches) == 0 {
		matches = it.Matches
	}
	if len(matches) == 0 {
		matches = it.Item.Matches
	}
	for _, m := range matches {
		push(m.Content)
	}
	return out
}
