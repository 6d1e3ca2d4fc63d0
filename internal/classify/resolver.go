package classify

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"crmscan/internal/crm"
	"crmscan/pkg/email"
)

// Config tunes a Resolver.
type Config struct {
	CheckLeads         bool
	DeepOrgDetailLimit int           // detail fetches per inconclusive email
	Throttle           time.Duration // pacing between detail fetches
}

// Resolver orchestrates the multi-tier lookup for one address. It performs
// no caching itself; the engine layers the email and domain caches above it.
type Resolver struct {
	client *crm.Client
	cfg    Config
	logger *slog.Logger

	// DomainCheck answers "does any CRM record live on this domain". The
	// engine points it at the cached, deduplicated check; when unset the
	// uncached KnownDomain is used directly.
	DomainCheck func(ctx context.Context, domain string) (bool, error)

	limiter *rate.Limiter
}

// New constructs a Resolver.
func New(client *crm.Client, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.DeepOrgDetailLimit <= 0 {
		cfg.DeepOrgDetailLimit = 6
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.Throttle), 1),
	}
}

// Resolve classifies one address, short-circuiting at the first exact match.
// Individual lookup failures count as "no evidence"; only a failure that
// makes every lookup impossible (no token) is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, address string) (Status, error) {
	e := email.Normalize(address)
	if e == "" || !strings.Contains(e, "@") {
		return StatusGreen, nil
	}

	found, err := r.personExists(ctx, e)
	if err != nil {
		return StatusError, err
	}
	if found {
		return StatusRed, nil
	}

	if r.cfg.CheckLeads {
		found, err = r.leadExists(ctx, e)
		if err != nil {
			return StatusError, err
		}
		if found {
			return StatusRed, nil
		}
	}

	found, err = r.orgExists(ctx, e)
	if err != nil {
		return StatusError, err
	}
	if found {
		return StatusRed, nil
	}

	if d := email.Domain(e); d != "" {
		check := r.DomainCheck
		if check == nil {
			check = r.KnownDomain
		}
		known, err := check(ctx, d)
		if err != nil {
			return StatusError, err
		}
		if known {
			return StatusYellow, nil
		}
	}
	return StatusGreen, nil
}

// fatal reports errors no lookup path can recover from: both the missing
// token and a token the CRM rejects fail every lookup the same way.
func fatal(err error) bool {
	return errors.Is(err, crm.ErrUnauthenticated) || errors.Is(err, crm.ErrUnauthorized)
}

func (r *Resolver) swallow(ctx context.Context, what string, err error) {
	r.logger.DebugContext(ctx, "lookup yielded no evidence",
		"lookup", what,
		"error", err,
	)
}

// personExists checks the current person search with exact matching, falling
// back to the legacy find-by-email lookup.
func (r *Resolver) personExists(ctx context.Context, e string) (bool, error) {
	items, err := r.client.SearchPersons(ctx, e, "email", true, 1)
	if err == nil && len(items) > 0 {
		return true, nil
	}
	if err != nil {
		if fatal(err) {
			return false, err
		}
		r.swallow(ctx, "person search", err)
	}

	persons, err := r.client.FindPersonsByEmail(ctx, e, 1)
	if err != nil {
		if fatal(err) {
			return false, err
		}
		r.swallow(ctx, "legacy person find", err)
		return false, nil
	}
	return len(persons) > 0, nil
}

func (r *Resolver) leadExists(ctx context.Context, e string) (bool, error) {
	items, err := r.client.SearchItems(ctx, crm.ItemQuery{
		Term:   e,
		Types:  "lead",
		Fields: "email",
		Exact:  true,
		Limit:  1,
	})
	if err != nil {
		if fatal(err) {
			return false, err
		}
		r.swallow(ctx, "lead search", err)
		return false, nil
	}
	return len(items) > 0, nil
}

// orgExists runs three searches of decreasing strictness looking for an
// exact address hit, while collecting candidate organization ids. If search
// stays inconclusive, up to DeepOrgDetailLimit candidates are fetched in
// full and their fields scanned for the address. Detail fetches are paced to
// respect rate limits.
func (r *Resolver) orgExists(ctx context.Context, e string) (bool, error) {
	queries := []crm.ItemQuery{
		{Term: e, Types: "organization", Fields: "email,custom_fields", Exact: true, Limit: 50},
		{Term: e, Types: "organization", Exact: true, Limit: 50},
		{Term: e, Types: "organization", Limit: 50},
	}

	var candidates []int64
	seen := map[int64]bool{}
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}

	for _, q := range queries {
		items, err := r.client.SearchItems(ctx, q)
		if err != nil {
			if fatal(err) {
				return false, err
			}
			r.swallow(ctx, "organization search", err)
			continue
		}
		for _, it := range items {
			if slices.Contains(crm.ExtractEmails(it), e) {
				return true, nil
			}
			add(it.RecordID())
		}
	}

	legacy, err := r.client.SearchOrganizationsLegacy(ctx, e, 50)
	if err != nil {
		if fatal(err) {
			return false, err
		}
		r.swallow(ctx, "legacy organization search", err)
	}
	for _, it := range legacy {
		add(it.RecordID())
	}

	if len(candidates) > r.cfg.DeepOrgDetailLimit {
		candidates = candidates[:r.cfg.DeepOrgDetailLimit]
	}
	for _, id := range candidates {
		if err := r.limiter.Wait(ctx); err != nil {
			break
		}
		detail, err := r.client.OrganizationDetail(ctx, id)
		if err != nil {
			if fatal(err) {
				return false, err
			}
			r.swallow(ctx, "organization detail", err)
			continue
		}
		if containsEmail(detail, e) {
			return true, nil
		}
	}
	return false, nil
}
