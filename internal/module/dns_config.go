package module

import (
	"context"
	"slices"

	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/resource"
	"github.com/loykin/hypercore/internal/rest"
)

// EntryState says how desired entries combine with the configured ones.
type EntryState string

const (
	// EntrySet replaces the configured entries.
	EntrySet EntryState = "set"
	// EntryBefore prepends the desired entries.
	EntryBefore EntryState = "before"
	// EntryAfter appends the desired entries.
	EntryAfter EntryState = "after"
)

// ParseEntryState validates s.
func ParseEntryState(s string) (EntryState, error) {
	switch st := EntryState(s); st {
	case EntrySet, EntryBefore, EntryAfter:
		return st, nil
	default:
		return "", &errs.ConfigurationError{Field: "state", Value: s, Reason: "Must be one of set, before, after"}
	}
}

// Action is the HTTP verb family used to apply a DNS change.
type Action int

const (
	// ActionCreate issues POST; the endpoint overwrites both lists.
	ActionCreate Action = iota
	// ActionUpdate issues PATCH.
	ActionUpdate
)

func (a Action) String() string {
	if a == ActionCreate {
		return "create"
	}
	return "update"
}

// ActionFor returns the action applying state.
func ActionFor(state EntryState) Action {
	if state == EntrySet {
		return ActionCreate
	}
	return ActionUpdate
}

// BuildEntryList combines the configured entries api with desired according to
// state. A nil desired list leaves api untouched. Empty strings are dropped and
// duplicates removed keeping the first occurrence. changed reports whether the
// result differs from api.
func BuildEntryList(api, desired []string, state EntryState) ([]string, bool) {
	if desired == nil {
		return api, false
	}
	var combined []string
	switch state {
	case EntryBefore:
		combined = append(append(combined, desired...), api...)
	case EntryAfter:
		combined = append(append(combined, api...), desired...)
	default:
		combined = append(combined, desired...)
	}

	seen := make(map[string]struct{}, len(combined))
	out := make([]string, 0, len(combined))
	for _, e := range combined {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, !slices.Equal(out, api)
}

// DNSConfigParams are the inputs of RunDNSConfig. A nil list is left unchanged.
type DNSConfigParams struct {
	DNSServers    []string   `mapstructure:"dns_servers" yaml:"dns_servers"`
	SearchDomains []string   `mapstructure:"search_domains" yaml:"search_domains"`
	State         EntryState `mapstructure:"state" yaml:"state"`
}

// Validate requires a state and at least one list.
func (p DNSConfigParams) Validate() error {
	if _, err := ParseEntryState(string(p.State)); err != nil {
		return err
	}
	if p.DNSServers == nil && p.SearchDomains == nil {
		return &errs.ConfigurationError{Field: "dns_servers", Reason: "One of dns_servers, search_domains is required"}
	}
	return nil
}

// RunDNSConfig reconciles the cluster's DNS servers and search domains.
func RunDNSConfig(ctx context.Context, rt *Runtime, p DNSConfigParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	log := rt.logger("dns_config")

	current, err := resource.GetDNSConfig(ctx, rt.Client)
	if err != nil {
		return nil, err
	}
	before := current.Output()

	servers, serversChanged := BuildEntryList(current.ServerIPs, p.DNSServers, p.State)
	domains, domainsChanged := BuildEntryList(current.SearchDomains, p.SearchDomains, p.State)
	if !serversChanged && !domainsChanged {
		log.Debug("dns configuration unchanged", "uuid", current.UUID)
		return &Result{
			Changed:  false,
			Msg:      "DNS configuration already set to desired values.",
			Diff:     &Diff{Before: before, After: before},
			NewState: before,
		}, nil
	}

	action := ActionFor(p.State)
	path := rest.Join(constants.DNSConfigPath, current.UUID)
	payload := resource.NewDNSConfigPayload(domains, servers)
	log.Info("changing dns configuration", "action", action, "uuid", current.UUID,
		"search_domains", payload.SearchDomains, "server_ips", payload.ServerIPs, "check", rt.Check)

	var tag *rest.TaskTag
	if action == ActionCreate {
		tag, err = resource.ValidatedCreate(ctx, rt.Client, path, payload, rt.Check)
	} else {
		tag, err = resource.ValidatedUpdate(ctx, rt.Client, path, payload, rt.Check)
	}
	if err != nil {
		return nil, err
	}

	if rt.Check {
		after := resource.DNSConfig{
			UUID:          current.UUID,
			SearchDomains: payload.SearchDomains,
			ServerIPs:     payload.ServerIPs,
			LatestTaskTag: current.LatestTaskTag,
		}.Output()
		return &Result{
			Changed:  true,
			Msg:      "DNS configuration would be updated.",
			Diff:     &Diff{Before: before, After: after},
			NewState: after,
		}, nil
	}

	if _, err := rt.wait(ctx, tag); err != nil {
		return nil, err
	}
	updated, err := resource.GetDNSConfig(ctx, rt.Client)
	if err != nil {
		return nil, err
	}
	after := updated.Output()
	msg := "DNS configuration updated."
	if action == ActionCreate {
		msg = "DNS configuration replaced."
	}
	changed := !slices.Equal(current.ServerIPs, updated.ServerIPs) ||
		!slices.Equal(current.SearchDomains, updated.SearchDomains)

	return &Result{
		Changed:  changed,
		Msg:      msg,
		Diff:     &Diff{Before: before, After: after},
		NewState: after,
	}, nil
}
