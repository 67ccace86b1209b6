package resource

import (
	"context"
	"encoding/json"

	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/rest"
)

// DNSConfig is the cluster's singleton DNS configuration.
type DNSConfig struct {
	UUID          string
	SearchDomains []string
	ServerIPs     []string
	// LatestTaskTag is the raw task object of the last change, if any.
	LatestTaskTag json.RawMessage
}

// DNSConfigFromAPI decodes a DNSConfig record.
func DNSConfigFromAPI(r rest.Record) (DNSConfig, error) {
	if err := requireFields(r, "DNSConfig", "uuid", "searchDomains", "serverIPs"); err != nil {
		return DNSConfig{}, err
	}
	cfg := DNSConfig{
		UUID:          r.Get("uuid").String(),
		SearchDomains: stringList(r, "searchDomains"),
		ServerIPs:     stringList(r, "serverIPs"),
	}
	if t := r.Get("latestTaskTag"); t.Exists() && t.IsObject() {
		cfg.LatestTaskTag = json.RawMessage(t.Raw)
	}
	return cfg, nil
}

func stringList(r rest.Record, path string) []string {
	items := r.Get(path).Array()
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.String())
	}
	return out
}

// ToAPI returns the input fields in API form.
func (c DNSConfig) ToAPI() map[string]any {
	return map[string]any{
		"uuid":          c.UUID,
		"searchDomains": nonNil(c.SearchDomains),
		"serverIPs":     nonNil(c.ServerIPs),
	}
}

// Output returns the configuration in operator form.
func (c DNSConfig) Output() map[string]any {
	var latest any
	if len(c.LatestTaskTag) > 0 {
		_ = json.Unmarshal(c.LatestTaskTag, &latest)
	}
	return map[string]any{
		"uuid":            c.UUID,
		"search_domains":  nonNil(c.SearchDomains),
		"server_ips":      nonNil(c.ServerIPs),
		"latest_task_tag": latest,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetDNSConfig returns the cluster's DNS configuration, which must exist.
func GetDNSConfig(ctx context.Context, rc *rest.Client) (*DNSConfig, error) {
	rec, _, err := rc.GetRecord(ctx, constants.DNSConfigPath, nil, true)
	if err != nil {
		return nil, err
	}
	cfg, err := DNSConfigFromAPI(rec)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DNSConfigPayload is the body of a DNS configuration change.
type DNSConfigPayload struct {
	SearchDomains []string `json:"searchDomains"`
	ServerIPs     []string `json:"serverIPs"`
}

// NewDNSConfigPayload builds a payload, encoding nil lists as empty arrays.
func NewDNSConfigPayload(searchDomains, serverIPs []string) DNSConfigPayload {
	return DNSConfigPayload{SearchDomains: nonNil(searchDomains), ServerIPs: nonNil(serverIPs)}
}

// Validate rejects empty entries. Server entries are passed through as given,
// since the cluster accepts host names as well as addresses.
func (p DNSConfigPayload) Validate() error {
	for _, d := range p.SearchDomains {
		if d == "" {
			return &errs.ConfigurationError{Field: "search_domains", Value: d, Reason: "Entries must not be empty"}
		}
	}
	for _, srv := range p.ServerIPs {
		if srv == "" {
			return &errs.ConfigurationError{Field: "dns_servers", Value: srv, Reason: "Entries must not be empty"}
		}
	}
	return nil
}
