package resource

import (
	"context"
	"strings"

	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/rest"
)

// AffinityStrategy is a VM's node placement policy.
type AffinityStrategy struct {
	StrictAffinity    bool   `json:"strictAffinity"`
	PreferredNodeUUID string `json:"preferredNodeUUID"`
	BackupNodeUUID    string `json:"backupNodeUUID"`
}

// VM is a virtual machine (VirDomain).
type VM struct {
	UUID        string
	Name        string
	Description string
	Memory      int64
	VCPU        int
	// PowerState is server reported.
	PowerState string
	Tags       []string
	// NodeUUID is the node the VM currently runs on; server reported.
	NodeUUID string
	Affinity AffinityStrategy
}

// VMFromAPI decodes a VirDomain record.
func VMFromAPI(r rest.Record) (VM, error) {
	if err := requireFields(r, "VirDomain", "uuid", "name"); err != nil {
		return VM{}, err
	}
	vm := VM{
		UUID:        r.Get("uuid").String(),
		Name:        r.Get("name").String(),
		Description: r.Get("description").String(),
		Memory:      r.Get("mem").Int(),
		VCPU:        int(r.Get("numVCPU").Int()),
		PowerState:  r.Get("state").String(),
		Tags:        splitTags(r.Get("tags").String()),
		NodeUUID:    r.Get("nodeUUID").String(),
		Affinity: AffinityStrategy{
			StrictAffinity:    r.Get("affinityStrategy.strictAffinity").Bool(),
			PreferredNodeUUID: r.Get("affinityStrategy.preferredNodeUUID").String(),
			BackupNodeUUID:    r.Get("affinityStrategy.backupNodeUUID").String(),
		},
	}
	return vm, nil
}

// ToAPI returns the input fields of the VM in API form. Tags are comma-joined.
func (v VM) ToAPI() map[string]any {
	return map[string]any{
		"uuid":             v.UUID,
		"name":             v.Name,
		"description":      v.Description,
		"mem":              v.Memory,
		"numVCPU":          v.VCPU,
		"tags":             strings.Join(v.Tags, ","),
		"affinityStrategy": v.Affinity,
	}
}

// Output returns the VM in operator form.
func (v VM) Output() map[string]any {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"uuid":        v.UUID,
		"vm_name":     v.Name,
		"description": v.Description,
		"memory":      v.Memory,
		"vcpu":        v.VCPU,
		"power_state": strings.ToLower(v.PowerState),
		"tags":        tags,
		"node_uuid":   v.NodeUUID,
	}
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetVMByName resolves the single VM named name. Nil is returned when absent
// and mustExist is false.
func GetVMByName(ctx context.Context, rc *rest.Client, name string, mustExist bool) (*VM, error) {
	if name == "" {
		return nil, &errs.ConfigurationError{Field: "vm_name", Value: name, Reason: "Value must not be empty"}
	}
	rec, found, err := rc.GetRecord(ctx, constants.VirDomainPath, rest.Filter{"name": name}, mustExist)
	if err != nil || !found {
		return nil, err
	}
	vm, err := VMFromAPI(rec)
	if err != nil {
		return nil, err
	}
	return &vm, nil
}

// NodeAffinity is the operator view of a VM's affinity with nodes resolved.
type NodeAffinity struct {
	StrictAffinity bool           `json:"strict_affinity" yaml:"strict_affinity"`
	PreferredNode  map[string]any `json:"preferred_node" yaml:"preferred_node"`
	BackupNode     map[string]any `json:"backup_node" yaml:"backup_node"`
}

// ResolveAffinity looks up the nodes named by strategy. Nodes that are unset or
// no longer exist are reported with empty attributes.
func ResolveAffinity(ctx context.Context, rc *rest.Client, strategy AffinityStrategy) (NodeAffinity, error) {
	preferred, err := nodeOutput(ctx, rc, strategy.PreferredNodeUUID)
	if err != nil {
		return NodeAffinity{}, err
	}
	backup, err := nodeOutput(ctx, rc, strategy.BackupNodeUUID)
	if err != nil {
		return NodeAffinity{}, err
	}
	return NodeAffinity{
		StrictAffinity: strategy.StrictAffinity,
		PreferredNode:  preferred,
		BackupNode:     backup,
	}, nil
}

func nodeOutput(ctx context.Context, rc *rest.Client, id string) (map[string]any, error) {
	n, err := GetNodeByUUID(ctx, rc, id, false)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return Node{UUID: id}.Output(), nil
	}
	return n.Output(), nil
}

// AffinityPayload is the PATCH body changing a VM's affinity.
type AffinityPayload struct {
	AffinityStrategy AffinityStrategy `json:"affinityStrategy"`
}

// Validate rejects a strict policy that names no node.
func (p AffinityPayload) Validate() error {
	s := p.AffinityStrategy
	if s.StrictAffinity && s.PreferredNodeUUID == "" && s.BackupNodeUUID == "" {
		return &errs.ConfigurationError{
			Field:  "strict_affinity",
			Value:  "true",
			Reason: "Strict affinity requires a preferred or backup node",
		}
	}
	return nil
}
