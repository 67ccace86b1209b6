package module

import (
	"context"

	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/resource"
	"github.com/loykin/hypercore/internal/rest"
)

const (
	msgAffinityUpdated   = "Node affinity successfully updated."
	msgAffinityFallback  = "No nodes provided, VM's preferredNodeUUID set to it's nodeUUID."
	msgAffinityNoNode    = "No nodes provided and VM's nodeUUID not set, strict affinity set to false"
	msgAffinityUnchanged = "Node affinity already set to desired values."
)

// NodeAffinityParams are the inputs of RunNodeAffinity. A zero selector means
// no node.
type NodeAffinityParams struct {
	VMName         string                `mapstructure:"vm_name" yaml:"vm_name"`
	StrictAffinity bool                  `mapstructure:"strict_affinity" yaml:"strict_affinity"`
	PreferredNode  resource.NodeSelector `mapstructure:"preferred_node" yaml:"preferred_node"`
	BackupNode     resource.NodeSelector `mapstructure:"backup_node" yaml:"backup_node"`
}

func selectedUUID(ctx context.Context, rc *rest.Client, s resource.NodeSelector) (string, error) {
	n, err := resource.SelectNode(ctx, rc, s)
	if err != nil || n == nil {
		return "", err
	}
	return n.UUID, nil
}

// RunNodeAffinity sets the node affinity of the VM named p.VMName.
func RunNodeAffinity(ctx context.Context, rt *Runtime, p NodeAffinityParams) (*Result, error) {
	if p.VMName == "" {
		return nil, &errs.ConfigurationError{Field: "vm_name", Reason: "Value is required"}
	}
	log := rt.logger("vm_node_affinity").WithResource("VirDomain", p.VMName)

	vm, err := resource.GetVMByName(ctx, rt.Client, p.VMName, true)
	if err != nil {
		return nil, err
	}
	preferred, err := selectedUUID(ctx, rt.Client, p.PreferredNode)
	if err != nil {
		return nil, err
	}
	backup, err := selectedUUID(ctx, rt.Client, p.BackupNode)
	if err != nil {
		return nil, err
	}

	before, err := resource.ResolveAffinity(ctx, rt.Client, vm.Affinity)
	if err != nil {
		return nil, err
	}

	desired := resource.AffinityStrategy{
		StrictAffinity:    p.StrictAffinity,
		PreferredNodeUUID: preferred,
		BackupNodeUUID:    backup,
	}
	// Strict affinity without nodes pins the VM to where it runs now, or drops
	// strictness when it runs nowhere. Compare after the fallback so a repeated
	// run sees the value the first run wrote.
	msg := msgAffinityUpdated
	if desired.StrictAffinity && preferred == "" && backup == "" {
		desired.PreferredNodeUUID = vm.NodeUUID
		msg = msgAffinityFallback
		if vm.NodeUUID == "" {
			desired.StrictAffinity = false
			msg = msgAffinityNoNode
		}
	}

	if vm.Affinity == desired {
		log.Debug("node affinity unchanged")
		return &Result{
			Changed: false,
			Msg:     msgAffinityUnchanged,
			Diff:    &Diff{Before: before, After: before},
		}, nil
	}

	log.Info("changing node affinity", "strict", desired.StrictAffinity,
		"preferred", desired.PreferredNodeUUID, "backup", desired.BackupNodeUUID, "check", rt.Check)
	path := rest.Join(constants.VirDomainPath, vm.UUID)
	tag, err := resource.ValidatedUpdate(ctx, rt.Client, path, resource.AffinityPayload{AffinityStrategy: desired}, rt.Check)
	if err != nil {
		return nil, err
	}

	strategy := desired
	if !rt.Check {
		if _, err := rt.wait(ctx, tag); err != nil {
			return nil, err
		}
		updated, err := resource.GetVMByName(ctx, rt.Client, p.VMName, true)
		if err != nil {
			return nil, err
		}
		strategy = updated.Affinity
	}
	after, err := resource.ResolveAffinity(ctx, rt.Client, strategy)
	if err != nil {
		return nil, err
	}

	return &Result{
		Changed: true,
		Msg:     msg,
		Diff:    &Diff{Before: before, After: after},
	}, nil
}
