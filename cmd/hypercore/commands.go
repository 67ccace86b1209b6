package main

import (
	"context"

	"github.com/loykin/hypercore/internal/module"
	"github.com/loykin/hypercore/internal/resource"
	"github.com/loykin/hypercore/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newDNSConfigCmd(a *app) *cobra.Command {
	var (
		servers []string
		domains []string
		state   string
	)
	cmd := &cobra.Command{
		Use:   "dns-config",
		Short: "Modify the cluster's DNS servers and search domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := module.ParseEntryState(util.TrimAndLower(state))
			if err != nil {
				return err
			}
			p := module.DNSConfigParams{State: st}
			// unset flags leave the list untouched; an explicit empty value clears it
			if cmd.Flags().Changed("dns-servers") {
				p.DNSServers = nonNilList(util.TrimList(servers))
			}
			if cmd.Flags().Changed("search-domains") {
				p.SearchDomains = nonNilList(util.TrimList(domains))
			}
			return a.run(cmd, func(ctx context.Context, rt *module.Runtime) (*module.Result, error) {
				return module.RunDNSConfig(ctx, rt, p)
			})
		},
	}
	cmd.Flags().StringSliceVar(&servers, "dns-servers", nil, "DNS server IP addresses")
	cmd.Flags().StringSliceVar(&domains, "search-domains", nil, "DNS search domains")
	cmd.Flags().StringVar(&state, "state", string(module.EntrySet), "set, before or after")
	return cmd
}

func nonNilList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

// nodeFlags registers --<prefix>-node-uuid, -backplane-ip, -lan-ip and -peer-id.
type nodeFlags struct {
	prefix string
	sel    resource.NodeSelector
	peerID int
}

func (n *nodeFlags) register(fs *pflag.FlagSet, what string) {
	fs.StringVar(&n.sel.UUID, n.prefix+"-node-uuid", "", "UUID of the "+what+" node")
	fs.StringVar(&n.sel.BackplaneIP, n.prefix+"-backplane-ip", "", "backplane IP of the "+what+" node")
	fs.StringVar(&n.sel.LanIP, n.prefix+"-lan-ip", "", "LAN IP of the "+what+" node")
	fs.IntVar(&n.peerID, n.prefix+"-peer-id", 0, "peer ID of the "+what+" node")
}

func (n *nodeFlags) selector(fs *pflag.FlagSet) resource.NodeSelector {
	sel := n.sel
	util.TrimStructFields(&sel)
	if fs.Changed(n.prefix + "-peer-id") {
		id := n.peerID
		sel.PeerID = &id
	}
	return sel
}

func newNodeAffinityCmd(a *app) *cobra.Command {
	var (
		vmName string
		strict bool
	)
	preferred := &nodeFlags{prefix: "preferred"}
	backup := &nodeFlags{prefix: "backup"}

	cmd := &cobra.Command{
		Use:   "vm-node-affinity",
		Short: "Update a virtual machine's node affinity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := module.NodeAffinityParams{
				VMName:         vmName,
				StrictAffinity: strict,
				PreferredNode:  preferred.selector(cmd.Flags()),
				BackupNode:     backup.selector(cmd.Flags()),
			}
			return a.run(cmd, func(ctx context.Context, rt *module.Runtime) (*module.Result, error) {
				return module.RunNodeAffinity(ctx, rt, p)
			})
		},
	}
	cmd.Flags().StringVar(&vmName, "vm-name", "", "virtual machine name")
	cmd.Flags().BoolVar(&strict, "strict-affinity", false, "only run the VM on the preferred or backup node")
	preferred.register(cmd.Flags(), "preferred")
	backup.register(cmd.Flags(), "backup")
	_ = cmd.MarkFlagRequired("vm-name")
	return cmd
}

func newVirtualDiskCmd(a *app) *cobra.Command {
	var p module.VirtualDiskParams
	var state string
	cmd := &cobra.Command{
		Use:   "virtual-disk",
		Short: "Upload or delete a virtual disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.State = module.DiskState(util.TrimAndLower(state))
			return a.run(cmd, func(ctx context.Context, rt *module.Runtime) (*module.Result, error) {
				return module.RunVirtualDisk(ctx, rt, p)
			})
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "virtual disk file name, e.g. disk.qcow2")
	cmd.Flags().StringVar(&p.Source, "source", "", "local image path or s3://bucket/key")
	cmd.Flags().StringVar(&state, "state", string(module.DiskPresent), "present or absent")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newVirtualDiskInfoCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "virtual-disk-info",
		Short: "List virtual disks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, rt *module.Runtime) (*module.Result, error) {
				return module.RunVirtualDiskInfo(ctx, rt, name)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only the disk with this name")
	return cmd
}

func newTaskWaitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "task-wait TASK_TAG...",
		Short: "Wait for tasks to complete",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, rt *module.Runtime) (*module.Result, error) {
				return module.RunTaskWait(ctx, rt, args...)
			})
		},
	}
}
