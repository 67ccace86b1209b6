package resource

import (
	"context"

	"github.com/google/uuid"
	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/rest"
)

// Node is a cluster node.
type Node struct {
	UUID        string
	BackplaneIP string
	LanIP       string
	PeerID      int
}

// NodeFromAPI decodes a Node record.
func NodeFromAPI(r rest.Record) (Node, error) {
	if err := requireFields(r, "Node", "uuid", "backplaneIP", "lanIP", "peerID"); err != nil {
		return Node{}, err
	}
	return Node{
		UUID:        r.Get("uuid").String(),
		BackplaneIP: r.Get("backplaneIP").String(),
		LanIP:       r.Get("lanIP").String(),
		PeerID:      int(r.Get("peerID").Int()),
	}, nil
}

// ToAPI returns the node in API form.
func (n Node) ToAPI() map[string]any {
	return map[string]any{
		"uuid":        n.UUID,
		"backplaneIP": n.BackplaneIP,
		"lanIP":       n.LanIP,
		"peerID":      n.PeerID,
	}
}

// Output returns the node in operator form.
func (n Node) Output() map[string]any {
	return map[string]any{
		"node_uuid":    n.UUID,
		"backplane_ip": n.BackplaneIP,
		"lan_ip":       n.LanIP,
		"peer_id":      n.PeerID,
	}
}

// NodeSelector picks one node by any combination of attributes. All set
// attributes must match.
type NodeSelector struct {
	UUID        string `mapstructure:"node_uuid" yaml:"node_uuid" json:"node_uuid,omitempty"`
	BackplaneIP string `mapstructure:"backplane_ip" yaml:"backplane_ip" json:"backplane_ip,omitempty"`
	LanIP       string `mapstructure:"lan_ip" yaml:"lan_ip" json:"lan_ip,omitempty"`
	PeerID      *int   `mapstructure:"peer_id" yaml:"peer_id" json:"peer_id,omitempty"`
}

var nodeSelectorMap = map[string]string{
	"node_uuid":    "uuid",
	"backplane_ip": "backplaneIP",
	"lan_ip":       "lanIP",
	"peer_id":      "peerID",
}

// IsZero reports whether no attribute is set.
func (s NodeSelector) IsZero() bool {
	return s.UUID == "" && s.BackplaneIP == "" && s.LanIP == "" && s.PeerID == nil
}

// Filter builds the record filter for the selector.
func (s NodeSelector) Filter() (rest.Filter, error) {
	if s.UUID != "" {
		if _, err := uuid.Parse(s.UUID); err != nil {
			return nil, &errs.ConfigurationError{Field: "node_uuid", Value: s.UUID, Reason: "Value must be a UUID"}
		}
	}
	in := map[string]any{
		"node_uuid":    s.UUID,
		"backplane_ip": s.BackplaneIP,
		"lan_ip":       s.LanIP,
	}
	if s.PeerID != nil {
		in["peer_id"] = *s.PeerID
	}
	return BuildFilter(in, nodeSelectorMap)
}

// GetNode resolves the single node matching filter.
func GetNode(ctx context.Context, rc *rest.Client, filter rest.Filter, mustExist bool) (*Node, error) {
	rec, found, err := rc.GetRecord(ctx, constants.NodePath, filter, mustExist)
	if err != nil || !found {
		return nil, err
	}
	n, err := NodeFromAPI(rec)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNodeByUUID returns the node with id, or nil when id is empty or unknown.
func GetNodeByUUID(ctx context.Context, rc *rest.Client, id string, mustExist bool) (*Node, error) {
	if id == "" {
		return nil, nil
	}
	return GetNode(ctx, rc, rest.Filter{"uuid": id}, mustExist)
}

// SelectNode resolves a selector that must match exactly one node. A zero
// selector yields nil.
func SelectNode(ctx context.Context, rc *rest.Client, s NodeSelector) (*Node, error) {
	if s.IsZero() {
		return nil, nil
	}
	filter, err := s.Filter()
	if err != nil {
		return nil, err
	}
	return GetNode(ctx, rc, filter, true)
}

// ListNodes returns every node.
func ListNodes(ctx context.Context, rc *rest.Client) ([]Node, error) {
	records, err := rc.List(ctx, constants.NodePath, nil)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(records))
	for _, r := range records {
		n, err := NodeFromAPI(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
