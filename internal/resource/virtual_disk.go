package resource

import (
	"context"
	"strings"

	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/rest"
)

// VirtualDisk is an uploaded disk image.
type VirtualDisk struct {
	UUID              string
	Name              string
	BlockSize         int64
	Size              int64
	ReplicationFactor int
}

// VirtualDiskFromAPI decodes a VirtualDisk record.
func VirtualDiskFromAPI(r rest.Record) (VirtualDisk, error) {
	if err := requireFields(r, "VirtualDisk", "name", "uuid", "blockSize", "capacityBytes", "replicationFactor"); err != nil {
		return VirtualDisk{}, err
	}
	return VirtualDisk{
		UUID:              r.Get("uuid").String(),
		Name:              r.Get("name").String(),
		BlockSize:         r.Get("blockSize").Int(),
		Size:              r.Get("capacityBytes").Int(),
		ReplicationFactor: int(r.Get("replicationFactor").Int()),
	}, nil
}

// ToAPI returns the disk in API form.
func (d VirtualDisk) ToAPI() map[string]any {
	return map[string]any{
		"uuid":              d.UUID,
		"name":              d.Name,
		"blockSize":         d.BlockSize,
		"capacityBytes":     d.Size,
		"replicationFactor": d.ReplicationFactor,
	}
}

// Output returns the disk in operator form.
func (d VirtualDisk) Output() map[string]any {
	return map[string]any{
		"uuid":               d.UUID,
		"name":               d.Name,
		"block_size":         d.BlockSize,
		"size":               d.Size,
		"replication_factor": d.ReplicationFactor,
	}
}

// GetVirtualDiskByName resolves the single disk named name.
func GetVirtualDiskByName(ctx context.Context, rc *rest.Client, name string, mustExist bool) (*VirtualDisk, error) {
	if name == "" {
		return nil, &errs.ConfigurationError{Field: "name", Value: name, Reason: "Value must not be empty"}
	}
	rec, found, err := rc.GetRecord(ctx, constants.VirtualDiskPath, rest.Filter{"name": name}, mustExist)
	if err != nil || !found {
		return nil, err
	}
	d, err := VirtualDiskFromAPI(rec)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListVirtualDisks returns the disks matching filter.
func ListVirtualDisks(ctx context.Context, rc *rest.Client, filter rest.Filter) ([]VirtualDisk, error) {
	records, err := rc.ListRecords(ctx, constants.VirtualDiskPath, filter)
	if err != nil {
		return nil, err
	}
	disks := make([]VirtualDisk, 0, len(records))
	for _, r := range records {
		d, err := VirtualDiskFromAPI(r)
		if err != nil {
			return nil, err
		}
		disks = append(disks, d)
	}
	return disks, nil
}

// VirtualDiskUpload describes the query half of an upload request.
type VirtualDiskUpload struct {
	Filename string
	Size     int64
}

// Validate checks that a name and a non-empty image are given before any
// bytes are sent. The cluster decides which image formats it accepts.
func (u VirtualDiskUpload) Validate() error {
	if strings.TrimSpace(u.Filename) == "" {
		return &errs.ConfigurationError{Field: "name", Value: u.Filename, Reason: "Disk name must not be empty"}
	}
	if u.Size <= 0 {
		return &errs.ConfigurationError{Field: "source", Value: u.Filename, Reason: "Disk image must not be empty"}
	}
	return nil
}
