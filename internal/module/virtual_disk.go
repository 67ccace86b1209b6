package module

import (
	"context"

	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/resource"
	"github.com/loykin/hypercore/internal/rest"
)

// DiskState is the desired presence of a virtual disk.
type DiskState string

const (
	DiskPresent DiskState = "present"
	DiskAbsent  DiskState = "absent"
)

// VirtualDiskParams are the inputs of RunVirtualDisk. Source is a local path
// or an s3:// URI and is required when State is present.
type VirtualDiskParams struct {
	Name   string    `mapstructure:"name" yaml:"name"`
	Source string    `mapstructure:"source" yaml:"source"`
	State  DiskState `mapstructure:"state" yaml:"state"`
}

// Validate checks the combination of inputs.
func (p VirtualDiskParams) Validate() error {
	if p.Name == "" {
		return &errs.ConfigurationError{Field: "name", Reason: "Value is required"}
	}
	switch p.State {
	case DiskPresent:
		if p.Source == "" {
			return &errs.ConfigurationError{Field: "source", Reason: "Value is required when state is present"}
		}
	case DiskAbsent:
	default:
		return &errs.ConfigurationError{Field: "state", Value: string(p.State), Reason: "Must be one of present, absent"}
	}
	return nil
}

func diskRecords(d *resource.VirtualDisk) []map[string]any {
	if d == nil {
		return []map[string]any{}
	}
	return []map[string]any{d.Output()}
}

func diskOutput(d *resource.VirtualDisk) any {
	if d == nil {
		return nil
	}
	return d.Output()
}

// RunVirtualDisk uploads or deletes the virtual disk named p.Name.
func RunVirtualDisk(ctx context.Context, rt *Runtime, p VirtualDiskParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	log := rt.logger("virtual_disk").WithResource("VirtualDisk", p.Name)

	existing, err := resource.GetVirtualDiskByName(ctx, rt.Client, p.Name, false)
	if err != nil {
		return nil, err
	}

	if p.State == DiskAbsent {
		if existing == nil {
			return &Result{Msg: "Virtual disk already absent.", Records: diskRecords(nil), Diff: &Diff{}}, nil
		}
		log.Info("deleting virtual disk", "uuid", existing.UUID, "check", rt.Check)
		tag, err := rt.Client.Delete(ctx, rest.Join(constants.VirtualDiskPath, existing.UUID), nil, rt.Check)
		if err != nil {
			return nil, err
		}
		if _, err := rt.wait(ctx, tag); err != nil {
			return nil, err
		}
		return &Result{
			Changed: true,
			Msg:     "Virtual disk deleted.",
			Records: diskRecords(nil),
			Diff:    &Diff{Before: existing.Output()},
		}, nil
	}

	if existing != nil {
		return &Result{
			Msg:     "Virtual disk already present.",
			Records: diskRecords(existing),
			Diff:    &Diff{Before: existing.Output(), After: existing.Output()},
		}, nil
	}

	img, err := rt.sources().Open(ctx, p.Source)
	if err != nil {
		return nil, &errs.ConfigurationError{Field: "source", Value: p.Source, Reason: err.Error()}
	}
	defer func() { _ = img.Close() }()

	upload := resource.VirtualDiskUpload{Filename: p.Name, Size: img.Size}
	if err := upload.Validate(); err != nil {
		return nil, err
	}

	log.Info("uploading virtual disk", "source", p.Source, "size", img.Size, "check", rt.Check)
	tag, err := rt.Client.Upload(ctx, constants.VirtualDiskUpload, upload.Filename, img, upload.Size, nil, rt.Check)
	if err != nil {
		return nil, err
	}
	if rt.Check {
		return &Result{
			Changed: true,
			Msg:     "Virtual disk would be uploaded.",
			Records: diskRecords(nil),
			Diff:    &Diff{After: map[string]any{"name": upload.Filename, "size": upload.Size}},
		}, nil
	}
	if _, err := rt.wait(ctx, tag); err != nil {
		return nil, err
	}

	created, err := resource.GetVirtualDiskByName(ctx, rt.Client, p.Name, true)
	if err != nil {
		return nil, err
	}
	return &Result{
		Changed: true,
		Msg:     "Virtual disk uploaded.",
		Records: diskRecords(created),
		Diff:    &Diff{After: diskOutput(created)},
	}, nil
}

// RunVirtualDiskInfo lists virtual disks, optionally only the one named name.
func RunVirtualDiskInfo(ctx context.Context, rt *Runtime, name string) (*Result, error) {
	var filter rest.Filter
	if name != "" {
		filter = rest.Filter{"name": name}
	}
	disks, err := resource.ListVirtualDisks(ctx, rt.Client, filter)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0, len(disks))
	for _, d := range disks {
		records = append(records, d.Output())
	}
	return &Result{Records: records}, nil
}
