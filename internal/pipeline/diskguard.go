package pipeline

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/jmylchreest/autoclip/pkg/bytesize"
)

// FreeSpaceFunc reports free bytes on the volume holding path.
type FreeSpaceFunc func(ctx context.Context, path string) (uint64, error)

// DiskFree reads free space with gopsutil.
func DiskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}
	return usage.Free, nil
}

// InsufficientSpaceError reports a volume below the configured minimum.
type InsufficientSpaceError struct {
	Path     string
	Free     uint64
	Required uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("only %s free on %s, need %s",
		bytesize.Format(bytesize.Size(e.Free)), e.Path, bytesize.Format(bytesize.Size(e.Required)))
}

func checkFreeSpace(ctx context.Context, free FreeSpaceFunc, path string, required uint64) error {
	if required == 0 || free == nil {
		return nil
	}
	avail, err := free(ctx, path)
	if err != nil {
		return err
	}
	if avail < required {
		return &InsufficientSpaceError{Path: path, Free: avail, Required: required}
	}
	return nil
}
