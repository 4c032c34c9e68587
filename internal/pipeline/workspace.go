package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// WorkspacePrefix starts the name of every per-job temp directory.
const WorkspacePrefix = "autoclip-job-"

// Workspace is a per-job scratch directory.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory for jobID under base, replacing
// any leftover from an earlier attempt.
func NewWorkspace(base, jobID string) (*Workspace, error) {
	dir := filepath.Join(base, WorkspacePrefix+jobID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clearing workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("moving output: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying output: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("flushing output: %w", err)
	}
	return out.Close()
}
