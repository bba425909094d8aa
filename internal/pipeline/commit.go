package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// commit moves the staged render onto dst. When a plain rename is not
// possible (the workspace sits on another file system) the file is copied
// next to dst first and renamed from there, so dst is only ever replaced by
// a complete file. The staged file is gone afterwards on success.
func commit(staged, dst string) error {
	info, err := os.Stat(staged)
	if err != nil {
		return fmt.Errorf("staged output: %w", err)
	}
	if err := os.Rename(staged, dst); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmpName := tmp.Name()
	if err := copyInto(tmp, staged); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("set output mode: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move output into place: %w", err)
	}
	// the workspace is removed with the run anyway
	_ = os.Remove(staged)
	return nil
}

func copyInto(dst *os.File, src string) error {
	in, err := os.Open(src) // #nosec G304 - src is a workspace path
	if err != nil {
		return fmt.Errorf("open staged output: %w", err)
	}
	defer func() { _ = in.Close() }()

	if _, err := io.Copy(dst, in); err != nil {
		return fmt.Errorf("copy output: %w", err)
	}
	return nil
}
