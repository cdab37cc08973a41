package lifecycle

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// snapshotConfig copies the gateway's configuration files into a
// timestamped directory under the backup dir. It is best-effort and
// non-fatal: a failed snapshot is logged and the start proceeds.
func (c *Controller) snapshotConfig() {
	entries, err := os.ReadDir(c.cfg.ConfigDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("config snapshot skipped", "error", err)
		}
		return
	}

	dst := filepath.Join(c.cfg.BackupDir(), "config-"+time.Now().Format("20060102-150405"))
	copied := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if copied == 0 {
			if err := os.MkdirAll(dst, 0o750); err != nil {
				c.logger.Warn("config snapshot skipped", "error", err)
				return
			}
		}
		src := filepath.Join(c.cfg.ConfigDir, e.Name())
		if err := copyFile(src, filepath.Join(dst, e.Name())); err != nil {
			c.logger.Warn("config snapshot incomplete", "file", e.Name(), "error", err)
			continue
		}
		copied++
	}
	if copied > 0 {
		c.logger.Debug("config snapshot written", "dir", dst, "files", copied)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
