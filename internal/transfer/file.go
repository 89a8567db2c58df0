package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ErrInvalidTarget is returned when a download target name or directory is unusable.
var ErrInvalidTarget = errors.New("transfer: invalid download target")

// WriteFile streams body into dir/name. Bytes go to a temporary ".part" file in
// dir that is renamed over the target only after the copy succeeded; on any
// failure (including cancellation) the temporary file is removed and no file
// named name is created or modified.
func WriteFile(ctx context.Context, dir, name string, body io.Reader, progress func(int64)) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: name %q", ErrInvalidTarget, name)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrInvalidTarget, dir)
	}

	out, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", err
	}
	tmp := out.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = out.Close()
		if rerr := os.Remove(tmp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Warn().Err(rerr).Str("action", "transfer_cleanup").Str("file", tmp).Msg("remove partial file failed")
		}
	}()

	if _, err := io.Copy(out, NewReader(ctx, body, progress)); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := out.Sync(); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(tmp, final); err != nil {
		return "", err
	}
	committed = true
	return final, nil
}

// SHA256File computes the SHA-256 checksum of a file and returns the
// hex-encoded digest with the number of bytes hashed.
func SHA256File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
