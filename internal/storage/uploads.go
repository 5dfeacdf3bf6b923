// Package storage confines all uploaded-image filesystem access to a single
// uploads directory. Every caller that touches an uploaded file (the upload
// and delete endpoints, the MercadoLibre picture uploader) resolves paths
// through ResolvePath; nothing else may build paths under the uploads root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsafePath = errors.New("unsafe path")

// Windows device names are rejected even on Linux: uploaded catalogs get
// synced to operator laptops.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// SanitizeFilename validates a user-supplied filename and returns a form safe
// to join under the uploads root. Reserved device names are prefixed rather
// than rejected, matching how the upload endpoint has always stored them.
func SanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", ErrUnsafePath)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: absolute path", ErrUnsafePath)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: parent reference", ErrUnsafePath)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: path separator", ErrUnsafePath)
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	if reservedNames[strings.ToLower(base)] {
		name = "safe_" + name
	}

	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"|?*`, r) {
			return -1
		}
		return r
	}, name)
	if strings.TrimSpace(cleaned) == "" {
		return "", fmt.Errorf("%w: filename empty after sanitization", ErrUnsafePath)
	}
	return cleaned, nil
}

// Uploads is the confined uploads directory.
type Uploads struct {
	Dir string
}

func New(dir string) (*Uploads, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Uploads{Dir: abs}, nil
}

// ResolvePath sanitizes name and returns the absolute path of the file inside
// the uploads root. It fails before any filesystem access if the resolved
// path would escape the root.
func (u *Uploads) ResolvePath(name string) (string, error) {
	safe, err := SanitizeFilename(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(u.Dir, safe)
	resolved, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if resolved != u.Dir && !strings.HasPrefix(resolved, u.Dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: escapes uploads root", ErrUnsafePath)
	}
	return resolved, nil
}

// Save stores an uploaded file under a unique name derived from the original
// one and returns (storedFilename, publicSrc).
func (u *Uploads) Save(originalName string, r io.Reader) (string, string, error) {
	safe, err := SanitizeFilename(originalName)
	if err != nil {
		return "", "", err
	}
	ext := strings.ToLower(filepath.Ext(safe))
	base := strings.TrimSuffix(safe, filepath.Ext(safe))
	stored := fmt.Sprintf("%s-%s%s", uuid.NewString(), base, ext)

	full, err := u.ResolvePath(stored)
	if err != nil {
		return "", "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return "", "", err
	}
	return stored, "/uploads/" + stored, nil
}

// Delete removes a stored file after confinement checks.
func (u *Uploads) Delete(name string) error {
	full, err := u.ResolvePath(name)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

// Exists reports whether a stored file is present.
func (u *Uploads) Exists(name string) bool {
	full, err := u.ResolvePath(name)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(full)
	return statErr == nil
}
