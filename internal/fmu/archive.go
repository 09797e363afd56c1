package fmu

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	binariesDir  = "binaries"
	resourcesDir = "resources"
)

// Extract unpacks the FMU archive at path into dir. When dir is empty a new
// temporary directory is created under os.TempDir. The directory actually
// used is returned; callers own it and remove it with Remove.
//
// On failure Extract removes only what it created: the whole directory if
// it did not exist beforehand, otherwise the files and sub-directories this
// call created. Paths that existed before the call are never removed.
func Extract(path, dir string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open fmu %s: %w", path, err)
	}
	defer zr.Close()

	owned := false
	if dir == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		dir, err = os.MkdirTemp("", "fmibench-"+base+"-")
		if err != nil {
			return "", fmt.Errorf("create extraction dir: %w", err)
		}
		owned = true
	} else {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			owned = true
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create extraction dir %s: %w", dir, err)
		}
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		if owned {
			_ = os.RemoveAll(dir)
		}
		return "", err
	}

	x := &extraction{root: root}
	for _, f := range zr.File {
		if err := x.file(f); err != nil {
			if owned {
				_ = os.RemoveAll(root)
			} else {
				x.undo()
			}
			return "", fmt.Errorf("extract %s: %w", path, err)
		}
	}
	return root, nil
}

// extraction records the paths one Extract call creates below root.
type extraction struct {
	root    string
	created []string
}

func (x *extraction) file(f *zip.File) error {
	target := filepath.Join(x.root, filepath.FromSlash(f.Name))
	if target != x.root && !strings.HasPrefix(target, x.root+string(os.PathSeparator)) {
		return fmt.Errorf("entry %q escapes extraction dir", f.Name)
	}

	if f.FileInfo().IsDir() {
		return x.mkdirAll(target)
	}
	if err := x.mkdirAll(filepath.Dir(target)); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
		x.created = append(x.created, target)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// mkdirAll is os.MkdirAll that remembers which directories were missing.
func (x *extraction) mkdirAll(dir string) error {
	var missing []string
	for p := dir; p != x.root && len(p) > len(x.root); p = filepath.Dir(p) {
		if _, err := os.Lstat(p); err == nil {
			break
		}
		missing = append(missing, p)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		x.created = append(x.created, missing[i])
	}
	return nil
}

// undo removes created paths, deepest first.
func (x *extraction) undo() {
	for i := len(x.created) - 1; i >= 0; i-- {
		_ = os.Remove(x.created[i])
	}
}

// Remove deletes an extraction directory and everything in it.
func Remove(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove extraction dir %s: %w", dir, err)
	}
	return nil
}

// PlatformDir returns the binaries sub-directory name FMI 2.0 uses for the
// running platform, e.g. "linux64".
func PlatformDir() string {
	return platformDir(runtime.GOOS, runtime.GOARCH)
}

func platformDir(goos, goarch string) string {
	bits := "64"
	switch goarch {
	case "386", "arm", "mips", "mipsle":
		bits = "32"
	}
	switch goos {
	case "windows":
		return "win" + bits
	case "darwin":
		return "darwin" + bits
	default:
		return goos + bits
	}
}

// LibraryExt returns the shared library extension for the running platform.
func LibraryExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// LibraryPath returns the absolute path of the model's shared library inside
// an extracted FMU.
func LibraryPath(unpackDir, modelIdentifier string) string {
	return filepath.Join(unpackDir, binariesDir, PlatformDir(), modelIdentifier+LibraryExt())
}

// ResourcesURI returns the file URI of the resources directory handed to
// fmi2Instantiate.
func ResourcesURI(unpackDir string) string {
	p := filepath.ToSlash(filepath.Join(unpackDir, resourcesDir))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}
