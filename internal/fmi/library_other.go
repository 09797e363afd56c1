//go:build !darwin && !linux

package fmi

func openLibrary(path string) (binding, error) {
	return nil, ErrUnsupportedPlatform
}
