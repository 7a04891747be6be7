package frame

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// sidecar is the TOML file stored next to a binary frame. It carries the
// local metadata attached at acquisition time (wavelength, sample id, ...).
type sidecar struct {
	Metadata map[string]string `toml:"metadata"`
}

func sidecarPath(path string) string {
	return path + ".toml"
}

// readSidecar returns the metadata next to path, or nil if there is none.
func readSidecar(path string) (map[string]string, error) {
	var sc sidecar
	_, err := toml.DecodeFile(sidecarPath(path), &sc)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading metadata: %w", err)
	}
	if sc.Metadata == nil {
		sc.Metadata = make(map[string]string)
	}
	return sc.Metadata, nil
}

// writeSidecar stores meta next to path. Empty metadata removes a stale
// sidecar instead.
func writeSidecar(path string, meta map[string]string) error {
	if len(meta) == 0 {
		err := os.Remove(sidecarPath(path))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	f, err := os.Create(sidecarPath(path))
	if err != nil {
		return fmt.Errorf("error writing metadata: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(sidecar{Metadata: meta}); err != nil {
		f.Close()
		return fmt.Errorf("error encoding metadata: %w", err)
	}
	return f.Close()
}
