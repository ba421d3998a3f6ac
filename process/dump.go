package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DumpMetadataFile is the metadata file name inside a dump directory
const DumpMetadataFile = "metadata.json"

// DumpMetadata describes a saved main module image
type DumpMetadata struct {
	PID        ProcessID            `json:"pid"`
	Is64       bool                 `json:"is64"`
	ModuleBase ProcessMemoryAddress `json:"module_base"`
	ModuleSize ProcessMemorySize    `json:"module_size"`
	ModulePath string               `json:"module_path"`
	ImageFile  string               `json:"image_file"`
}

// DumpModule saves the main module image and its metadata to dirname
func (m *RemoteMemory) DumpModule(dirname string) error {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	mod, data, err := m.readModule()
	if err != nil {
		return err
	}

	m.log.Infoln("Saving main module to directory:", dirname)

	meta := DumpMetadata{
		PID:        m.PID(),
		Is64:       m.is64,
		ModuleBase: mod.Base,
		ModuleSize: mod.Size,
		ModulePath: mod.Path,
		ImageFile:  fmt.Sprintf("module_%x.bin", uint64(mod.Base)),
	}

	if err := os.WriteFile(filepath.Join(dirname, meta.ImageFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, DumpMetadataFile), metaJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	m.log.Infoln("Main module saved:", mod.Size.ToString())
	return nil
}

// ReadDumpMetadata loads the metadata written by DumpModule
func ReadDumpMetadata(dirname string) (DumpMetadata, error) {
	var meta DumpMetadata
	raw, err := os.ReadFile(filepath.Join(dirname, DumpMetadataFile))
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.ImageFile == "" || meta.ImageFile != filepath.Base(meta.ImageFile) {
		return meta, fmt.Errorf("%w: bad image file name %q", ErrInvalidArgument, meta.ImageFile)
	}
	return meta, nil
}
