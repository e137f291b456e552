package sink

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	lterrors "github.com/logflow/logtables/pkg/errors"
	"github.com/logflow/logtables/pkg/xes"
)

// MetadataFile is the name of the log metadata sidecar.
const MetadataFile = "metadata.json"

// WriteMetadata stores XES log metadata next to the event table in dir.
func WriteMetadata(dir string, meta *xes.LogMetadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", lterrors.Wrap(err, lterrors.CodeWriteFailed, "failed to encode metadata")
	}
	path := filepath.Join(dir, MetadataFile)
	err = replaceFile(path, func(f *os.File) error {
		_, err := f.Write(append(data, '\n'))
		return err
	})
	return path, err
}

// ReadMetadata loads a sidecar written by WriteMetadata.
func ReadMetadata(path string) (*xes.LogMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lterrors.FileNotFound(path)
		}
		return nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read metadata").WithContext("path", path)
	}
	var meta xes.LogMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, lterrors.Wrap(err, lterrors.CodeStructural, "invalid metadata").WithContext("path", path)
	}
	return &meta, nil
}
