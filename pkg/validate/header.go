package validate

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
)

// headerProbeLen is how many leading bytes are read for format sniffing.
const headerProbeLen = 16

// checkHeader confirms the file's leading bytes match the container format
// implied by its extension. Catches silent truncation and HTML error pages
// saved as model files, which size tolerance alone misses. Unknown
// extensions only get the non-empty probe check.
func checkHeader(path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrFileUnreadable, err.Error())
	}
	defer f.Close()

	probe := make([]byte, headerProbeLen)
	n, err := f.Read(probe)
	if err != nil || n == 0 {
		return errors.Wrapf(errors.ErrHeaderMismatch, "%s: cannot read header", path)
	}
	probe = probe[:n]

	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return checkSafetensors(probe, size, path)
	case ".gguf":
		if !bytes.HasPrefix(probe, []byte("GGUF")) {
			return errors.Wrapf(errors.ErrHeaderMismatch, "%s: missing GGUF magic", path)
		}
	case ".png":
		if !bytes.HasPrefix(probe, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}) {
			return errors.Wrapf(errors.ErrHeaderMismatch, "%s: missing PNG signature", path)
		}
	case ".zip", ".ckpt", ".pt", ".pth":
		// Torch checkpoints are zip containers.
		if !bytes.HasPrefix(probe, []byte("PK")) {
			return errors.Wrapf(errors.ErrHeaderMismatch, "%s: missing zip signature", path)
		}
	}
	return nil
}

// checkSafetensors validates the safetensors preamble: an 8-byte little-endian
// header length followed by a JSON object. A truncated or HTML-poisoned file
// fails here even when its size squeaks under the tolerance.
func checkSafetensors(probe []byte, size int64, path string) error {
	if len(probe) < 9 {
		return errors.Wrapf(errors.ErrHeaderMismatch, "%s: safetensors preamble too short", path)
	}
	headerLen := binary.LittleEndian.Uint64(probe[:8])
	if headerLen == 0 || headerLen > uint64(size) {
		return errors.Wrapf(errors.ErrHeaderMismatch,
			"%s: safetensors header length %d out of range for %d-byte file", path, headerLen, size)
	}
	if probe[8] != '{' {
		return errors.Wrapf(errors.ErrHeaderMismatch, "%s: safetensors header is not JSON", path)
	}
	return nil
}
