package mseed

import (
	"fmt"
	"os"
)

// StdinPathToken is the literal path token meaning "read from standard
// input" (spec §3 File entry, §4.1).
const StdinPathToken = "-"

// OpenLocal opens a Reader over a local file or standard input. This is a
// thin adapter: all decoding lives in StreamDecoder, OpenLocal only
// resolves the path kind and hands StreamDecoder a plain io.Reader plus
// whatever needs closing.
//
// The returned os.FileInfo (carrying the mtime) is populated for local
// paths and is nil for stdin, matching spec §3's "file_mod_time (only
// for local paths)".
func OpenLocal(path string, opts Options) (Reader, os.FileInfo, error) {
	if path == StdinPathToken {
		return NewStreamDecoder(os.Stdin, nil, opts), nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return NewStreamDecoder(f, f, opts), info, nil
}

