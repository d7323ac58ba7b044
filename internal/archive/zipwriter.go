// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// zipEpoch is the fixed modification time stamped on every entry of a
// reproducible build. The zip format cannot represent anything earlier.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// payloadEntry is one file of the zip payload. Data is held in memory;
// archives bundle source trees and wheel files, not bulk data.
type payloadEntry struct {
	Path       string
	Data       []byte
	Executable bool
}

// writeZipPayload writes the entries as a zip stream. Entries are sorted
// by path and file modes are normalized to 0644/0755, so the payload
// bytes depend only on entry content. Reproducible builds additionally
// pin every timestamp to the zip epoch.
func writeZipPayload(w io.Writer, entries []payloadEntry, reproducible bool) error {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b payloadEntry) int {
		return strings.Compare(a.Path, b.Path)
	})

	modified := time.Now().UTC()
	if reproducible {
		modified = zipEpoch
	}

	zw := zip.NewWriter(w)
	var prev string
	for i, e := range sorted {
		if i > 0 && e.Path == prev {
			return fmt.Errorf("duplicate payload entry %q", e.Path)
		}
		prev = e.Path

		hdr := &zip.FileHeader{
			Name:     e.Path,
			Method:   zip.Deflate,
			Modified: modified,
		}
		mode := fs.FileMode(0o644)
		if e.Executable {
			mode = 0o755
		}
		hdr.SetMode(mode)

		f, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("adding %q: %w", e.Path, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return fmt.Errorf("writing %q: %w", e.Path, err)
		}
	}
	return zw.Close()
}
