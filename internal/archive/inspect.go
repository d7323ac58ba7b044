// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/exp/slices"
)

// Info is what Inspect reads back from a built archive.
type Info struct {
	// StubLine is the first line of the launcher stub.
	StubLine string
	// Metadata is the decoded PYBUNDLE-INFO entry.
	Metadata Metadata
	// Entries lists every payload path, sorted.
	Entries []string
	// Size is the total file size in bytes.
	Size int64
}

// Inspect opens a built archive and reads its stub line, payload listing,
// and embedded metadata. The zip reader tolerates the prepended stub.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	stubLine, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading stub: %w", err)
	}
	stubLine = strings.TrimRight(stubLine, "\n")
	if !strings.HasPrefix(stubLine, "#!") {
		return nil, fmt.Errorf("%q is not an executable archive: missing launcher stub", path)
	}

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("inspecting archive: %w", err)
	}
	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%q has no readable payload: %w", path, err)
	}

	info := &Info{StubLine: stubLine, Size: st.Size()}
	var infoFile *zip.File
	for _, zf := range zr.File {
		info.Entries = append(info.Entries, zf.Name)
		if zf.Name == InfoName {
			infoFile = zf
		}
	}
	slices.Sort(info.Entries)

	if infoFile == nil {
		return nil, fmt.Errorf("%q has no %s entry", path, InfoName)
	}
	rc, err := infoFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", InfoName, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", InfoName, err)
	}
	info.Metadata, err = decodeMetadata(data)
	if err != nil {
		return nil, err
	}
	return info, nil
}
