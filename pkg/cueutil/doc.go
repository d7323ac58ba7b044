// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides schema-validated CUE decoding for the
// bundlefile and config packages. Input is unified with an embedded
// schema before decoding, so errors carry the filename and the CUE
// path of the offending field.
//
// # Usage
//
//	//go:embed schema.cue
//	var schema string
//
//	result, err := cueutil.ParseAndDecode[Bundle](
//	    schema,
//	    userFileBytes,
//	    "#Bundle",
//	    cueutil.WithFilename("bundlefile.cue"),
//	)
//	if err != nil {
//	    return nil, err
//	}
//	return result.Value, nil
package cueutil
