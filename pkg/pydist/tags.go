// SPDX-License-Identifier: MPL-2.0

package pydist

import "strings"

// AnyPlatform is the wheel platform tag for pure-Python artifacts.
const AnyPlatform = "any"

// NormalizeTag canonicalizes a platform tag for comparison. Egg platform
// suffixes spell "linux-x86_64" where wheel tags spell "linux_x86_64";
// both map to the same normalized form.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(tag))
}

// PlatformCompatible reports whether an artifact's platform tags satisfy
// the configured target tags. A pure-Python artifact (tag "any", or an
// egg with no platform suffix) is compatible with every target. An empty
// target list accepts any artifact.
func PlatformCompatible(fileTags, targetTags []string) bool {
	if len(fileTags) == 0 {
		return true
	}
	for _, ft := range fileTags {
		if NormalizeTag(ft) == AnyPlatform {
			return true
		}
	}
	if len(targetTags) == 0 {
		return true
	}
	for _, ft := range fileTags {
		nft := NormalizeTag(ft)
		for _, tt := range targetTags {
			if nft == NormalizeTag(tt) {
				return true
			}
		}
	}
	return false
}
