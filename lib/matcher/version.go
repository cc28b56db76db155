// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package matcher

import (
	"strconv"
	"strings"
)

// VersionOrdinal extracts the build sequence from a build number label
// of the form "<definition>_<date>.<seq>". "App Packages_20150101.3"
// yields 3. A suffix without a "." is parsed whole. The second result
// is false when no numeric ordinal can be found.
func VersionOrdinal(buildNumber string) (int, bool) {
	index := strings.LastIndex(buildNumber, "_")
	if index < 0 {
		return 0, false
	}
	suffix := buildNumber[index+1:]
	if dot := strings.LastIndex(suffix, "."); dot >= 0 {
		suffix = suffix[dot+1:]
	}
	ordinal, err := strconv.Atoi(suffix)
	if err != nil || ordinal < 0 {
		return 0, false
	}
	return ordinal, true
}

// PackageVersion returns the largest ordinal among builds as a decimal
// string, or "" when none of them carries an ordinal.
func PackageVersion(builds []BuildRecord) string {
	best := -1
	for _, build := range builds {
		if ordinal, ok := VersionOrdinal(build.BuildNumber); ok && ordinal > best {
			best = ordinal
		}
	}
	if best < 0 {
		return ""
	}
	return strconv.Itoa(best)
}
