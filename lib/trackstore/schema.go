// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trackstore

// migrations are applied in order by sqlitepool. Append only.
var migrations = []string{
	`
	CREATE TABLE PackageArtifactData (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		project         TEXT NOT NULL,
		branch          TEXT NOT NULL,
		subProject      TEXT NOT NULL,
		version         TEXT NOT NULL,
		deployed        INTEGER NOT NULL DEFAULT 0,
		buildCompletion INTEGER NOT NULL,
		recordTime      INTEGER NOT NULL,
		deployedDate    INTEGER,
		UNIQUE (project, branch, subProject, version)
	);

	CREATE TABLE ArtifactDetail (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		package_id      INTEGER NOT NULL REFERENCES PackageArtifactData(id),
		buildNumber     TEXT NOT NULL,
		packageName     TEXT NOT NULL,
		packageFullPath TEXT NOT NULL,
		sizeBytes       INTEGER NOT NULL DEFAULT 0,
		checksum        TEXT,
		UNIQUE (package_id, buildNumber, packageName)
	);
	CREATE INDEX idx_artifact_package ON ArtifactDetail(package_id);
	`,
}
