// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trackstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/sqlitepool"
)

var (
	// ErrNotFound is returned when no package or artifact matches.
	ErrNotFound = errors.New("trackstore: not found")

	// ErrDuplicate is returned by InsertWithChildren for a key that is
	// already recorded.
	ErrDuplicate = errors.New("trackstore: duplicate package key")
)

// Key identifies one package version.
type Key struct {
	Project   string `json:"project"`
	Branch    string `json:"branch"`
	SubBranch string `json:"sub_branch"`
	Version   string `json:"version"`
}

func (k Key) String() string {
	return k.Project + "/" + k.Branch + ":" + k.SubBranch + "@" + k.Version
}

// ParseKey parses the String form "project/branch:subBranch@version".
// The version may be omitted.
func ParseKey(text string) (Key, error) {
	var key Key
	head, version, _ := strings.Cut(text, "@")
	path, subBranch, ok := strings.Cut(head, ":")
	if !ok {
		return key, fmt.Errorf("package key %q: want project/branch:sub_branch[@version]", text)
	}
	slash := strings.LastIndex(path, "/")
	if slash <= 0 || slash == len(path)-1 || subBranch == "" {
		return key, fmt.Errorf("package key %q: want project/branch:sub_branch[@version]", text)
	}
	key.Project = path[:slash]
	key.Branch = path[slash+1:]
	key.SubBranch = subBranch
	key.Version = version
	return key, nil
}

// Artifact is one staged file of a package.
type Artifact struct {
	ID          int64  `json:"id"`
	FileName    string `json:"file_name"`
	SourcePath  string `json:"source_path"`
	BuildNumber string `json:"build_number"`
	Size        int64  `json:"size_bytes"`

	// Checksum is empty until computed.
	Checksum string `json:"checksum,omitempty"`
}

// Package is one recorded package version.
type Package struct {
	ID              int64     `json:"id"`
	Key             Key       `json:"key"`
	Deployed        bool      `json:"deployed"`
	BuildCompletion time.Time `json:"build_completion"`
	RecordTime      time.Time `json:"record_time"`

	// DeployedDate is the last false-to-true transition; zero if never.
	DeployedDate time.Time `json:"deployed_date,omitzero"`

	// Artifacts is populated by FindByKey.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// ArtifactCount is populated by List and FindByKey.
	ArtifactCount int `json:"artifact_count"`
}

// DeployedPackageInfo is a single deployed-flag write.
type DeployedPackageInfo struct {
	Key      Key
	Deployed bool
}

// ArtifactKey addresses one artifact. FileName matches without regard
// to case.
type ArtifactKey struct {
	Package  Key
	FileName string
}

// Config configures a Store.
type Config struct {
	// Path is the database file.
	Path string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is the tracking store. It is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens the database at config.Path, creating and migrating the
// schema as needed. Opening an up-to-date database changes nothing.
func Open(config Config) (*Store, error) {
	if config.Clock == nil {
		return nil, fmt.Errorf("trackstore: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("trackstore: Logger is required")
	}
	logger := config.Logger.With("component", "trackstore")
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       config.Path,
		Logger:     logger,
		Migrations: migrations,
	})
	if err != nil {
		return nil, fmt.Errorf("trackstore: %w", err)
	}
	return &Store{pool: pool, clock: config.Clock, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

const packageColumns = `id, project, branch, subProject, version, deployed,
	buildCompletion, recordTime, deployedDate,
	(SELECT COUNT(*) FROM ArtifactDetail WHERE package_id = PackageArtifactData.id)`

func scanPackage(stmt *sqlite.Stmt) Package {
	pkg := Package{
		ID: stmt.ColumnInt64(0),
		Key: Key{
			Project:   stmt.ColumnText(1),
			Branch:    stmt.ColumnText(2),
			SubBranch: stmt.ColumnText(3),
			Version:   stmt.ColumnText(4),
		},
		Deployed:        stmt.ColumnInt64(5) != 0,
		BuildCompletion: fromNanos(stmt.ColumnInt64(6)),
		RecordTime:      fromNanos(stmt.ColumnInt64(7)),
		ArtifactCount:   stmt.ColumnInt(9),
	}
	if stmt.ColumnType(8) != sqlite.TypeNull {
		pkg.DeployedDate = fromNanos(stmt.ColumnInt64(8))
	}
	return pkg
}

func fromNanos(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func boolArg(value bool) int {
	if value {
		return 1
	}
	return 0
}

// FindByKey returns the package with key and its artifacts. An empty
// Version matches any version and returns the earliest recorded one.
func (s *Store) FindByKey(ctx context.Context, key Key) (Package, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Package{}, fmt.Errorf("trackstore: find: %w", err)
	}
	defer s.pool.Put(conn)

	pkg, found, err := findPackage(conn, key)
	if err != nil {
		return Package{}, fmt.Errorf("trackstore: find %s: %w", key, err)
	}
	if !found {
		return Package{}, fmt.Errorf("trackstore: %s: %w", key, ErrNotFound)
	}
	pkg.Artifacts, err = loadArtifacts(conn, pkg.ID)
	if err != nil {
		return Package{}, fmt.Errorf("trackstore: artifacts of %s: %w", key, err)
	}
	return pkg, nil
}

func findPackage(conn *sqlite.Conn, key Key) (Package, bool, error) {
	query := `SELECT ` + packageColumns + ` FROM PackageArtifactData
		WHERE project = ? AND branch = ? AND subProject = ?`
	args := []any{key.Project, key.Branch, key.SubBranch}
	if key.Version != "" {
		query += ` AND version = ?`
		args = append(args, key.Version)
	}
	query += ` ORDER BY id LIMIT 1`

	var pkg Package
	found := false
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pkg = scanPackage(stmt)
			found = true
			return nil
		},
	})
	return pkg, found, err
}

func loadArtifacts(conn *sqlite.Conn, packageID int64) ([]Artifact, error) {
	var artifacts []Artifact
	err := sqlitex.Execute(conn, `
		SELECT id, packageName, packageFullPath, buildNumber, sizeBytes, checksum
		FROM ArtifactDetail WHERE package_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{packageID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				artifacts = append(artifacts, Artifact{
					ID:          stmt.ColumnInt64(0),
					FileName:    stmt.ColumnText(1),
					SourcePath:  stmt.ColumnText(2),
					BuildNumber: stmt.ColumnText(3),
					Size:        stmt.ColumnInt64(4),
					Checksum:    stmt.ColumnText(5),
				})
				return nil
			},
		})
	return artifacts, err
}

// InsertWithChildren records pkg and its artifacts in one transaction
// and returns the new package id. RecordTime defaults to now, and a
// deployed package gets DeployedDate now when none is set.
func (s *Store) InsertWithChildren(ctx context.Context, pkg Package) (id int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("trackstore: insert: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("trackstore: insert: begin: %w", err)
	}
	defer endTransaction(&err)

	exact := pkg.Key
	if exact.Version == "" {
		return 0, fmt.Errorf("trackstore: insert %s: version is required", exact)
	}
	if _, found, err := findPackage(conn, exact); err != nil {
		return 0, fmt.Errorf("trackstore: insert %s: %w", exact, err)
	} else if found {
		return 0, fmt.Errorf("trackstore: insert %s: %w", exact, ErrDuplicate)
	}

	now := s.clock.Now()
	if pkg.RecordTime.IsZero() {
		pkg.RecordTime = now
	}
	var deployedDate any
	if pkg.Deployed {
		if pkg.DeployedDate.IsZero() {
			pkg.DeployedDate = now
		}
		deployedDate = toNanos(pkg.DeployedDate)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO PackageArtifactData
			(project, branch, subProject, version, deployed, buildCompletion, recordTime, deployedDate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			exact.Project, exact.Branch, exact.SubBranch, exact.Version,
			boolArg(pkg.Deployed), toNanos(pkg.BuildCompletion), toNanos(pkg.RecordTime), deployedDate,
		}})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return 0, fmt.Errorf("trackstore: insert %s: %w", exact, ErrDuplicate)
		}
		return 0, fmt.Errorf("trackstore: insert %s: %w", exact, err)
	}
	id = conn.LastInsertRowID()

	for _, artifact := range pkg.Artifacts {
		var checksum any
		if artifact.Checksum != "" {
			checksum = artifact.Checksum
		}
		err = sqlitex.Execute(conn, `
			INSERT INTO ArtifactDetail
				(package_id, buildNumber, packageName, packageFullPath, sizeBytes, checksum)
			VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				id, artifact.BuildNumber, artifact.FileName, artifact.SourcePath, artifact.Size, checksum,
			}})
		if err != nil {
			return 0, fmt.Errorf("trackstore: insert %s: artifact %s: %w", exact, artifact.FileName, err)
		}
	}

	s.logger.Info("package recorded",
		"package", exact.String(),
		"id", id,
		"artifacts", len(pkg.Artifacts),
		"deployed", pkg.Deployed,
	)
	return id, nil
}

// UpdateStatus sets the deployed flag of one package version.
// DeployedDate is set to now only on a false-to-true transition.
func (s *Store) UpdateStatus(ctx context.Context, info DeployedPackageInfo) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("trackstore: update status: %w", err)
	}
	defer s.pool.Put(conn)

	deployed := boolArg(info.Deployed)
	err = sqlitex.Execute(conn, `
		UPDATE PackageArtifactData
		SET deployedDate = CASE WHEN ? = 1 AND deployed = 0 THEN ? ELSE deployedDate END,
			deployed = ?
		WHERE project = ? AND branch = ? AND subProject = ? AND version = ?`,
		&sqlitex.ExecOptions{Args: []any{
			deployed, toNanos(s.clock.Now()), deployed,
			info.Key.Project, info.Key.Branch, info.Key.SubBranch, info.Key.Version,
		}})
	if err != nil {
		return fmt.Errorf("trackstore: update status %s: %w", info.Key, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("trackstore: update status %s: %w", info.Key, ErrNotFound)
	}
	return nil
}

// AttachChecksum stores checksum on one artifact.
func (s *Store) AttachChecksum(ctx context.Context, key ArtifactKey, checksum string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("trackstore: attach checksum: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE ArtifactDetail SET checksum = ?
		WHERE packageName = ? COLLATE NOCASE
		AND package_id = (
			SELECT id FROM PackageArtifactData
			WHERE project = ? AND branch = ? AND subProject = ? AND version = ?
		)`,
		&sqlitex.ExecOptions{Args: []any{
			checksum, key.FileName,
			key.Package.Project, key.Package.Branch, key.Package.SubBranch, key.Package.Version,
		}})
	if err != nil {
		return fmt.Errorf("trackstore: attach checksum %s/%s: %w", key.Package, key.FileName, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("trackstore: attach checksum %s/%s: %w", key.Package, key.FileName, ErrNotFound)
	}
	return nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Project   string
	Branch    string
	SubBranch string
	Deployed  *bool

	// Limit caps the result; zero means no limit.
	Limit int
}

// List returns packages newest first, without their artifacts.
func (s *Store) List(ctx context.Context, filter Filter) ([]Package, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("trackstore: list: %w", err)
	}
	defer s.pool.Put(conn)

	var clauses []string
	var args []any
	if filter.Project != "" {
		clauses = append(clauses, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.Branch != "" {
		clauses = append(clauses, "branch = ?")
		args = append(args, filter.Branch)
	}
	if filter.SubBranch != "" {
		clauses = append(clauses, "subProject = ?")
		args = append(args, filter.SubBranch)
	}
	if filter.Deployed != nil {
		clauses = append(clauses, "deployed = ?")
		args = append(args, boolArg(*filter.Deployed))
	}

	query := `SELECT ` + packageColumns + ` FROM PackageArtifactData`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	var packages []Package
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			packages = append(packages, scanPackage(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("trackstore: list: %w", err)
	}
	return packages, nil
}

// LatestPerBranch returns the most recently recorded package of every
// (project, branch, sub-branch), ordered by key.
func (s *Store) LatestPerBranch(ctx context.Context) ([]Package, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("trackstore: latest: %w", err)
	}
	defer s.pool.Put(conn)

	var packages []Package
	err = sqlitex.Execute(conn, `SELECT `+packageColumns+` FROM PackageArtifactData
		WHERE id IN (SELECT MAX(id) FROM PackageArtifactData GROUP BY project, branch, subProject)
		ORDER BY project, branch, subProject`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			packages = append(packages, scanPackage(stmt))
			return nil
		}})
	if err != nil {
		return nil, fmt.Errorf("trackstore: latest: %w", err)
	}
	return packages, nil
}

// Stats summarizes the store.
type Stats struct {
	Packages    int       `json:"packages"`
	Deployed    int       `json:"deployed"`
	Artifacts   int       `json:"artifacts"`
	Checksummed int       `json:"checksummed"`
	LastRecord  time.Time `json:"last_record,omitzero"`
}

// Stats returns counts across both tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("trackstore: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn, `
		SELECT
			(SELECT COUNT(*) FROM PackageArtifactData),
			(SELECT COUNT(*) FROM PackageArtifactData WHERE deployed = 1),
			(SELECT COUNT(*) FROM ArtifactDetail),
			(SELECT COUNT(*) FROM ArtifactDetail WHERE checksum IS NOT NULL),
			(SELECT MAX(recordTime) FROM PackageArtifactData)`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.Packages = stmt.ColumnInt(0)
			stats.Deployed = stmt.ColumnInt(1)
			stats.Artifacts = stmt.ColumnInt(2)
			stats.Checksummed = stmt.ColumnInt(3)
			if stmt.ColumnType(4) != sqlite.TypeNull {
				stats.LastRecord = fromNanos(stmt.ColumnInt64(4))
			}
			return nil
		}})
	if err != nil {
		return Stats{}, fmt.Errorf("trackstore: stats: %w", err)
	}
	return stats, nil
}
