package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	fanout "github.com/goliatone/go-fanout"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-fanout"

	migrationsDir = "data/sql/migrations"
	sqliteDir     = "sqlite"
)

// FilesystemSpec is one dialect's migration directory.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect filesystem. Callers typically forward it
// to persistence.Client.RegisterSQLMigrations when the dialect matches.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if dialects := normalizeDialects(targets); len(dialects) > 0 {
			r.ValidationTargets = dialects
		}
	}
}

// WithFilesystems replaces the embedded tree. Entries without a dialect or
// filesystem are ignored.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		var kept []FilesystemSpec
		for _, spec := range filesystems {
			spec.Dialect = normalizeDialect(spec.Dialect)
			if spec.Dialect == "" || spec.FS == nil {
				continue
			}
			kept = append(kept, spec)
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems splits a migration tree into its postgres root and sqlite
// subdirectory. The embedded tree is used when no source is given. Every
// dialect must ship at least one up migration and a down file for each.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := fanout.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, sqliteDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, sqliteDir), FS: sqliteFS},
	}
	for _, spec := range filesystems {
		if err := checkPairs(spec); err != nil {
			return nil, err
		}
	}
	return filesystems, nil
}

// Register hands each targeted dialect filesystem to registerFn, postgres
// first.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       DefaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	switch {
	case registerFn == nil:
		return reg, fmt.Errorf("migrations: register function is required")
	case len(reg.ValidationTargets) == 0:
		return reg, fmt.Errorf("migrations: validation targets are required")
	case reg.SourceLabel == "":
		return reg, fmt.Errorf("migrations: source label is required")
	case len(reg.Filesystems) == 0:
		return reg, fmt.Errorf("migrations: filesystems are required")
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// ForDialect narrows registration to target and hands the matching
// filesystem to load.
func ForDialect(target string, load func(fsys fs.FS)) RegisterFunc {
	target = normalizeDialect(target)
	return func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != target {
			return nil
		}
		if load == nil {
			return fmt.Errorf("migrations: loader for %s is nil", target)
		}
		load(fsys)
		return nil
	}
}

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch normalizeDialect(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// migrationsRoot accepts either a module-shaped tree or a directory that
// holds the .sql files directly.
func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, migrationsDir); err == nil {
		sub, subErr := fs.Sub(root, migrationsDir)
		if subErr != nil {
			return nil, "", fmt.Errorf("migrations: open %s: %w", migrationsDir, subErr)
		}
		return sub, migrationsDir, nil
	}
	if matches, _ := fs.Glob(root, "*.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func checkPairs(spec FilesystemSpec) error {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(spec.FS, down); err != nil {
			return fmt.Errorf("migrations: %s migration %s has no %s", spec.Dialect, up, down)
		}
	}
	return nil
}

func normalizeDialect(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// normalizeDialects lowercases, drops blanks and removes repeats, keeping
// first appearance.
func normalizeDialects(values []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, value := range values {
		value = normalizeDialect(value)
		if value == "" || !seen.Add(value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
