package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/versions"
)

const testCatalog = `<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><id>urn:uuid:A</id><title>Alpha</title><language>eng</language></entry>
  <entry><id>urn:uuid:B</id><title>Beta</title><language>fra</language></entry>
</feed>`

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.xml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0600))
	return path
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.GetVersionInfo().Version, info.Version)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "zim-library "))
}

func TestSyncThenList(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	catalog := writeCatalog(t)

	out, err := execute(t, "sync", "--data-dir", dataDir, "--catalog-file", catalog, "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "sync new_data (packages: 2)")

	out, err = execute(t, "sync", "--data-dir", dataDir, "--catalog-file", catalog)
	require.NoError(t, err)
	assert.Contains(t, out, "sync no_data (packages: 2)")

	out, err = execute(t, "list", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "Beta")
	assert.Contains(t, out, "2 package(s)")

	out, err = execute(t, "list", "--data-dir", dataDir, "--language", "fr")
	require.NoError(t, err)
	assert.NotContains(t, out, "Alpha")
	assert.Contains(t, out, "1 package(s)")

	_, err = execute(t, "list", "--data-dir", dataDir, "--state", "bogus")
	require.Error(t, err)
}

func TestSync_MissingCatalogFileFails(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "sync",
		"--data-dir", t.TempDir(),
		"--catalog-file", filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed")
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
dataDir: /from/file
catalog:
  url: https://file.example/catalog.xml
`), 0600))

	t.Setenv("ZIM_LIBRARY_CATALOG_URL", "https://env.example/catalog.xml")

	cmd := NewRootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{
		"--config", configPath,
		"--data-dir", dir,
	}))

	cfg, err := loadConfig(serve)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.GetDataDir())
	assert.Equal(t, "https://env.example/catalog.xml", cfg.Catalog.GetURL())
}

func TestListPredicate(t *testing.T) {
	t.Parallel()

	alpha := &library.Package{ID: "a", LanguageCode: "en", LocalState: library.LocalState{State: library.StateLocal}}
	beta := &library.Package{ID: "b", LanguageCode: "fr", LocalState: library.LocalState{State: library.StateRemoteOnly}}

	tests := []struct {
		name      string
		states    []string
		languages []string
		want      []string
		wantErr   bool
	}{
		{name: "no filters", want: []string{"a", "b"}},
		{name: "state", states: []string{"local"}, want: []string{"a"}},
		{name: "language", languages: []string{" fr"}, want: []string{"b"}},
		{name: "both", states: []string{"local", "remoteOnly"}, languages: []string{"en"}, want: []string{"a"}},
		{name: "invalid state", states: []string{"gone"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pred, err := listPredicate(tt.states, tt.languages)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			var got []string
			for _, pkg := range []*library.Package{alpha, beta} {
				if pred(pkg) {
					got = append(got, pkg.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	size := func(n int64) *int64 { return &n }
	assert.Equal(t, "-", formatSize(nil))
	assert.Equal(t, "512 B", formatSize(size(512)))
	assert.Equal(t, "1.5 KiB", formatSize(size(1536)))
	assert.Equal(t, "2.0 GiB", formatSize(size(2<<30)))
}

func TestReadConfirmation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "no\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		var prompt bytes.Buffer
		got, err := readConfirmation(strings.NewReader(tt.input), &prompt, "Continue?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Continue? (yes/no): ", prompt.String())
	}
}

func TestMigrateDown_RequiresPostgres(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "migrate", "down", "--data-dir", t.TempDir(), "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only supported for the postgres store")
}

func TestMigrateUp_FileStore(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "migrate", "up", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 3")
}

// fakeMigrator records the calls made by the migrate commands
type fakeMigrator struct {
	steps  []int
	up     int
	down   int
	err    error
	closed bool
}

func (f *fakeMigrator) Up() error { f.up++; return f.err }
func (f *fakeMigrator) Down() error { f.down++; return f.err }
func (f *fakeMigrator) Steps(n int) error { f.steps = append(f.steps, n); return f.err }
func (*fakeMigrator) Migrate(uint) error { return nil }
func (*fakeMigrator) Version() (uint, bool, error) { return 1, false, nil }
func (f *fakeMigrator) Close() (error, error) { f.closed = true; return nil, nil }

func TestExecuteMigrate(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{}
	require.NoError(t, executeMigrateUp(m, 0))
	require.NoError(t, executeMigrateUp(m, 2))
	require.NoError(t, executeMigrateDown(m, 1))
	require.NoError(t, executeMigrateDown(m, 0))
	assert.Equal(t, 1, m.up)
	assert.Equal(t, 1, m.down)
	assert.Equal(t, []int{2, -1}, m.steps)

	unchanged := &fakeMigrator{err: migrate.ErrNoChange}
	require.NoError(t, executeMigrateUp(unchanged, 0))
	require.NoError(t, executeMigrateDown(unchanged, 0))

	broken := &fakeMigrator{err: errors.New("dirty")}
	require.Error(t, executeMigrateUp(broken, 0))
	require.Error(t, executeMigrateDown(broken, 3))
}
