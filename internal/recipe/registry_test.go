package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
)

func writeRecipes(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadEmbeddedRecipes(t *testing.T) {
	reg, err := LoadEmbedded(WithLogger(log.NewNoop()))
	require.NoError(t, err)
	assert.Greater(t, reg.Count(), 0)

	rec, err := reg.Get("jq")
	require.NoError(t, err)
	assert.Equal(t, "jq", rec.Name)
	assert.True(t, rec.HasMethod(MethodApt))
}

func TestGetUnknownTool(t *testing.T) {
	reg, err := LoadEmbedded(WithLogger(log.NewNoop()))
	require.NoError(t, err)

	_, err = reg.Get("left-handed-screwdriver")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestLoadDirParsesBothCommandForms(t *testing.T) {
	dir := writeRecipes(t, map[string]string{
		"mixed.toml": `
name = "mixed"
verify = "mixed --version"

[install]
apt = "apt-get install -y mixed"
_default = ["bash", "-c", "curl -sSf https://example.com/install.sh | sh"]

[needs_sudo]
apt = true
_default = false
`,
	})
	reg, err := LoadDir(dir, WithLogger(log.NewNoop()))
	require.NoError(t, err)

	rec, err := reg.Get("mixed")
	require.NoError(t, err)
	assert.Equal(t, Command{"apt-get", "install", "-y", "mixed"}, rec.Install[MethodApt])
	assert.Equal(t, Command{"bash", "-c", "curl -sSf https://example.com/install.sh | sh"}, rec.Install[MethodDefault])
}

func TestLoadDirNameDefaultsToFilename(t *testing.T) {
	dir := writeRecipes(t, map[string]string{
		"unnamed.toml": `
[install]
apt = "apt-get install -y unnamed"

[needs_sudo]
apt = true
`,
	})
	reg, err := LoadDir(dir, WithLogger(log.NewNoop()))
	require.NoError(t, err)
	assert.True(t, reg.Has("unnamed"))
}

func TestLoadDirCollectsAllValidationErrors(t *testing.T) {
	dir := writeRecipes(t, map[string]string{
		"bad.toml": `
name = "bad"

[install]
apt = "apt-get install -y bad"
`,
		"worse.toml": `
name = "worse"
`,
	})
	_, err := LoadDir(dir, WithLogger(log.NewNoop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `recipe "bad"`)
	assert.Contains(t, err.Error(), `recipe "worse"`)
}

func TestLoadDirRejectsDependencyCycle(t *testing.T) {
	dir := writeRecipes(t, map[string]string{
		"a.toml": `
name = "a"

[install]
apt = "apt-get install -y a"

[needs_sudo]
apt = true

[requires]
binaries = ["b"]
`,
		"b.toml": `
name = "b"

[install]
apt = "apt-get install -y b"

[needs_sudo]
apt = true

[requires]
binaries = ["a"]
`,
	})
	_, err := LoadDir(dir, WithLogger(log.NewNoop()))
	var cerr *DependencyCycleError
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Cycle)
}

func TestProviderOfUsesProvidesIndex(t *testing.T) {
	reg, err := LoadEmbedded(WithLogger(log.NewNoop()))
	require.NoError(t, err)

	// rustup's provides list covers the whole toolchain.
	assert.Equal(t, "rustup", reg.ProviderOf("cargo"))
	assert.Equal(t, "rustup", reg.ProviderOf("rustc"))
	// A recipe id is its own provider.
	assert.Equal(t, "jq", reg.ProviderOf("jq"))
	assert.Empty(t, reg.ProviderOf("no-such-binary"))
}

func TestSplitConstraint(t *testing.T) {
	for _, tc := range []struct {
		entry, id, constraint string
	}{
		{"jq", "jq", ""},
		{"jq>=1.6", "jq", ">=1.6"},
		{"node >=18", "node", ">=18"},
		{"cargo^1.70", "cargo", "^1.70"},
		{"python~3.11", "python", "~3.11"},
	} {
		id, constraint := SplitConstraint(tc.entry)
		assert.Equal(t, tc.id, id, tc.entry)
		assert.Equal(t, tc.constraint, constraint, tc.entry)
	}
}

func TestMethodsFollowCanonicalOrder(t *testing.T) {
	r := &Recipe{Install: map[Method]Command{
		MethodCargo:   {"cargo", "install", "x"},
		MethodApt:     {"apt-get", "install", "-y", "x"},
		MethodDefault: {"sh", "install.sh"},
	}}
	assert.Equal(t, []Method{MethodApt, MethodCargo, MethodDefault}, r.Methods())
}

func TestProvidedBinariesDefaultsToName(t *testing.T) {
	r := &Recipe{Name: "jq"}
	assert.Equal(t, []string{"jq"}, r.ProvidedBinaries())

	r.Provides = []string{"rustup", "cargo"}
	assert.Equal(t, []string{"rustup", "cargo"}, r.ProvidedBinaries())
}
