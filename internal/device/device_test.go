package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/xxxsen/romsync/internal/system"
)

func TestBuiltInsAreValid(t *testing.T) {
	for _, p := range BuiltIns() {
		assert.NoError(t, Validate(p, nil), p.ID)
		assert.True(t, p.BuiltIn)
	}
}

func TestMappingAccepts(t *testing.T) {
	r := NewRegistry()
	onion, ok := r.Resolve("Onion")
	require.True(t, ok)
	m, ok := onion.MappingFor(system.SNES)
	require.True(t, ok)
	assert.Equal(t, "SFC", m.Folder)
	assert.True(t, m.Accepts(".SFC"))
	assert.True(t, m.Accepts("zip"))
	assert.False(t, m.Accepts(".gba"))

	dir, ok := onion.SystemDir(system.SNES)
	require.True(t, ok)
	assert.Equal(t, "Roms/SFC", dir)

	minui, ok := r.Resolve("minui")
	require.True(t, ok)
	_, ok = minui.MappingFor(system.N64)
	assert.False(t, ok)
}

func TestParseAndValidateDraft(t *testing.T) {
	draft, err := ParseDraft([]byte(`{
		"name": "My Handheld",
		"base_path": "games",
		"systems": {"SNES": {"folder": "snes", "formats": ["sfc", "zip"]}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "my-handheld", draft.ID)
	_, ok := draft.MappingFor(system.SNES)
	assert.True(t, ok)
	require.NoError(t, Validate(draft, BuiltIns()))

	r := NewRegistry(draft)
	got, ok := r.Resolve("my-handheld")
	require.True(t, ok)
	assert.Equal(t, "My Handheld", got.Name)
	list := r.List()
	assert.True(t, list[0].BuiltIn)
	assert.Equal(t, "my-handheld", list[len(list)-1].ID)
}

func TestValidateListsEveryProblem(t *testing.T) {
	draft, err := ParseDraft([]byte(`{
		"name": "onion os",
		"systems": {
			"psx": {"folder": "PS", "formats": ["bin"]},
			"gba": {"folder": "", "formats": [" "]}
		}
	}`))
	require.NoError(t, err)

	err = Validate(draft, BuiltIns())
	require.Error(t, err)
	errs := multierr.Errors(err)
	msg := err.Error()
	assert.Len(t, errs, 5)
	assert.Contains(t, msg, "base_path is required")
	assert.Contains(t, msg, `unknown system code "psx"`)
	assert.Contains(t, msg, `system "gba": folder is required`)
	assert.Contains(t, msg, `system "gba": at least one format is required`)
	assert.True(t, strings.Contains(msg, `profile name "onion os" already exists`))
}

func TestValidateEmptyDraft(t *testing.T) {
	err := Validate(Profile{}, nil)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestParseDraftRejectsBadJSON(t *testing.T) {
	_, err := ParseDraft([]byte("{"))
	assert.Error(t, err)
}

func TestValidateRejectsPathsOutsideMount(t *testing.T) {
	draft := func(base, folder string) Profile {
		return Profile{
			ID:       "custom",
			Name:     "Custom",
			BasePath: base,
			Systems:  map[system.Code]Mapping{system.GBA: {Folder: folder, Formats: []string{"gba"}}},
		}
	}
	for _, base := range []string{"/mnt/roms", "..", "../roms", "roms/../../x", `..\roms`} {
		err := Validate(draft(base, "GBA"), nil)
		require.Error(t, err, base)
		assert.Contains(t, err.Error(), "base_path", base)
	}
	for _, folder := range []string{"/GBA", "..", "../GBA", "a/../../GBA"} {
		err := Validate(draft("Roms", folder), nil)
		require.Error(t, err, folder)
		assert.Contains(t, err.Error(), `system "gba": folder`, folder)
	}
	assert.NoError(t, Validate(draft("Roms/sub/..", "GBA/../GBA"), nil))
	assert.NoError(t, Validate(draft("./Roms", "GBA"), nil))
}
