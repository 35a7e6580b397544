package device

import (
	"path"
	"sort"
	"strings"

	"github.com/xxxsen/romsync/internal/system"
)

// Mapping places one system on the device.
type Mapping struct {
	Folder  string   `json:"folder"`
	Formats []string `json:"formats"`
}

// Accepts reports whether a stored file with ext may be copied under this mapping.
func (m Mapping) Accepts(ext string) bool {
	ext = system.NormalizeExt(ext)
	for _, f := range m.Formats {
		if system.NormalizeExt(f) == ext {
			return true
		}
	}
	return false
}

// ArtworkRules tells where box art lives relative to a system folder.
type ArtworkRules struct {
	Folder    string `json:"folder,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// Profile describes the folder layout of a device.
type Profile struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	BasePath string                  `json:"base_path"`
	BIOSPath string                  `json:"bios_path,omitempty"`
	Artwork  ArtworkRules            `json:"artwork"`
	Systems  map[system.Code]Mapping `json:"systems"`
	BuiltIn  bool                    `json:"-"`
}

// MappingFor returns the mapping of code, if the device supports it.
func (p Profile) MappingFor(code system.Code) (Mapping, bool) {
	m, ok := p.Systems[code]
	return m, ok
}

// SystemDir is the device relative folder holding the ROMs of code.
func (p Profile) SystemDir(code system.Code) (string, bool) {
	m, ok := p.MappingFor(code)
	if !ok {
		return "", false
	}
	return path.Join(p.BasePath, m.Folder), true
}

// Codes lists the mapped systems in order.
func (p Profile) Codes() []system.Code {
	out := make([]system.Code, 0, len(p.Systems))
	for code := range p.Systems {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registry resolves profiles by id across built-ins and stored drafts.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry merges the built-in profiles with stored ones; stored profiles
// never shadow a built-in id.
func NewRegistry(stored ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range BuiltIns() {
		r.profiles[p.ID] = p
	}
	for _, p := range stored {
		if _, ok := r.profiles[p.ID]; ok {
			continue
		}
		r.profiles[p.ID] = p
	}
	return r
}

// Resolve returns the profile with id.
func (r *Registry) Resolve(id string) (Profile, bool) {
	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// List returns every profile, built-ins first, then by name.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BuiltIn != out[j].BuiltIn {
			return out[i].BuiltIn
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
