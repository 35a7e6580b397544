package device

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"github.com/xxxsen/romsync/internal/system"
)

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// ParseDraft decodes a user supplied profile; Validate must run before it is stored.
func ParseDraft(data []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile draft: %w", err)
	}
	p.Name = strings.TrimSpace(p.Name)
	p.BasePath = strings.TrimSpace(p.BasePath)
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	if p.ID == "" {
		p.ID = strings.Trim(slugRegex.ReplaceAllString(strings.ToLower(p.Name), "-"), "-")
	}
	if len(p.Systems) > 0 {
		systems := make(map[system.Code]Mapping, len(p.Systems))
		for code, m := range p.Systems {
			systems[system.Code(strings.ToLower(strings.TrimSpace(string(code))))] = m
		}
		p.Systems = systems
	}
	return p, nil
}

// Validate checks a draft against the existing profiles and reports every problem at once.
func Validate(draft Profile, existing []Profile) error {
	var err error
	if draft.Name == "" {
		err = multierr.Append(err, fmt.Errorf("name is required"))
	}
	if draft.ID == "" {
		err = multierr.Append(err, fmt.Errorf("id is required"))
	}
	if draft.BasePath == "" {
		err = multierr.Append(err, fmt.Errorf("base_path is required"))
	} else if perr := checkRelative(draft.BasePath); perr != nil {
		err = multierr.Append(err, fmt.Errorf("base_path: %w", perr))
	}
	if len(draft.Systems) == 0 {
		err = multierr.Append(err, fmt.Errorf("at least one system mapping is required"))
	}
	for _, code := range draft.Codes() {
		m := draft.Systems[code]
		if !system.IsKnown(code) {
			err = multierr.Append(err, fmt.Errorf("unknown system code %q", code))
		}
		if strings.TrimSpace(m.Folder) == "" {
			err = multierr.Append(err, fmt.Errorf("system %q: folder is required", code))
		} else if perr := checkRelative(m.Folder); perr != nil {
			err = multierr.Append(err, fmt.Errorf("system %q: folder: %w", code, perr))
		}
		if len(nonEmpty(m.Formats)) == 0 {
			err = multierr.Append(err, fmt.Errorf("system %q: at least one format is required", code))
		}
	}
	for _, p := range existing {
		if draft.Name != "" && strings.EqualFold(p.Name, draft.Name) {
			err = multierr.Append(err, fmt.Errorf("profile name %q already exists", draft.Name))
		}
		if draft.ID != "" && p.ID == draft.ID {
			err = multierr.Append(err, fmt.Errorf("profile id %q already exists", draft.ID))
		}
	}
	return err
}

// checkRelative rejects paths that are absolute or climb above the device mount.
func checkRelative(p string) error {
	slashed := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if path.IsAbs(slashed) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return fmt.Errorf("%q must be relative to the device mount", p)
	}
	if clean := path.Clean(slashed); clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%q escapes the device mount", p)
	}
	return nil
}

func nonEmpty(list []string) []string {
	out := list[:0:0]
	for _, v := range list {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
