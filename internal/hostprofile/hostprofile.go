// Package hostprofile loads per-host defaults that are merged into a
// freshly created root conductor.Conductor: environment variables to carry
// over, local paths to upload as payloads, and shell-integration policy.
// The YAML shape and the union-field UnmarshalYAML style are grounded on
// the teacher's internal/egg/config.go (NetworkField/EnvField/BaseField).
package hostprofile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hopline/conductor/internal/conductor"
)

// VarsField accepts either a bare "*" (carry every local env var) or an
// explicit map of name->value, mirroring the teacher's EnvField union but
// for a value-bearing field rather than a plain allow-list.
type VarsField struct {
	All    bool
	Values map[string]string
}

func (v *VarsField) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value == "*" {
			v.All = true
			return nil
		}
		return fmt.Errorf("hostprofile: vars scalar must be \"*\", got %q", value.Value)
	}
	var m map[string]string
	if err := value.Decode(&m); err != nil {
		return err
	}
	v.Values = m
	return nil
}

// PayloadSpec is one local-path -> remote-destination upload entry.
type PayloadSpec struct {
	Path        string `yaml:"path"`
	Destination string `yaml:"destination"`
}

// PayloadsField accepts either a bare list of local paths (destination
// defaults to the remote $HOME, resolved later by NormalizeDestination) or
// a list of explicit {path, destination} objects.
type PayloadsField []PayloadSpec

func (p *PayloadsField) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("hostprofile: payloads must be a list")
	}
	var out PayloadsField
	for _, item := range value.Content {
		if item.Kind == yaml.ScalarNode {
			out = append(out, PayloadSpec{Path: item.Value})
			continue
		}
		var spec PayloadSpec
		if err := item.Decode(&spec); err != nil {
			return err
		}
		out = append(out, spec)
	}
	*p = out
	return nil
}

// Profile is one host's defaults, loaded from ~/.hopline/hosts/<host>.yaml.
type Profile struct {
	Vars                         VarsField     `yaml:"vars"`
	Payloads                     PayloadsField `yaml:"payloads"`
	InitialDirectory             string        `yaml:"initial_directory"`
	ShouldInjectShellIntegration *bool         `yaml:"shell_integration"`
	Autopoll                     *bool         `yaml:"autopoll"`
}

// HostsDir returns ~/.hopline/hosts, creating it if absent.
func HostsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("hostprofile: resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".hopline", "hosts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("hostprofile: create hosts dir: %w", err)
	}
	return dir, nil
}

// Load reads and parses ~/.hopline/hosts/<host>.yaml. A missing file is not
// an error: it yields an empty Profile, since most hosts have no override.
func Load(host string) (*Profile, error) {
	dir, err := HostsDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, host+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hostprofile: read %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("hostprofile: parse %s: %w", path, err)
	}
	return &p, nil
}

// LoadFromYAML parses a profile from an in-memory YAML document. It is used
// by tests; hoplined reads profiles from disk with Load.
func LoadFromYAML(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("hostprofile: parse yaml: %w", err)
	}
	return &p, nil
}

// ApplyTo merges the profile's defaults onto a freshly created root
// conductor, but only for fields the caller left zero-valued — mirroring
// the teacher's user/project config merge precedence (internal/config):
// explicit caller-supplied values always win.
func (p *Profile) ApplyTo(c *conductor.Conductor, localEnv map[string]string) {
	if p == nil {
		return
	}
	if len(c.VarsToSend) == 0 {
		c.VarsToSend = p.resolveVars(localEnv)
	}
	if c.InitialDirectory == "" && p.InitialDirectory != "" {
		c.InitialDirectory = p.InitialDirectory
	}
	if !c.ShouldInjectShellIntegration && p.ShouldInjectShellIntegration != nil {
		c.ShouldInjectShellIntegration = *p.ShouldInjectShellIntegration
	}
	if !c.AutopollEnabled && p.Autopoll != nil {
		c.AutopollEnabled = *p.Autopoll
	}
	if len(c.Payloads) == 0 {
		for _, spec := range p.Payloads {
			c.Add(spec.Path, spec.Destination)
		}
	}
}

func (p *Profile) resolveVars(localEnv map[string]string) map[string]string {
	if p.Vars.All {
		out := make(map[string]string, len(localEnv))
		for k, v := range localEnv {
			out[k] = v
		}
		return out
	}
	if p.Vars.Values == nil {
		return nil
	}
	out := make(map[string]string, len(p.Vars.Values))
	for k, v := range p.Vars.Values {
		out[k] = v
	}
	return out
}

// List returns the host names with a saved profile, sorted.
func List() ([]string, error) {
	dir, err := HostsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("hostprofile: list %s: %w", dir, err)
	}
	var hosts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".yaml"
		if filepath.Ext(name) == ext {
			hosts = append(hosts, name[:len(name)-len(ext)])
		}
	}
	sort.Strings(hosts)
	return hosts, nil
}
