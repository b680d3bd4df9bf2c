package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// roleConfigYAML mirrors RoleConfig with yaml tags; RoleConfig itself stays
// tag-free since Role is also used as a map key elsewhere in the package.
type roleConfigYAML struct {
	Caps     Capabilities       `yaml:"caps"`
	Files    FilePatterns       `yaml:"files"`
	Commands CommandPermissions `yaml:"commands"`
}

// rolesFileYAML is the shape of .goose/roles.yaml: a map from role name to
// its permission override. A role absent from the file keeps its built-in
// default (spec §4.5 "per-role permission table").
type rolesFileYAML struct {
	Roles map[Role]roleConfigYAML `yaml:"roles"`
}

// LoadRoleConfigs reads path as YAML and overlays it onto DefaultRoleConfigs
// role by role, so a file overriding only one role still leaves the other
// four at their defaults. A missing file is not an error: it returns the
// defaults unchanged.
func LoadRoleConfigs(path string) (map[Role]RoleConfig, error) {
	configs := DefaultRoleConfigs()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return configs, nil
		}
		return nil, fmt.Errorf("capability: read %s: %w", path, err)
	}

	var parsed rolesFileYAML
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("capability: parse %s: %w", path, err)
	}

	for role, override := range parsed.Roles {
		configs[role] = RoleConfig{
			Role:     role,
			Caps:     override.Caps,
			Files:    override.Files,
			Commands: override.Commands,
		}
	}

	return configs, nil
}

// ApplyRoleConfigFile loads path via LoadRoleConfigs and installs every
// entry into e via SetRoleConfig.
func ApplyRoleConfigFile(e *Enforcer, path string) error {
	configs, err := LoadRoleConfigs(path)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		e.SetRoleConfig(cfg)
	}
	return nil
}
