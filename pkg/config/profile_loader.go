package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TenantProfile is a deploy-time tenant description. Profiles extend the
// flat TENANT_REGISTRY list with per-tenant metadata used by provisioning.
type TenantProfile struct {
	ID          string   `yaml:"id" json:"id"`
	DisplayName string   `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Projects    []string `yaml:"projects,omitempty" json:"projects,omitempty"`
	DataRegion  string   `yaml:"data_region,omitempty" json:"data_region,omitempty"`
}

// ProfileFile is the on-disk shape of a tenant profile document.
type ProfileFile struct {
	Tenants []TenantProfile `yaml:"tenants"`
}

// LoadTenantProfiles parses a yaml tenant profile file. IDs must be unique
// and non-empty; a bad profile file is a deploy error, not a warning.
func LoadTenantProfiles(path string) ([]TenantProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant profile %s: %w", path, err)
	}

	var file ProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenant profile %s: %w", path, err)
	}
	if len(file.Tenants) == 0 {
		return nil, fmt.Errorf("tenant profile %s names no tenants", path)
	}

	seen := make(map[string]bool, len(file.Tenants))
	for _, t := range file.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("tenant profile %s has a tenant with empty id", path)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("tenant profile %s repeats tenant %q", path, t.ID)
		}
		seen[t.ID] = true
	}
	return file.Tenants, nil
}

// ApplyProfile overrides cfg.TenantRegistry with the IDs from a profile
// file when one is configured.
func (c *Config) ApplyProfile() error {
	if c.TenantProfile == "" {
		return nil
	}
	profiles, err := LoadTenantProfiles(c.TenantProfile)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	c.TenantRegistry = ids
	return nil
}
