// Package integration describes the upstream systems (distributors) the
// catalog synchronizes with. Profiles are injected from configuration.
package integration

import (
	"os"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

// Kind selects how a tenant's catalog is served.
type Kind string

const (
	// KindDirect tenants expose their whole catalog with stored prices.
	KindDirect Kind = "direct"
	// KindDistributor tenants gate products per merchant and overlay live
	// price and stock from the distributor.
	KindDistributor Kind = "distributor"
)

// DefaultMinQuantity is the stock threshold below which a distributor
// reports a product as out of stock.
const DefaultMinQuantity = 1000

// Integration is one upstream system bound to a tenant.
type Integration struct {
	Name             string   `yaml:"name"`
	Kind             Kind     `yaml:"kind"`
	TenantID         string   `yaml:"tenantId"`
	ExternalSystemID string   `yaml:"externalSystemId"`
	SubjectPrefix    string   `yaml:"subjectPrefix"`
	HoldingKey       string   `yaml:"holdingKey"`
	Snapshot         Snapshot `yaml:"snapshot"`
}

// Snapshot configures the distributor stock/price API.
type Snapshot struct {
	BaseURL      string        `yaml:"baseUrl"`
	TokenPath    string        `yaml:"tokenPath"`
	ProductsPath string        `yaml:"productsPath"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Company      string        `yaml:"company"`
	MinQuantity  int64         `yaml:"minQuantity"`
	RPS          float64       `yaml:"rps"`
	Timeout      time.Duration `yaml:"timeout"`
	TokenTTL     time.Duration `yaml:"tokenTtl"`
}

// Enabled reports whether a live snapshot endpoint is configured.
func (s Snapshot) Enabled() bool {
	return s.BaseURL != "" && s.ProductsPath != ""
}

type file struct {
	Integrations []Integration `yaml:"integrations"`
}

// Load reads integration profiles from a YAML file. A missing file yields
// no integrations.
func Load(path string) ([]Integration, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read integrations file")
	}
	return Parse(data)
}

// Parse decodes and validates integration profiles.
func Parse(data []byte) ([]Integration, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode integrations")
	}

	seen := make(map[string]struct{}, len(f.Integrations))
	for i := range f.Integrations {
		in := &f.Integrations[i]
		if in.Name == "" || in.TenantID == "" {
			return nil, errors.Errorf("integration %d: name and tenantId are required", i)
		}
		if _, ok := seen[in.Name]; ok {
			return nil, errors.Errorf("integration %q declared twice", in.Name)
		}
		seen[in.Name] = struct{}{}

		if in.Kind == "" {
			in.Kind = KindDirect
		}
		if in.Kind != KindDirect && in.Kind != KindDistributor {
			return nil, errors.Errorf("integration %q: unknown kind %q", in.Name, in.Kind)
		}
		if in.ExternalSystemID == "" {
			in.ExternalSystemID = in.Name
		}
		if in.SubjectPrefix == "" {
			in.SubjectPrefix = in.Name
		}
		if in.Snapshot.MinQuantity == 0 {
			in.Snapshot.MinQuantity = DefaultMinQuantity
		}
		if in.Snapshot.Timeout == 0 {
			in.Snapshot.Timeout = 10 * time.Second
		}
		if in.Snapshot.TokenTTL == 0 {
			in.Snapshot.TokenTTL = 50 * time.Minute
		}
	}
	return f.Integrations, nil
}

// ByTenant indexes integrations by tenant ID.
func ByTenant(list []Integration) map[string]Integration {
	out := make(map[string]Integration, len(list))
	for _, in := range list {
		out[in.TenantID] = in
	}
	return out
}
