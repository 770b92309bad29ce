package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceMapping maps service concept IDs to the directory containing the
// test suite for that service, one map per environment. A service without an
// entry has no test suite yet and is skipped by the runner.
//
// services.yml:
//
//	production:
//	  S2697183066-XYZ_PROV: tests/hybig
//	uat:
//	  S1257776354-EEDTEST: tests/hybig
type ServiceMapping struct {
	Production map[string]string `yaml:"production"`
	UAT        map[string]string `yaml:"uat"`
}

// LoadServiceMapping reads the service-to-test-directory mapping file.
func LoadServiceMapping(path string) (*ServiceMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service mapping: %w", err)
	}

	var mapping ServiceMapping
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse service mapping %s: %w", path, err)
	}
	return &mapping, nil
}

// TestDirectory returns the test directory for a service in the given
// environment, or "" if the service has no test suite configured.
func (m *ServiceMapping) TestDirectory(environment, serviceConceptID string) string {
	if environment == "uat" {
		return m.UAT[serviceConceptID]
	}
	return m.Production[serviceConceptID]
}
