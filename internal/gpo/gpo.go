// Package gpo extracts name/path pairs from exported Group Policy report
// files. The export tooling writes one XML report per policy object.
package gpo

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Policy is one extracted Group Policy object.
type Policy struct {
	Name string `xml:"Name"`
	Path string `xml:"Path"`
}

// ParseDir walks dir for XML report files and extracts a Policy from each.
// Files that cannot be parsed are reported as warnings rather than failing
// the whole scan.
func ParseDir(dir string) ([]Policy, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read report directory %s: %w", dir, err)
	}

	var policies []Policy
	var warnings []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		policy, err := parseFile(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		policies = append(policies, policy)
	}

	return policies, warnings, nil
}

func parseFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read report: %w", err)
	}

	var policy Policy
	if err := xml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse report: %w", err)
	}
	if policy.Name == "" {
		return Policy{}, fmt.Errorf("report has no Name element")
	}
	return policy, nil
}
