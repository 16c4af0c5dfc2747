// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"os"
)

func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TemplateRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Find returns the template entry with the given id.
func (r *TemplateRegistry) Find(id string) (*Template, bool) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

// IDs lists the registered template identifiers in manifest order.
func (r *TemplateRegistry) IDs() []string {
	ids := make([]string, 0, len(r.Templates))
	for _, t := range r.Templates {
		ids = append(ids, t.ID)
	}
	return ids
}
