// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"orgdiag-pipeline/internal/pipeline/render"
	"orgdiag-pipeline/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	idAdd := addCmd.String("id", "", "Template ID (e.g., executive)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Executive Summary)")
	description := addCmd.String("description", "", "Description")
	file := addCmd.String("file", "", "Template file name under the template directory (e.g., executive.html)")
	version := addCmd.String("version", "1.0.0", "Version")
	tags := addCmd.String("tags", "", "Comma-separated tags (e.g., condensed,board)")
	addCmd.StringVar(&registryPath, "path", "templates/registry.json", "Path to registry file")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Template ID to update")
	field := updateCmd.String("field", "", "Field to update (displayName, description, version, file, tags)")
	value := updateCmd.String("value", "", "New value for the field")
	updateCmd.StringVar(&registryPath, "path", "templates/registry.json", "Path to registry file")

	// Validate command flags
	templateDir := validateCmd.String("templates", "templates", "Template directory the manifest entries resolve under")
	validateCmd.StringVar(&registryPath, "path", "templates/registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *file == "" {
			fmt.Println("Error: id, displayName, and file are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		tpl := registry.Template{
			ID:          *idAdd,
			DisplayName: *displayName,
			Description: *description,
			Version:     *version,
			File:        *file,
			Tags:        splitTags(*tags),
		}
		if err := addTemplate(&tpl); err != nil {
			fmt.Printf("Error adding template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added template: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(*templateDir); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func splitTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func addTemplate(tpl *registry.Template) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		// If file doesn't exist, create new registry
		if os.IsNotExist(err) {
			reg = &registry.TemplateRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().Format(time.RFC3339),
				Templates:   []registry.Template{},
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	// Check if template already exists
	for _, existing := range reg.Templates {
		if existing.ID == tpl.ID {
			return fmt.Errorf("template with ID %s already exists", tpl.ID)
		}
	}

	// Add new template
	reg.Templates = append(reg.Templates, *tpl)
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	// Save registry
	return saveRegistry(reg, registryPath)
}

func updateTemplate(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Templates {
		if reg.Templates[i].ID == id {
			found = true
			switch field {
			case "displayName":
				reg.Templates[i].DisplayName = value
			case "description":
				reg.Templates[i].Description = value
			case "version":
				reg.Templates[i].Version = value
			case "file":
				reg.Templates[i].File = value
			case "tags":
				reg.Templates[i].Tags = splitTags(value)
			default:
				return fmt.Errorf("unknown field: %s", field)
			}
			break
		}
	}

	if !found {
		return fmt.Errorf("template with ID %s not found", id)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func validateRegistry(templateDir string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}

	ids := make(map[string]bool)
	for _, tpl := range reg.Templates {
		if tpl.ID == "" {
			return fmt.Errorf("template missing required field: ID")
		}
		if ids[tpl.ID] {
			return fmt.Errorf("duplicate template ID: %s", tpl.ID)
		}
		ids[tpl.ID] = true

		if tpl.DisplayName == "" {
			return fmt.Errorf("template %s missing required field: DisplayName", tpl.ID)
		}
		if tpl.File == "" {
			return fmt.Errorf("template %s missing required field: File", tpl.ID)
		}

		path := filepath.Join(templateDir, tpl.File)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("template %s: file %s not found: %w", tpl.ID, path, err)
		}
	}

	// Parse every entry the way the renderer does at startup, so a file that
	// does not parse here will not parse there either.
	if err := render.ValidateTemplates(templateDir, reg); err != nil {
		return err
	}

	fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))
	return nil
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.TemplateRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new template to the registry
  update   Update an existing template's field
  validate Validate the registry file against the template directory
  help     Show this help message

Examples:
  registry-updater add -id executive -displayName "Executive Summary" -description "One-page condensed view" -file executive.html -tags condensed
  registry-updater update -id executive -field version -value 1.1.0
  registry-updater validate -path templates/registry.json -templates templates

Use 'registry-updater <command> -h' for more information about a command.

`)
}
