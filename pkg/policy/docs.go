// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package policy decides whether an authenticated Identity may perform an
// operation. Each operation, identified by HTTP method and chi route
// pattern, is registered with at most one Requirement: a permission scope
// granted through Keycloak authorization services, or a realm role.
// Operations missing from the registry are open to any caller that reached
// the guard.
package policy

import (
	"bytes"
	"text/template"
	"time"
)

const registryTemplate = `# {{.Title}}

**Generated:** {{.GeneratedAt.Format "2006-01-02 15:04:05 UTC"}}
**Source:** {{.Source}}

Operations not listed below are open to any authenticated caller.

| Method | Route | Kind | Requires |
|--------|-------|------|----------|
{{- range .Entries}}
| {{.Method}} | ` + "`{{.Pattern}}`" + ` | {{.Requirement.Kind}} | {{.Requirement.Name}} |
{{- end}}
`

var registryDoc = template.Must(template.New("registry").Parse(registryTemplate))

// RegistryDocumentation is the input to the registry markdown template.
type RegistryDocumentation struct {
	Title       string
	Source      string
	GeneratedAt time.Time
	Entries     []Entry
}

// GenerateMarkdown renders the registry as a markdown table.
func GenerateMarkdown(r *Registry, source string) (string, error) {
	doc := RegistryDocumentation{
		Title:       "Realmgate authorization registry",
		Source:      source,
		GeneratedAt: time.Now().UTC(),
		Entries:     r.Requirements(),
	}

	var buf bytes.Buffer
	if err := registryDoc.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
