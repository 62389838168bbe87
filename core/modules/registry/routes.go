package registry

import (
	"bytes"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/cordum/modhost/core/modules/pathpolicy"
)

var routesTemplate = template.Must(template.New("routes").Parse(`// Code generated by modhost. DO NOT EDIT.
{{range .}}
import { {{.Export}} } from "{{.Import}}";{{end}}
{{range .}}
export { {{.Export}} };{{end}}

export const moduleRoutes = [{{range $i, $r := .}}{{if $i}}, {{end}}{{$r.Export}}{{end}}];
`))

type routeImport struct {
	ID     string
	Export string
	Import string
}

// RenderRoutes builds the route aggregation source for entries. Only entries
// with both routeExport and routes are wired; output is ordered by id so the
// same registry always renders the same file. base is the import prefix of
// the modules directory relative to the artifact.
func RenderRoutes(entries []Entry, base string) ([]byte, error) {
	routes := []routeImport{}
	for _, e := range entries {
		if e.RouteExport == "" || e.Routes == "" {
			continue
		}
		target := strings.TrimSuffix(pathpolicy.Normalize(e.Routes), path.Ext(e.Routes))
		routes = append(routes, routeImport{
			ID:     e.ID,
			Export: e.RouteExport,
			Import: path.Join(base, e.ID, target),
		})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	for i := range routes {
		if !strings.HasPrefix(routes[i].Import, ".") && !strings.HasPrefix(routes[i].Import, "/") {
			routes[i].Import = "./" + routes[i].Import
		}
	}
	var buf bytes.Buffer
	if err := routesTemplate.Execute(&buf, routes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
