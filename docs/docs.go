package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "HVAC Dispatch Backend",
    "description": "Technician assignment, scheduling and workload balancing for HVAC service jobs",
    "version": "1.0"
  },
  "basePath": "/",
  "tags": [
    {"name": "technicians"},
    {"name": "dispatch"},
    {"name": "jobs"},
    {"name": "workload"},
    {"name": "board"},
    {"name": "import"}
  ],
  "paths": {}
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
