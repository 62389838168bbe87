package config

import "embed"

const policySchemaFile = "schema/policy.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
