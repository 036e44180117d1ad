package templates

import "strings"

// Placeholder tokens recognized in template bodies.
const (
	SchemaPlaceholder    = "$(schema_name_from_json_input)"
	PartitionPlaceholder = "$(partition_name_from_json_input)"
)

// Render replaces every occurrence of both placeholders in body.
// Substitution is a single pass, so placeholder text inside the
// substituted values is left as-is. The result is not validated as SQL.
func Render(body, schema, partition string) string {
	return strings.NewReplacer(
		SchemaPlaceholder, schema,
		PartitionPlaceholder, partition,
	).Replace(body)
}
