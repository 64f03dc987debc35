// Package policies embeds the built-in Risor check policies.
package policies

import "embed"

// FS holds default.risor and strict.risor.
//
//go:embed *.risor
var FS embed.FS

// Names lists the built-in policies by the name the CLI accepts.
var Names = []string{"default", "strict"}

// Path returns the script path within FS for a built-in policy name.
func Path(name string) string {
	return name + ".risor"
}
