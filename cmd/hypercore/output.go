package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/hypercore/internal/module"
	"github.com/loykin/hypercore/internal/util"
	"gopkg.in/yaml.v3"
)

// writeResult prints res to w as an indented JSON or YAML document.
func writeResult(w io.Writer, res *module.Result, format string) error {
	switch util.TrimWithDefault(util.TrimAndLower(format), "json") {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode yaml result: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode json result: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
