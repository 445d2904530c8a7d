package config

import (
	"fmt"
	"strings"
)

// RenderDefaultYAML renders a YAML config with defaults from GetConfigOptions.
func RenderDefaultYAML() string {
	var b strings.Builder
	b.WriteString("# serialctl configuration (YAML)\n\n")
	for _, o := range GetConfigOptions() {
		writeYAMLOption(&b, o.Key, o.Default, o.Comment)
	}
	return b.String()
}

func writeYAMLOption(b *strings.Builder, key string, value any, comment string) {
	if comment != "" {
		b.WriteString("# " + comment + "\n")
	}
	switch v := value.(type) {
	case string:
		fmt.Fprintf(b, "%s: %q\n\n", key, v)
	default:
		fmt.Fprintf(b, "%s: %v\n\n", key, v)
	}
}
