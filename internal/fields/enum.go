package fields

import (
	"encoding/json"
	"net/url"
	"strings"
)

// EnumOptions is the shared options bag for radio, select and multicheck
// fields: an admin-defined value list plus a default selection.
type EnumOptions struct {
	Values  []string `json:"values"`
	Default string   `json:"default"`
}

func (o EnumOptions) contains(v string) bool {
	for _, candidate := range o.Values {
		if candidate == v {
			return true
		}
	}
	return false
}

// enumOptionsFromDefinition parses the admin definition post. Values arrive
// either as repeated `values` keys or one newline-separated blob.
func enumOptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	var values []string
	if vs, ok := post["values"]; ok && len(vs) > 1 {
		values = vs
	} else {
		for _, line := range strings.Split(post.Get("values"), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				values = append(values, line)
			}
		}
	}
	return json.Marshal(EnumOptions{Values: values, Default: post.Get("default")})
}
