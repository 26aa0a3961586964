package export

import "time"

// Column is one exported column of a form's result set. Key indexes the row
// maps (the field name or a metadata key), Label is the header shown to the
// reader, normally the field's admin prompt.
type Column struct {
	Key   string
	Label string
}

// Dataset is the flattened view of one form's submissions: a column per
// persistent field plus the submission metadata the result listing shows.
type Dataset struct {
	FormID      string
	FormName    string
	GeneratedAt time.Time
	Columns     []Column
	Rows        []map[string]string
}

func (d Dataset) labels() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.Label
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}
