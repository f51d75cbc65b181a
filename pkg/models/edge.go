package models

// EdgeRow is a weighted call-graph edge for export.
type EdgeRow struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Key    string `json:"key"`
	Weight int    `json:"weight"`
}
