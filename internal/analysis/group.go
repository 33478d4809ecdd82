package analysis

// ComponentRow is one raw connectivity row.
type ComponentRow struct {
	NodeID      string
	ComponentID int64
}

type ComponentGroup struct {
	ComponentID int64    `json:"component_id"`
	Nodes       []string `json:"nodes"`
}

// GroupComponents groups rows by component id. Groups and their members keep
// the order in which they were first seen.
func GroupComponents(rows []ComponentRow) []ComponentGroup {
	out := make([]ComponentGroup, 0)
	index := make(map[int64]int)
	for _, row := range rows {
		i, ok := index[row.ComponentID]
		if !ok {
			i = len(out)
			index[row.ComponentID] = i
			out = append(out, ComponentGroup{ComponentID: row.ComponentID})
		}
		out[i].Nodes = append(out[i].Nodes, row.NodeID)
	}
	return out
}
