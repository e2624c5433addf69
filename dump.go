package loom

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// DumpTree writes a table of every live effect: identity, kind, status,
// ownership and dependency counts. Diagnostic only; the output format is not
// stable.
func DumpTree(rt *Runtime, w io.Writer) {
	ids := make([]uint64, 0, len(rt.effects))
	for id := range rt.effects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"id", "parent", "depth", "kind", "status", "paused", "deps", "children",
	})
	for _, id := range ids {
		e := rt.effects[id]
		table.Append([]string{
			strconv.FormatUint(e.id, 10),
			formatParent(e.parent),
			strconv.Itoa(e.depth),
			e.kind.String(),
			e.status.String(),
			strconv.FormatBool(e.paused),
			strconv.Itoa(len(e.track.deps)),
			formatChildren(e.children),
		})
	}
	table.Render()
}

func formatParent(id uint64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatUint(id, 10)
}

func formatChildren(ids []uint64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
