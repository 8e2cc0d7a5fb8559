package proc

import (
	"slices"
	"strings"
)

// Tree drawing fragments.
const (
	prefixIndent    = " │ "
	prefixCollapsed = "[+]─"
	prefixExpanded  = "[-]─"
	prefixBranch    = " ├─ "
	prefixLast      = " └─ "
	prefixFirst     = " ┌─ "
)

// Row is an arranged entry. In tree mode figures of a collapsed row include
// its hidden descendants.
type Row struct {
	Entry

	// TreeIndex is the display position. Rows that are filtered out or
	// hidden under a collapsed ancestor carry the number of rows instead.
	TreeIndex   int
	Depth       int
	Prefix      string
	Filtered    bool
	HasChildren bool
}

// ViewOptions controls Arrange.
type ViewOptions struct {
	Sort      SortField
	Ascending bool
	Tree      bool
	Filter    string
}

// Arrange sorts, filters and optionally builds the process tree. The result
// is ordered by TreeIndex, visible rows first.
func Arrange(entries []Entry, opts ViewOptions) []Row {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{Entry: e}
	}
	if len(rows) == 0 {
		return rows
	}

	sortRows(rows, opts.Sort, opts.Ascending)

	if opts.Tree {
		newTree(rows, opts).build()
	} else {
		arrangeFlat(rows, opts)
	}

	slices.SortStableFunc(rows, func(a, b Row) int { return a.TreeIndex - b.TreeIndex })
	return rows
}

func arrangeFlat(rows []Row, opts ViewOptions) {
	if opts.Sort == SortCPULazy && !opts.Ascending {
		lazyRotate(rows)
	}

	idx := 0
	for i := range rows {
		r := &rows[i]
		r.Filtered = !r.matches(opts.Filter)
		if r.Filtered {
			r.TreeIndex = len(rows)
			continue
		}
		r.TreeIndex = idx
		idx++
	}
}

// node is one arena slot; indexes refer to the rows slice.
type node struct {
	children []int
	visible  bool
}

type tree struct {
	rows  []Row
	nodes []node
	roots []int
	opts  ViewOptions
}

func newTree(rows []Row, opts ViewOptions) *tree {
	t := &tree{rows: rows, nodes: make([]node, len(rows)), opts: opts}

	pos := make(map[int32]int, len(rows))
	for i := range rows {
		pos[rows[i].PID] = i
	}

	parent := make([]int, len(rows))
	for i := range rows {
		parent[i] = -1
		if p, ok := pos[rows[i].PPID]; ok && p != i {
			parent[i] = p
		}
	}
	for i, p := range parent {
		if p < 0 {
			t.roots = append(t.roots, i)
		} else {
			t.nodes[p].children = append(t.nodes[p].children, i)
		}
	}
	return t
}

func (t *tree) build() {
	visited := make([]bool, len(t.rows))
	for _, r := range t.roots {
		t.mark(r, 0, false, false, -1, visited)
	}
	// Members of a parent cycle are unreachable from the roots; the first of
	// each cycle in sort order becomes a root.
	for i := range t.rows {
		if !visited[i] {
			t.roots = append(t.roots, i)
			t.mark(i, 0, false, false, -1, visited)
		}
	}

	t.resort()

	idx := 0
	for _, r := range t.roots {
		t.assign(r, &idx)
	}
	t.decorate()
}

// mark walks the subtree at i, applying the filter and collapse state and
// folding hidden rows into the collapsed ancestor that absorbs them.
// Edges back to visited nodes are dropped, which breaks cycles.
func (t *tree) mark(i, depth int, found, hidden bool, absorber int, visited []bool) {
	visited[i] = true
	r := &t.rows[i]

	filtering := false
	if !found && t.opts.Filter != "" {
		if r.matches(t.opts.Filter) {
			found = true
			depth = 0
		} else {
			filtering = true
		}
	}
	r.Filtered = filtering
	r.Depth = depth

	nd := &t.nodes[i]
	nd.visible = !hidden && !filtering

	childHidden, childAbsorber := hidden, absorber
	if !hidden && r.Collapsed {
		childHidden = true
		if nd.visible {
			childAbsorber = i
		} else {
			childAbsorber = -1
		}
	}

	kept := nd.children[:0]
	for _, c := range nd.children {
		if visited[c] {
			continue
		}
		kept = append(kept, c)
		t.mark(c, depth+1, found, childHidden, childAbsorber, visited)
	}
	nd.children = kept
	r.HasChildren = len(kept) > 0

	if hidden && absorber >= 0 {
		a := &t.rows[absorber]
		a.CPUPercent += r.CPUPercent
		a.CPUCumulative += r.CPUCumulative
		a.Memory += r.Memory
		a.Threads += r.Threads
	}
}

// resort re-orders siblings by the aggregated figures for the fields that
// collapsing changes. Other fields keep the flat order.
func (t *tree) resort() {
	switch t.opts.Sort {
	case SortThreads, SortMemory, SortCPUDirect, SortCPULazy:
	default:
		return
	}

	byField := func(a, b int) int {
		c := compareBy(t.opts.Sort, &t.rows[a].Entry, &t.rows[b].Entry)
		if t.opts.Ascending {
			return c
		}
		return -c
	}
	slices.SortStableFunc(t.roots, byField)
	for i := range t.nodes {
		slices.SortStableFunc(t.nodes[i].children, byField)
	}
}

func (t *tree) assign(i int, idx *int) {
	if t.nodes[i].visible {
		t.rows[i].TreeIndex = *idx
		*idx++
	} else {
		t.rows[i].TreeIndex = len(t.rows)
	}
	for _, c := range t.nodes[i].children {
		t.assign(c, idx)
	}
}

func (t *tree) decorate() {
	for i := range t.rows {
		r := &t.rows[i]
		if !t.nodes[i].visible {
			continue
		}
		marker := prefixBranch
		switch {
		case r.HasChildren && r.Collapsed:
			marker = prefixCollapsed
		case r.HasChildren:
			marker = prefixExpanded
		}
		r.Prefix = strings.Repeat(prefixIndent, r.Depth) + marker
	}

	for i := range t.rows {
		kids := t.nodes[i].children
		if !t.nodes[i].visible || t.rows[i].Collapsed || len(kids) == 0 {
			continue
		}
		t.terminate(kids[len(kids)-1], prefixLast)
	}

	first, last := -1, -1
	for _, r := range t.roots {
		if !t.nodes[r].visible {
			continue
		}
		if first < 0 {
			first = r
		}
		last = r
	}
	if first >= 0 {
		t.terminate(first, prefixFirst)
		t.terminate(last, prefixLast)
	}
}

// terminate swaps the leaf connector of a visible childless row.
func (t *tree) terminate(i int, marker string) {
	r := &t.rows[i]
	if !t.nodes[i].visible || r.HasChildren {
		return
	}
	r.Prefix = r.Prefix[:len(r.Prefix)-len(prefixBranch)] + marker
}
