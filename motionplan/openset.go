package motionplan

type node struct {
	state int
	f     int
	turns int
	h     int
	seq   int
}

// openSet is a min-heap ordered by f, then turns, then h, then insertion order.
type openSet struct {
	nodes []*node
	seq   int
}

func (o *openSet) Len() int { return len(o.nodes) }

func (o *openSet) Less(i, j int) bool {
	a, b := o.nodes[i], o.nodes[j]
	switch {
	case a.f != b.f:
		return a.f < b.f
	case a.turns != b.turns:
		return a.turns < b.turns
	case a.h != b.h:
		return a.h < b.h
	}
	return a.seq < b.seq
}

func (o *openSet) Swap(i, j int) { o.nodes[i], o.nodes[j] = o.nodes[j], o.nodes[i] }

func (o *openSet) Push(x any) {
	n := x.(*node)
	n.seq = o.seq
	o.seq++
	o.nodes = append(o.nodes, n)
}

func (o *openSet) Pop() any {
	last := len(o.nodes) - 1
	n := o.nodes[last]
	o.nodes[last] = nil
	o.nodes = o.nodes[:last]
	return n
}
