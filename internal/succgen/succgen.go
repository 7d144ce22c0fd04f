// Package succgen implements a decision-tree successor generator: given a
// state, it returns every operator whose precondition the state satisfies
// without scanning the full operator list.
package succgen

import "github.com/danfis/maplan-go/internal/problem"

// node is either a leaf holding immediate operators (var is unset) or an
// internal node that branches on the value of var, plus a default branch
// for operators that don't constrain var at all.
type node struct {
	hasVar bool
	v      problem.VarID
	ops    []problem.OpID
	val    map[int]*node
	def    *node
}

// Generator finds applicable operators for a state in time proportional to
// the size of the result, not the size of the operator set.
type Generator struct {
	root     *node
	numOps   int
	varOrder []problem.VarID
}

// New builds a generator over ops, branching on variables in the given
// order. varOrder need not cover every variable; operators that still
// differ only on variables outside it all land in the same leaf.
func New(ops []problem.Operator, varOrder []problem.VarID) *Generator {
	refs := make([]*problem.Operator, len(ops))
	index := make(map[*problem.Operator]problem.OpID, len(ops))
	for i := range ops {
		refs[i] = &ops[i]
		index[&ops[i]] = problem.OpID(i)
	}
	return &Generator{
		root:     build(refs, varOrder, 0, index),
		numOps:   len(ops),
		varOrder: varOrder,
	}
}

// NumOperators returns the number of operators the generator was built with.
func (g *Generator) NumOperators() int { return g.numOps }

func build(ops []*problem.Operator, order []problem.VarID, idx int, index map[*problem.Operator]problem.OpID) *node {
	if len(ops) == 0 {
		return &node{}
	}
	for idx < len(order) {
		v := order[idx]
		anySet := false
		for _, op := range ops {
			if op.Pre.Has(v) {
				anySet = true
				break
			}
		}
		if anySet {
			break
		}
		idx++
	}
	if idx == len(order) {
		n := &node{}
		for _, op := range ops {
			n.ops = append(n.ops, index[op])
		}
		return n
	}

	v := order[idx]
	var unset []*problem.Operator
	byVal := make(map[int][]*problem.Operator)
	for _, op := range ops {
		if val, ok := op.Pre[v]; ok {
			byVal[val] = append(byVal[val], op)
		} else {
			unset = append(unset, op)
		}
	}

	n := &node{hasVar: true, v: v}
	if len(unset) > 0 {
		n.def = build(unset, order, idx+1, index)
	}
	if len(byVal) > 0 {
		n.val = make(map[int]*node, len(byVal))
		for val, subset := range byVal {
			n.val[val] = build(subset, order, idx+1, index)
		}
	}
	return n
}

// FindState returns every operator applicable to the total state s, each
// given as its position in the ops slice passed to New (not its ID).
func (g *Generator) FindState(s problem.State) []problem.OpID {
	var out []problem.OpID
	if g.root == nil {
		return out
	}
	g.root.findByState(s, &out)
	return out
}

func (n *node) findByState(s problem.State, out *[]problem.OpID) {
	if len(n.ops) > 0 {
		*out = append(*out, n.ops...)
	}
	if !n.hasVar {
		return
	}
	val := s[n.v]
	if child, ok := n.val[val]; ok {
		child.findByState(s, out)
	}
	if n.def != nil {
		n.def.findByState(s, out)
	}
}

// FindPartial returns every operator applicable to a partial state, i.e.
// every operator whose precondition doesn't conflict with any assignment
// present in p. Operators are given by position, as in FindState.
func (g *Generator) FindPartial(p problem.PartialState) []problem.OpID {
	var out []problem.OpID
	if g.root == nil {
		return out
	}
	g.root.findByPartial(p, &out)
	return out
}

func (n *node) findByPartial(p problem.PartialState, out *[]problem.OpID) {
	if len(n.ops) > 0 {
		*out = append(*out, n.ops...)
	}
	if !n.hasVar {
		return
	}
	if val, ok := p[n.v]; ok {
		if child, ok := n.val[val]; ok {
			child.findByPartial(p, out)
		}
	}
	if n.def != nil {
		n.def.findByPartial(p, out)
	}
}
