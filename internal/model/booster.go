package model

import "fmt"

// Node is one node of a regression tree. Leaves have Left == Right == -1.
// Samples with x[Feature] < Threshold go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

func (n *Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict returns the leaf value reached by x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks that every child index points forward, which rules out
// cycles, and that each node has at most one parent.
func (t *Tree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrMalformedTree)
	}
	parents := make([]int, len(t.Nodes))
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			if n.Right >= 0 {
				return fmt.Errorf("%w: node %d has a right child only", ErrMalformedTree, i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("%w: node %d splits on feature %d of %d", ErrMalformedTree, i, n.Feature, nFeatures)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("%w: node %d has child %d", ErrMalformedTree, i, c)
			}
			parents[c]++
			if parents[c] > 1 {
				return fmt.Errorf("%w: node %d has several parents", ErrMalformedTree, c)
			}
		}
	}
	return nil
}

// Booster is an additive tree ensemble scored in log-odds space.
type Booster struct {
	BaseScore float64 `json:"base_score"`
	Trees     []Tree  `json:"trees"`
}

// Margin returns the raw ensemble score for an encoded row.
func (b *Booster) Margin(x []float64) float64 {
	m := b.BaseScore
	for i := range b.Trees {
		m += b.Trees[i].Predict(x)
	}
	return m
}

func (b *Booster) validate(nFeatures int) error {
	if len(b.Trees) == 0 {
		return fmt.Errorf("%w: booster has no trees", ErrMalformedTree)
	}
	for i := range b.Trees {
		if err := b.Trees[i].validate(nFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
