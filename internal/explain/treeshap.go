package explain

import "github.com/kiranshivaraju/attrition/internal/model"

// pathElement tracks one split on the path from the root to the current node.
// zero and one are the fractions of the path that flow through when the
// feature is absent or present; weight is the permutation weight.
type pathElement struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

func extendPath(p []pathElement, d int, zero, one float64, feature int) {
	w := 0.0
	if d == 0 {
		w = 1
	}
	p[d] = pathElement{feature: feature, zero: zero, one: one, weight: w}
	for i := d - 1; i >= 0; i-- {
		p[i+1].weight += one * p[i].weight * float64(i+1) / float64(d+1)
		p[i].weight = zero * p[i].weight * float64(d-i) / float64(d+1)
	}
}

func unwindPath(p []pathElement, d, idx int) {
	one, zero := p[idx].one, p[idx].zero
	next := p[d].weight
	for i := d - 1; i >= 0; i-- {
		if one != 0 {
			tmp := p[i].weight
			p[i].weight = next * float64(d+1) / (float64(i+1) * one)
			next = tmp - p[i].weight*zero*float64(d-i)/float64(d+1)
		} else {
			p[i].weight = p[i].weight * float64(d+1) / (zero * float64(d-i))
		}
	}
	for i := idx; i < d; i++ {
		p[i].feature = p[i+1].feature
		p[i].zero = p[i+1].zero
		p[i].one = p[i+1].one
	}
}

// unwoundPathSum is the total permutation weight of the path with element
// idx removed, without modifying p.
func unwoundPathSum(p []pathElement, d, idx int) float64 {
	one, zero := p[idx].one, p[idx].zero
	next := p[d].weight
	total := 0.0
	for i := d - 1; i >= 0; i-- {
		switch {
		case one != 0:
			tmp := next * float64(d+1) / (float64(i+1) * one)
			total += tmp
			next = p[i].weight - tmp*zero*float64(d-i)/float64(d+1)
		case zero != 0:
			total += (p[i].weight / zero) / (float64(d-i) / float64(d+1))
		}
	}
	return total
}

// treeShap adds the exact path-dependent SHAP values of one tree for row x
// into phi.
func treeShap(t *model.Tree, x, phi []float64) {
	recurse(t, x, phi, 0, 0, nil, 1, 1, -1)
}

func recurse(t *model.Tree, x, phi []float64, node, d int, parent []pathElement,
	parentZero, parentOne float64, parentFeature int) {
	p := make([]pathElement, d+1)
	copy(p, parent[:d])
	extendPath(p, d, parentZero, parentOne, parentFeature)

	n := &t.Nodes[node]
	if n.IsLeaf() {
		for i := 1; i <= d; i++ {
			w := unwoundPathSum(p, d, i)
			e := p[i]
			phi[e.feature] += w * (e.one - e.zero) * n.Value
		}
		return
	}

	hot, cold := n.Right, n.Left
	if x[n.Feature] < n.Threshold {
		hot, cold = n.Left, n.Right
	}
	hotZero := t.Nodes[hot].Cover / n.Cover
	coldZero := t.Nodes[cold].Cover / n.Cover

	incomingZero, incomingOne := 1.0, 1.0
	k := 0
	for ; k <= d; k++ {
		if p[k].feature == n.Feature {
			break
		}
	}
	// A feature split on twice along the path only counts once.
	if k <= d {
		incomingZero, incomingOne = p[k].zero, p[k].one
		unwindPath(p, d, k)
		d--
	}

	recurse(t, x, phi, hot, d+1, p, hotZero*incomingZero, incomingOne, n.Feature)
	recurse(t, x, phi, cold, d+1, p, coldZero*incomingZero, 0, n.Feature)
}

// expectedValue is the cover-weighted mean leaf value of a tree.
func expectedValue(t *model.Tree, node int) float64 {
	n := &t.Nodes[node]
	if n.IsLeaf() {
		return n.Value
	}
	l, r := &t.Nodes[n.Left], &t.Nodes[n.Right]
	return (l.Cover*expectedValue(t, n.Left) + r.Cover*expectedValue(t, n.Right)) / n.Cover
}
