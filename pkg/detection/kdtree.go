package detection

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is a 2D location stored in a k-d tree. Index refers back to the
// caller's slice.
type point struct {
	Row, Col float64
	Index    int

	// chebyshev selects the max-norm instead of the Euclidean norm
	chebyshev bool
}

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.Row - q.Row
	case 1:
		return p.Col - q.Col
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p point) Dims() int { return 2 }

// Distance returns the squared distance between two points. The squared
// max-norm keeps the tree's plane pruning valid.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dr := p.Row - q.Row
	dc := p.Col - q.Col
	if p.chebyshev {
		m := math.Max(math.Abs(dr), math.Abs(dc))
		return m * m
	}
	return dr*dr + dc*dc
}

// points is a collection of point that satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{points: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{points: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for points
type pointPlane struct {
	points
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].Row < p.points[j].Row
	case 1:
		return p.points[i].Col < p.points[j].Col
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{points: p.points[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// within returns the indices of all points in tree within radius of q
func within(tree *kdtree.Tree, q point, radius float64) []int {
	keeper := kdtree.NewDistKeeper(radius * radius)
	tree.NearestSet(keeper, q)

	idx := make([]int, 0, keeper.Len())
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		idx = append(idx, c.Comparable.(point).Index)
	}
	return idx
}
