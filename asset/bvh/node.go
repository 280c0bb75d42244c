package bvh

import "github.com/StarsX/SparseVolumeDXR/types"

// A BVH node. Inner nodes reference two children; leaves reference Count
// items starting at First in the item order established by the leaf callback.
type Node struct {
	Min types.Vec3
	Max types.Vec3

	Left  int32
	Right int32

	First uint32
	Count uint32
}

func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

func (n *Node) SetChildNodes(left, right uint32) {
	n.Left = int32(left)
	n.Right = int32(right)
}

func (n *Node) SetLeaf(first, count uint32) {
	n.Left = -1
	n.Right = -1
	n.First = first
	n.Count = count
}

// Slab test against a ray given its origin and inverse direction. Returns
// true if the ray overlaps the node box inside [tMin, tMax].
func (n *Node) IntersectRay(origin, invDir types.Vec3, tMin, tMax float32) bool {
	for axis := 0; axis < 3; axis++ {
		t0 := (n.Min[axis] - origin[axis]) * invDir[axis]
		t1 := (n.Max[axis] - origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return false
		}
	}
	return true
}
