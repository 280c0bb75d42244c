package bvh

import (
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/StarsX/SparseVolumeDXR/log"
	"github.com/StarsX/SparseVolumeDXR/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis

	// The BVH builder will not attempt to calculate split candidates
	// if the spread of item centers along an axis is less than this threshold.
	minSideLength float32 = 1e-6

	// Number of bins used to bucket item centers when evaluating splits.
	numBins = 32
)

var (
	// A split scoring strategy that uses the surface area heuristic (SAH).
	SurfaceAreaHeuristic = surfaceAreaHeuristic{}
)

// The BoundedVolume interface is implemented by all primitives that can
// be partitioned by the bvh builder.
type BoundedVolume interface {
	BBox() [2]types.Vec3
	Center() types.Vec3
}

// A callback that is called whenever the BVH builder creates a new leaf.
type LeafCallback func(leaf *Node, itemList []BoundedVolume)

// A split scoring strategy. Lower scores are better.
type ScoreStrategy interface {
	// Calculate a score for splitting a partition into two sets.
	ScoreSplit(leftCount int, leftBBox [2]types.Vec3, rightCount int, rightBBox [2]types.Vec3) float32

	// Calculate a score for keeping count items with the given bbox together.
	ScorePartition(count int, bbox [2]types.Vec3) float32
}

type splitScore struct {
	axis Axis

	// Items whose center falls in a bin <= splitBin go to the left child.
	splitBin int
	binMin   float32
	binScale float32

	leftCount, rightCount int
	score                 float32
}

type stats struct {
	partitionedItems int
	totalItems       int
	nodes            int
	leafs            int
	maxDepth         int
}

type builder struct {
	logger log.Logger

	// Bvh nodes stored as a contiguous list
	nodes []Node

	// A callback invoked to set up BVH leafs depending on the type of
	// partitioned bounding volume
	leafCb LeafCallback

	// The minimum number of items that are required for creating a leaf.
	minLeafItems int

	// The split scoring strategy to use.
	scoreStrategy ScoreStrategy

	// Stats
	stats stats
}

// Construct a BVH from a set of bounded volumes.
//
// Item centers are bucketed into bins along each axis and every bin boundary
// is scored with the supplied strategy; the three axes are scored in parallel.
//
// The minLeafItems param should be used to specify the minimum number of
// items that can form a leaf. The BVH builder will automatically generate leafs
// if the incoming work length is <= minLeafItems. The root is always node 0.
func Build(workList []BoundedVolume, minLeafItems int, leafCb LeafCallback, scoreStrategy ScoreStrategy) []Node {
	b := &builder{
		logger:        log.New("bvh builder"),
		nodes:         make([]Node, 0, 2*len(workList)),
		leafCb:        leafCb,
		minLeafItems:  minLeafItems,
		scoreStrategy: scoreStrategy,
		stats: stats{
			totalItems: len(workList),
		},
	}

	start := time.Now()
	b.partition(workList, 0)
	b.logger.Debugf(
		"BVH tree build time: %d ms, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start).Nanoseconds()/1e6,
		b.stats.maxDepth, b.stats.nodes, b.stats.leafs,
	)
	return b.nodes
}

// Partition worklist and return node index.
func (b *builder) partition(workList []BoundedVolume, depth int) uint32 {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	bbox := types.EmptyBBox()
	centerBox := types.EmptyBBox()
	for _, item := range workList {
		itemBBox := item.BBox()
		bbox[0] = types.MinVec3(bbox[0], itemBBox[0])
		bbox[1] = types.MaxVec3(bbox[1], itemBBox[1])
		center := item.Center()
		centerBox[0] = types.MinVec3(centerBox[0], center)
		centerBox[1] = types.MaxVec3(centerBox[1], center)
	}
	node := Node{Min: bbox[0], Max: bbox[1]}

	// Do we have enough items for partitioning? If not create a leaf
	if len(workList) <= b.minLeafItems {
		return b.createLeaf(&node, workList)
	}

	bestScore := b.scoreStrategy.ScorePartition(len(workList), bbox)
	var bestSplit *splitScore

	var candidates [3]splitScore
	var g errgroup.Group
	for axis := XAxis; axis <= ZAxis; axis++ {
		axis := axis
		candidates[axis].score = math.MaxFloat32
		if centerBox[1][axis]-centerBox[0][axis] < minSideLength {
			continue
		}
		g.Go(func() error {
			candidates[axis] = b.scoreAxis(workList, axis, centerBox[0][axis], centerBox[1][axis])
			return nil
		})
	}
	_ = g.Wait()

	for axis := range candidates {
		if candidates[axis].score < bestScore {
			bestScore = candidates[axis].score
			bestSplit = &candidates[axis]
		}
	}

	// If we can't find a split that improves the current node score create a leaf
	if bestSplit == nil {
		return b.createLeaf(&node, workList)
	}

	leftWorkList := make([]BoundedVolume, 0, bestSplit.leftCount)
	rightWorkList := make([]BoundedVolume, 0, bestSplit.rightCount)
	for _, item := range workList {
		if bestSplit.binOf(item.Center()) <= bestSplit.splitBin {
			leftWorkList = append(leftWorkList, item)
		} else {
			rightWorkList = append(rightWorkList, item)
		}
	}

	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.stats.nodes++

	// Partition children and update node indices
	leftNodeIndex := b.partition(leftWorkList, depth+1)
	rightNodeIndex := b.partition(rightWorkList, depth+1)
	b.nodes[nodeIndex].SetChildNodes(leftNodeIndex, rightNodeIndex)

	return uint32(nodeIndex)
}

// Bin item centers along an axis and return the best scoring bin boundary.
func (b *builder) scoreAxis(workList []BoundedVolume, axis Axis, cmin, cmax float32) splitScore {
	best := splitScore{
		axis:     axis,
		binMin:   cmin,
		binScale: float32(numBins) / (cmax - cmin),
		score:    math.MaxFloat32,
	}

	var counts [numBins]int
	var boxes [numBins][2]types.Vec3
	for i := range boxes {
		boxes[i] = types.EmptyBBox()
	}
	for _, item := range workList {
		bin := best.binOf(item.Center())
		itemBBox := item.BBox()
		counts[bin]++
		boxes[bin][0] = types.MinVec3(boxes[bin][0], itemBBox[0])
		boxes[bin][1] = types.MaxVec3(boxes[bin][1], itemBBox[1])
	}

	// Sweep from the right to accumulate the right hand side of each split
	var rightCounts [numBins]int
	var rightBoxes [numBins][2]types.Vec3
	acc := types.EmptyBBox()
	count := 0
	for bin := numBins - 1; bin > 0; bin-- {
		count += counts[bin]
		acc[0] = types.MinVec3(acc[0], boxes[bin][0])
		acc[1] = types.MaxVec3(acc[1], boxes[bin][1])
		rightCounts[bin] = count
		rightBoxes[bin] = acc
	}

	acc = types.EmptyBBox()
	count = 0
	for bin := 0; bin < numBins-1; bin++ {
		count += counts[bin]
		acc[0] = types.MinVec3(acc[0], boxes[bin][0])
		acc[1] = types.MaxVec3(acc[1], boxes[bin][1])

		// Make sure that we don't generate empty partitions
		if count == 0 || rightCounts[bin+1] == 0 {
			continue
		}

		score := b.scoreStrategy.ScoreSplit(count, acc, rightCounts[bin+1], rightBoxes[bin+1])
		if score < best.score {
			best.score = score
			best.splitBin = bin
			best.leftCount = count
			best.rightCount = rightCounts[bin+1]
		}
	}

	return best
}

func (s *splitScore) binOf(center types.Vec3) int {
	bin := int((center[s.axis] - s.binMin) * s.binScale)
	if bin < 0 {
		return 0
	}
	if bin >= numBins {
		return numBins - 1
	}
	return bin
}

// Setup the given node item as a leaf node containing all items in the work list.
// Returns the index to the node in the bvh node array.
func (b *builder) createLeaf(node *Node, workList []BoundedVolume) uint32 {
	node.SetLeaf(uint32(b.stats.partitionedItems), uint32(len(workList)))
	if b.leafCb != nil {
		b.leafCb(node, workList)
	}

	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, *node)

	b.stats.leafs++
	b.stats.partitionedItems += len(workList)

	return uint32(nodeIndex)
}

// A score implementation that uses surface area heuristic for calculating split scores.
type surfaceAreaHeuristic struct{}

// Score a BVH split based on the surface area heuristic (lower is better):
//
// left count * left BBOX area + rightCount * right BBOX area.
func (h surfaceAreaHeuristic) ScoreSplit(leftCount int, leftBBox [2]types.Vec3, rightCount int, rightBBox [2]types.Vec3) float32 {
	if leftCount == 0 || rightCount == 0 {
		return math.MaxFloat32
	}
	return float32(leftCount)*halfArea(leftBBox) + float32(rightCount)*halfArea(rightBBox)
}

// Calculate score for a partition using formula: count * BBOX area
func (h surfaceAreaHeuristic) ScorePartition(count int, bbox [2]types.Vec3) float32 {
	if count == 0 {
		return math.MaxFloat32
	}
	return float32(count) * halfArea(bbox)
}

func halfArea(bbox [2]types.Vec3) float32 {
	side := bbox[1].Sub(bbox[0])
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}
