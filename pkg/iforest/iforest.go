// Package iforest implements a seeded isolation forest for unsupervised
// anomaly detection. Records that random axis-aligned splits isolate in few
// steps are structurally rare and score as anomalous.
//
// Scores lie in [0, 1] with higher values meaning more anomalous; this is
// the single score convention used throughout the repository.
package iforest

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

// seedStride separates the derived per-tree seeds so ensembles stay
// reproducible no matter how tree construction is scheduled.
const seedStride = 0x9E3779B9

// defaultSampleSize caps the sub-sample drawn for each tree. Sub-sampling
// bounds tree depth and decorrelates trees.
const defaultSampleSize = 256

// Options configures ensemble construction.
type Options struct {
	// Trees is the ensemble size. Must be at least 1.
	Trees int
	// SampleSize caps the per-tree sub-sample. Zero selects
	// min(defaultSampleSize, record count).
	SampleSize int
	// Contamination is the expected fraction of anomalies, in (0, 0.5].
	Contamination float64
	// Seed drives all randomness; a fixed seed reproduces identical trees
	// and scores.
	Seed int64
	// Workers bounds parallel tree construction. Zero means GOMAXPROCS.
	Workers int
}

// InsufficientDataError reports a table too small to build a meaningful
// ensemble.
type InsufficientDataError struct {
	Records int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d records, need at least 2", e.Records)
}

// InvalidConfigError reports out-of-range ensemble parameters.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid ensemble config: " + e.Reason
}

// node is one slot in a tree's arena. Leaves have left == -1 and carry the
// residual record count; internal nodes carry the split feature and
// threshold plus child indices.
type node struct {
	feature   int32
	left      int32
	right     int32
	size      int32
	threshold float64
}

// tree is an isolation tree stored as an arena of nodes indexed by integer
// id. Index 0 is the root. Immutable after construction.
type tree struct {
	nodes []node
}

// Ensemble is a trained isolation forest. Immutable after Fit.
type Ensemble struct {
	trees      []tree
	sampleSize int
	nFeatures  int
	// norm is the expected path length c(sampleSize) of a random record,
	// computed once per ensemble.
	norm float64
}

// Fit builds an ensemble over the given records. Every row must have the
// same number of features. It fails with InsufficientDataError for fewer
// than 2 records and InvalidConfigError for out-of-range options.
func Fit(data [][]float64, opts Options) (*Ensemble, error) {
	if opts.Trees < 1 {
		return nil, &InvalidConfigError{Reason: fmt.Sprintf("ensemble size must be at least 1, got %d", opts.Trees)}
	}
	if opts.Contamination <= 0 || opts.Contamination > 0.5 {
		return nil, &InvalidConfigError{Reason: fmt.Sprintf("contamination must be in (0, 0.5], got %v", opts.Contamination)}
	}
	n := len(data)
	if n < 2 {
		return nil, &InsufficientDataError{Records: n}
	}

	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	if sampleSize > n {
		sampleSize = n
	}
	if sampleSize < 1 {
		return nil, &InsufficientDataError{Records: n}
	}

	e := &Ensemble{
		trees:      make([]tree, opts.Trees),
		sampleSize: sampleSize,
		nFeatures:  len(data[0]),
		norm:       averagePathLength(float64(sampleSize)),
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > opts.Trees {
		workers = opts.Trees
	}

	// Trees are mutually independent: each derives its own seed from the
	// global seed and tree index, so parallel construction needs no
	// coordination beyond the final join.
	var wg sync.WaitGroup
	next := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				rng := rand.New(rand.NewSource(opts.Seed + int64(i)*seedStride))
				e.trees[i] = buildTree(data, e.nFeatures, sampleSize, maxDepth, rng)
			}
		}()
	}
	for i := 0; i < opts.Trees; i++ {
		next <- i
	}
	close(next)
	wg.Wait()

	return e, nil
}

// buildTree draws a sub-sample without replacement and grows one isolation
// tree into a fresh arena.
func buildTree(data [][]float64, nFeatures, sampleSize, maxDepth int, rng *rand.Rand) tree {
	sample := make([][]float64, sampleSize)
	for i, idx := range rng.Perm(len(data))[:sampleSize] {
		sample[i] = data[idx]
	}

	t := tree{nodes: make([]node, 0, 2*sampleSize)}
	t.grow(sample, nFeatures, 0, maxDepth, rng)
	return t
}

// grow appends the subtree for the given records and returns its arena
// index.
func (t *tree) grow(records [][]float64, nFeatures, depth, maxDepth int, rng *rand.Rand) int32 {
	id := int32(len(t.nodes))
	n := len(records)

	if n <= 1 || depth >= maxDepth {
		t.nodes = append(t.nodes, node{left: -1, right: -1, size: int32(n)})
		return id
	}

	feature := rng.Intn(nFeatures)
	minVal, maxVal := records[0][feature], records[0][feature]
	for _, rec := range records[1:] {
		if rec[feature] < minVal {
			minVal = rec[feature]
		}
		if rec[feature] > maxVal {
			maxVal = rec[feature]
		}
	}
	if minVal == maxVal {
		// Constant within this node, nothing to split on.
		t.nodes = append(t.nodes, node{left: -1, right: -1, size: int32(n)})
		return id
	}

	threshold := splitThreshold(rng, minVal, maxVal)
	var left, right [][]float64
	for _, rec := range records {
		if rec[feature] < threshold {
			left = append(left, rec)
		} else {
			right = append(right, rec)
		}
	}

	t.nodes = append(t.nodes, node{feature: int32(feature), threshold: threshold})
	leftID := t.grow(left, nFeatures, depth+1, maxDepth, rng)
	rightID := t.grow(right, nFeatures, depth+1, maxDepth, rng)
	t.nodes[id].left = leftID
	t.nodes[id].right = rightID
	return id
}

// splitThreshold draws a split value strictly above minVal, so the left
// child always receives at least one record. A draw landing exactly on
// minVal is nudged to the next representable value toward maxVal.
func splitThreshold(rng *rand.Rand, minVal, maxVal float64) float64 {
	threshold := minVal + rng.Float64()*(maxVal-minVal)
	if threshold <= minVal {
		return math.Nextafter(minVal, maxVal)
	}
	return threshold
}

// pathLength descends the arena from the root and returns the traversed
// depth plus the expected residual path contributed by the leaf population.
func (t *tree) pathLength(sample []float64) float64 {
	depth := 0
	id := int32(0)
	for {
		nd := t.nodes[id]
		if nd.left < 0 {
			return float64(depth) + averagePathLength(float64(nd.size))
		}
		if sample[nd.feature] < nd.threshold {
			id = nd.left
		} else {
			id = nd.right
		}
		depth++
	}
}

// Score returns the anomaly score of one record: 2^(-E[path]/c(sampleSize)),
// in [0, 1], higher meaning more anomalous.
func (e *Ensemble) Score(sample []float64) float64 {
	var total float64
	for i := range e.trees {
		total += e.trees[i].pathLength(sample)
	}
	avg := total / float64(len(e.trees))
	return math.Pow(2, -avg/e.norm)
}

// ScoreAll scores every record.
func (e *Ensemble) ScoreAll(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = e.Score(sample)
	}
	return scores
}

// SampleSize reports the sub-sample size the ensemble was built with.
func (e *Ensemble) SampleSize() int { return e.sampleSize }

// Label marks the contamination fraction of records with the most anomalous
// scores. Ties are broken by original row order, so the labeling is stable
// and exactly round(contamination*N) records are labeled.
func Label(scores []float64, contamination float64) []bool {
	n := len(scores)
	k := int(math.Round(contamination * float64(n)))
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	labels := make([]bool, n)
	for _, idx := range order[:k] {
		labels[idx] = true
	}
	return labels
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree over n records: c(n) = 2H(n-1) - 2(n-1)/n, with the
// harmonic number approximated via the Euler-Mascheroni constant.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}
