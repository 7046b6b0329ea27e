// Package palette clusters sampled colors in CIELAB and names the result.
package palette

import (
	"math"
	"math/rand/v2"

	"github.com/lucasb-eyer/go-colorful"
)

// Options tune k-means.
type Options struct {
	// K is the number of clusters.
	K int
	// Iterations caps assignment/update rounds.
	Iterations int
	// Epsilon stops early once no centroid moves further than this in Lab.
	Epsilon float64
	// Seed makes seeding reproducible.
	Seed uint64
}

// DefaultOptions returns the standard clustering parameters.
func DefaultOptions() Options {
	return Options{K: 5, Iterations: 20, Epsilon: 0.001, Seed: 1}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.K <= 0 {
		o.K = d.K
	}
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.Epsilon < 0 {
		o.Epsilon = 0
	}
	return o
}

type lab [3]float64

func toLab(c colorful.Color) lab {
	l, a, b := c.Lab()
	return lab{l, a, b}
}

func (p lab) color() colorful.Color {
	return colorful.Lab(p[0], p[1], p[2]).Clamped()
}

func dist2(a, b lab) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

// Cluster groups samples into at most opts.K colors using k-means++ seeding
// in CIELAB. When there are no more distinct samples than K, the distinct
// samples are returned unchanged in first-seen order.
func Cluster(samples []colorful.Color, opts Options) []colorful.Color {
	opts = opts.withDefaults()

	distinct := distinctColors(samples)
	if len(distinct) <= opts.K {
		return distinct
	}

	points := make([]lab, len(samples))
	for i, s := range samples {
		points[i] = toLab(s)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	centroids := seed(points, opts.K, rng)
	assign := make([]int, len(points))

	for iter := 0; iter < opts.Iterations; iter++ {
		for i, p := range points {
			assign[i] = nearest(p, centroids)
		}

		sums := make([]lab, len(centroids))
		counts := make([]int, len(centroids))
		for i, p := range points {
			c := assign[i]
			sums[c][0] += p[0]
			sums[c][1] += p[1]
			sums[c][2] += p[2]
			counts[c]++
		}

		moved := 0.0
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			n := float64(counts[c])
			next := lab{sums[c][0] / n, sums[c][1] / n, sums[c][2] / n}
			moved = math.Max(moved, math.Sqrt(dist2(next, centroids[c])))
			centroids[c] = next
		}
		if moved < opts.Epsilon {
			break
		}
	}

	out := make([]colorful.Color, len(centroids))
	for i, c := range centroids {
		out[i] = c.color()
	}
	return out
}

// seed picks k centroids: the first uniformly, each next one with
// probability proportional to its squared distance from the nearest chosen
// centroid.
func seed(points []lab, k int, rng *rand.Rand) []lab {
	centroids := make([]lab, 0, k)
	centroids = append(centroids, points[rng.IntN(len(points))])

	d2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d2[i] = dist2(p, centroids[nearest(p, centroids)])
			total += d2[i]
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range d2 {
			target -= d
			if target < 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, points[chosen])
	}
	return centroids
}

func nearest(p lab, centroids []lab) int {
	best, bestD := 0, math.Inf(1)
	for i, c := range centroids {
		if d := dist2(p, c); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func distinctColors(samples []colorful.Color) []colorful.Color {
	seen := make(map[string]struct{}, len(samples))
	out := make([]colorful.Color, 0, len(samples))
	for _, s := range samples {
		key := s.Clamped().Hex()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
