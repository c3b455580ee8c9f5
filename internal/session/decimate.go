package session

// Decimate downsamples a series to at most max points for export or
// persistence. Inputs of max or fewer points come back unchanged. Longer
// inputs keep every skip-th element with skip = ceil(len/max), and the final
// element is always the input's final element so both endpoints survive.
// Deterministic and side-effect-free; the result never shares a backing
// array with the authoritative in-memory series.
func Decimate[T any](points []T, max int) []T {
	if max <= 0 || len(points) <= max {
		out := make([]T, len(points))
		copy(out, points)
		return out
	}

	skip := (len(points) + max - 1) / max
	out := make([]T, 0, (len(points)+skip-1)/skip)
	for i := 0; i < len(points); i += skip {
		out = append(out, points[i])
	}

	// Keep the true endpoint.
	last := points[len(points)-1]
	if len(out) < max {
		out = append(out, last)
	} else {
		out[len(out)-1] = last
	}
	return out
}
