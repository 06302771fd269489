package tuning

// --- Golden-section search (spec.md §4.11, §8) ---

const goldenRatio = 0.6180339887498949 // (sqrt(5)-1)/2

// GoldenSectionSearch finds the argument minimising a unimodal objective f
// within [a, b], terminating once the bracket width is <= eps. Returns the
// midpoint of the final bracket and the number of f evaluations performed
// (spec.md §8: "terminates with |b-a| <= eps after O(log((b-a)/eps))
// evaluations").
func GoldenSectionSearch(f func(float64) float64, a, b, eps float64) (x float64, evals int) {
	if a > b {
		a, b = b, a
	}
	c := b - goldenRatio*(b-a)
	d := a + goldenRatio*(b-a)
	fc := f(c)
	fd := f(d)
	evals = 2
	for b-a > eps {
		if fc < fd {
			b = d
			d = c
			fd = fc
			c = b - goldenRatio*(b-a)
			fc = f(c)
		} else {
			a = c
			c = d
			fc = fd
			d = a + goldenRatio*(b-a)
			fd = f(d)
		}
		evals++
	}
	return (a + b) / 2, evals
}
