package pimc

// MaxAccuracy is the largest supported coordinate bound. Above it x²+y² could
// overflow uint64.
const MaxAccuracy uint64 = 3_000_000_000

// QuarterCircleHitRate is the share of samples expected to land inside the
// quarter circle (π/4, rounded).
const QuarterCircleHitRate = 0.7854

// Domain is the sampled coordinate square [1, Accuracy]×[1, Accuracy]. The
// circle used for the inside test has radius Accuracy.
type Domain struct {
	Accuracy uint64
}

// RadiusSquared returns Accuracy².
func (d Domain) RadiusSquared() uint64 {
	return d.Accuracy * d.Accuracy
}

// Contains reports whether (x, y) lies strictly inside the circle. Comparing
// squares is exact where sqrt(x²+y²) < r would round.
func (d Domain) Contains(x, y uint64) bool {
	return x*x+y*y < d.RadiusSquared()
}

// Points returns the number of distinct lattice points in the square.
func (d Domain) Points() uint64 {
	return d.RadiusSquared()
}

func (d Domain) validate() error {
	if d.Accuracy == 0 {
		return errInvalidConfig("Accuracy", "must be > 0")
	}
	if d.Accuracy > MaxAccuracy {
		return errInvalidConfig("Accuracy", "must be <= 3000000000")
	}
	return nil
}
