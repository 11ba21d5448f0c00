package shared

// Direction represents the breakout direction and the option side traded on it.
type Direction int

const (
	None Direction = iota
	Call
	Put
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case None:
		return "none"
	case Call:
		return "CE"
	case Put:
		return "PE"
	default:
		return "unknown"
	}
}

// Classify determines the breakout direction of the price relative to the
// reference range. Prices equal to either bound are not breakouts.
func Classify(price float64, high float64, low float64) Direction {
	switch {
	case price > high:
		return Call
	case price < low:
		return Put
	default:
		return None
	}
}
