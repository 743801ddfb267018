package ledger

import (
	"fmt"
	"math/bits"
)

func add(a, b uint64, what string) (uint64, error) {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %s", ErrArithmetic, what)
	}
	return s, nil
}

func sub(a, b uint64, what string) (uint64, error) {
	d, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %s", ErrArithmetic, what)
	}
	return d, nil
}

func mul(a, b uint64, what string) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %s", ErrArithmetic, what)
	}
	return lo, nil
}
