package drain

import "github.com/pkg/errors"

func errDepthTooSmall(depth int) error {
	return errors.Errorf("drain: depth must be >= 3, got %d", depth)
}
