//go:build !linux

package line

type Cdev struct{}

func NewCdev(chip string) (*Cdev, error) {
	return nil, ErrUnsupported
}

func (c *Cdev) Acquire(pin int) (Line, error) { return nil, ErrUnsupported }

func (c *Cdev) Close() error { return nil }
