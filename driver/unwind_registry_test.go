package driver_test

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/jfabienke/etherlink-go/driver"
)

func discardLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestUnwindRunsInReverse(t *testing.T) {
	u := driver.NewUnwind(discardLog())

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		u.Push(name, func() error {
			order = append(order, name)
			return nil
		})
	}
	assert.Equal(t, 3, u.Len())
	u.Run()
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Zero(t, u.Len())
}

func TestUnwindContinuesPastFailure(t *testing.T) {
	u := driver.NewUnwind(discardLog())

	var order []string
	u.Push("first", func() error {
		order = append(order, "first")
		return nil
	})
	u.Push("failing", func() error {
		order = append(order, "failing")
		return errors.New("undo failed")
	})
	u.Push("last", func() error {
		order = append(order, "last")
		return nil
	})
	u.Run()
	assert.Equal(t, []string{"last", "failing", "first"}, order)
}

func TestUnwindRunTwiceIsIdempotent(t *testing.T) {
	u := driver.NewUnwind(discardLog())
	calls := 0
	u.Push("once", func() error {
		calls++
		return nil
	})
	u.Run()
	u.Run()
	assert.Equal(t, 1, calls)
}
