package expect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
)

func TestEqual(t *testing.T) {
	ctx := context.Background()

	out, err := Equal(5)(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	_, err = Equal(5)(ctx, 6)
	require.Error(t, err)
	assert.True(t, api.IsAssertionFailure(err))
	assert.Contains(t, err.Error(), "Not equal")
}

func TestThat_WrongTypeIsAssertionFailure(t *testing.T) {
	_, err := Equal("x")(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, api.IsAssertionFailure(err))
}

func TestThat_CollectsEveryFailure(t *testing.T) {
	step := That(func(t assert.TestingT, v int) {
		assert.Greater(t, v, 10)
		assert.Less(t, v, 0)
	})
	_, err := step(context.Background(), 5)
	require.Error(t, err)

	var ae *api.AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Message, "is not greater than")
	assert.Contains(t, ae.Message, "is not less than")
}

func TestTrue(t *testing.T) {
	even := True(func(n int) bool { return n%2 == 0 }, "value should be even")

	_, err := even(context.Background(), 4)
	assert.NoError(t, err)

	_, err = even(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value should be even")
}

func TestContainsEmptyNotEqual(t *testing.T) {
	ctx := context.Background()

	_, err := Contains("go")(ctx, "gopher")
	assert.NoError(t, err)
	_, err = Contains("rust")(ctx, "gopher")
	assert.Error(t, err)

	_, err = Empty()(ctx, []int{})
	assert.NoError(t, err)
	_, err = Empty()(ctx, []int{1})
	assert.Error(t, err)

	_, err = NotEqual(1)(ctx, 2)
	assert.NoError(t, err)
}

func TestNoError(t *testing.T) {
	ctx := context.Background()

	_, err := NoError()(ctx, "fine")
	assert.NoError(t, err)

	_, err = NoError()(ctx, errors.New("boom"))
	require.Error(t, err)
	assert.True(t, api.IsAssertionFailure(err))
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	assert.False(t, c.Failed())
	assert.NoError(t, c.Err())

	c.Errorf("bad %d", 1)
	assert.True(t, c.Failed())
	assert.EqualError(t, c.Err(), "assertion failed: bad 1")
}
