package permit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_GrantThenConsume(t *testing.T) {
	r := New()
	r.Grant("s1", "u1", time.Minute)
	assert.True(t, r.Consume("s1", "u1"))
}

func TestRegistry_ConsumeIsSingleUse(t *testing.T) {
	r := New()
	r.Grant("s1", "u1", time.Minute)
	require := assert.New(t)
	require.True(r.Consume("s1", "u1"))
	require.False(r.Consume("s1", "u1"))
}

func TestRegistry_ConsumeWithoutGrantFails(t *testing.T) {
	r := New()
	assert.False(t, r.Consume("s1", "u1"))
}

func TestRegistry_ExpiredPermitFailsConsume(t *testing.T) {
	r := New()
	r.Grant("s1", "u1", time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, r.Consume("s1", "u1"))
}

func TestRegistry_Sweep(t *testing.T) {
	r := New()
	r.Grant("s1", "u1", time.Millisecond)
	r.Grant("s2", "u2", time.Minute)
	time.Sleep(10 * time.Millisecond)
	r.Sweep()
	assert.False(t, r.Consume("s1", "u1"))
	assert.True(t, r.Consume("s2", "u2"))
}
