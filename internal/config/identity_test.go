package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIdentity(t *testing.T) {
	id := DeriveIdentity("user.update", "user_updated", 2)
	assert.Equal(t, "user.update-user_updated", id.GroupID)
	assert.Equal(t, "user.update-user_updated-2", id.GroupInstanceID)
}

func TestDeriveIdentityDistinctPerSlot(t *testing.T) {
	a := DeriveIdentity("t", "f", 0)
	b := DeriveIdentity("t", "f", 1)
	assert.Equal(t, a.GroupID, b.GroupID)
	assert.NotEqual(t, a.GroupInstanceID, b.GroupInstanceID)
}
