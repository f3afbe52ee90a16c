package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAccess(t *testing.T) {
	owner := CallerScope{OrganizationID: "org-a", ActorID: "u1"}
	assert.True(t, owner.CanAccess("org-a"))
	assert.False(t, owner.CanAccess("org-b"))

	assert.True(t, Admin("root").CanAccess("org-a"))
	assert.True(t, Admin("root").CanAccess("org-b"))

	sys := System("org-a")
	assert.Equal(t, "system", sys.ActorID)
	assert.True(t, sys.CanAccess("org-a"))
	assert.False(t, sys.CanAccess("org-b"))
}

func TestActor(t *testing.T) {
	assert.Nil(t, CallerScope{}.Actor())

	a := CallerScope{ActorID: "u1"}.Actor()
	if assert.NotNil(t, a) {
		assert.Equal(t, "u1", *a)
	}
}
