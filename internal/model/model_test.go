package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolutionStateTransitions(t *testing.T) {
	tests := []struct {
		from, to ResolutionState
		ok       bool
	}{
		{StateUnresolved, StateResolving, true},
		{StateResolving, StateResolved, true},
		{StateResolving, StateReviewPending, true},
		{StateReviewPending, StateResolving, true},
		{StateResolved, StateResolving, false},
		{StateResolved, StateReviewPending, false},
		{StateUnresolved, StateResolved, false},
		{StateReviewPending, StateResolved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestContactFullName(t *testing.T) {
	c := &Contact{FirstName: "Jane", LastName: "Doe"}
	assert.Equal(t, "Jane Doe", c.FullName())

	c = &Contact{FirstName: "Jane"}
	assert.Equal(t, "Jane", c.FullName())

	c = &Contact{LastName: " Doe "}
	assert.Equal(t, "Doe", c.FullName())

	c = &Contact{}
	assert.Equal(t, "", c.FullName())
}

func TestDealResolved(t *testing.T) {
	var companyID, contactID int64 = 1, 2

	d := &Deal{}
	assert.False(t, d.Resolved())

	d.CompanyID = &companyID
	assert.False(t, d.Resolved())

	d.PrimaryContactID = &contactID
	assert.True(t, d.Resolved())
}
