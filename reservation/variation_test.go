package reservation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cafeteria-engine/reservation"
)

func TestResolveVariation(t *testing.T) {
	menu := &reservation.Menu{
		ID: "menu-1",
		Variations: []reservation.MenuVariation{
			{ID: "var-std", MenuID: "menu-1", VariationType: reservation.VariationStandard, IsDefault: true},
			{ID: "var-egg", MenuID: "menu-1", VariationType: reservation.VariationEggSubstitute},
			{ID: "var-stray", MenuID: "menu-2", VariationType: reservation.VariationVegetarian},
		},
	}

	t.Run("variation of the menu", func(t *testing.T) {
		v, err := reservation.ResolveVariation(menu, "var-egg")
		require.NoError(t, err)
		assert.Equal(t, reservation.VariationEggSubstitute, v.VariationType)
	})

	t.Run("unknown variation", func(t *testing.T) {
		_, err := reservation.ResolveVariation(menu, "var-missing")
		assert.True(t, reservation.IsNotFound(err))
	})

	t.Run("variation pointing at another menu", func(t *testing.T) {
		_, err := reservation.ResolveVariation(menu, "var-stray")
		assert.True(t, reservation.IsNotFound(err))
		assert.Contains(t, err.Error(), "does not belong")
	})

	t.Run("nil menu", func(t *testing.T) {
		_, err := reservation.ResolveVariation(nil, "var-std")
		assert.True(t, reservation.IsNotFound(err))
	})
}

func TestCheckMenuRewrite(t *testing.T) {
	march10 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	next := reservation.Menu{
		ID:   "menu-1",
		Date: march10,
		Variations: []reservation.MenuVariation{
			{ID: "var-std", MenuID: "menu-1", IsDefault: true},
		},
	}

	t.Run("unreferenced menu may change freely", func(t *testing.T) {
		moved := next
		moved.Date = march10.AddDate(0, 0, 2)
		assert.NoError(t, reservation.CheckMenuRewrite(march10, nil, moved))
	})

	t.Run("same date with referenced variations kept", func(t *testing.T) {
		assert.NoError(t, reservation.CheckMenuRewrite(march10, []string{"var-std"}, next))
	})

	t.Run("date change under reservations", func(t *testing.T) {
		moved := next
		moved.Date = march10.AddDate(0, 0, 2)
		err := reservation.CheckMenuRewrite(march10, []string{"var-std"}, moved)
		assert.True(t, reservation.IsConflict(err))
		assert.Contains(t, err.Error(), "2025-03-12")
	})

	t.Run("referenced variation dropped", func(t *testing.T) {
		err := reservation.CheckMenuRewrite(march10, []string{"var-std", "var-egg"}, next)
		assert.True(t, reservation.IsConflict(err))
		assert.Contains(t, err.Error(), "var-egg")
	})
}

func TestDefaultVariation(t *testing.T) {
	menu := &reservation.Menu{
		ID: "menu-1",
		Variations: []reservation.MenuVariation{
			{ID: "var-egg", MenuID: "menu-1", VariationType: reservation.VariationEggSubstitute},
			{ID: "var-std", MenuID: "menu-1", VariationType: reservation.VariationStandard, IsDefault: true},
		},
	}

	v, err := reservation.DefaultVariation(menu)
	require.NoError(t, err)
	assert.Equal(t, "var-std", v.ID)

	_, err = reservation.DefaultVariation(&reservation.Menu{ID: "menu-2"})
	assert.True(t, reservation.IsNotFound(err))
}

func TestErrorKinds_MapToStatusCodes(t *testing.T) {
	assert.Equal(t, 404, reservation.StatusCode(reservation.NotFound("x")))
	assert.Equal(t, 400, reservation.StatusCode(reservation.BusinessRule("x")))
	assert.Equal(t, 409, reservation.StatusCode(reservation.Conflict("x")))
	assert.Equal(t, 500, reservation.StatusCode(reservation.Operational(assert.AnError, "x")))
	assert.Equal(t, 500, reservation.StatusCode(assert.AnError))

	err := reservation.Operational(assert.AnError, "load user")
	assert.ErrorIs(t, err, reservation.ErrOperational)
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, reservation.IsClientError(err))
	assert.True(t, reservation.IsClientError(reservation.Conflict("dup")))
}
