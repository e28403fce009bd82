package features

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/vp-features/internal/models"
)

func day(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return d
}

func imp(t testing.TB, user, d, cat string, pos int) models.Impression {
	return models.Impression{UserID: user, Day: day(t, d), Category: cat, Position: pos}
}

func pay(t testing.TB, user, d, cat string, total int64) models.Payment {
	return models.Payment{UserID: user, PayDate: day(t, d), Category: cat, Total: decimal.NewFromInt(total)}
}

func requireSumsEqual(t *testing.T, want, got []models.WindowedSum) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.True(t, want[i].Day.Equal(got[i].Day), "row %d day", i)
		require.Equal(t, want[i].UserID, got[i].UserID, "row %d user", i)
		require.Equal(t, want[i].Category, got[i].Category, "row %d category", i)
		require.True(t, want[i].Total.Equal(got[i].Total), "row %d total: want %s got %s", i, want[i].Total, got[i].Total)
	}
}
