package property

import (
	"context"
	"testing"
	"time"

	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/store/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyStore(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer conn.Close()

	properties := New(conn)

	var missing core.Settings
	require.NoError(t, properties.Get(ctx, core.PropertyKeySettings, &missing))
	assert.Equal(t, core.Settings{}, missing)

	for _, theme := range []string{"dark", "light"} {
		settings := core.Settings{Theme: theme, Locale: "en", SessionTTL: time.Hour}
		require.NoError(t, properties.Set(ctx, core.PropertyKeySettings, settings))

		var got core.Settings
		require.NoError(t, properties.Get(ctx, core.PropertyKeySettings, &got))
		assert.Equal(t, settings, got)
	}
}
