//go:build integration

package sqlserver_test

import (
	"context"
	"testing"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/storetest"
	"github.com/velmie/sqloutbox/internal/testutil"
	"github.com/velmie/sqloutbox/sqlserver"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	db := testutil.StartSQLServer(t, ctx)

	t.Run("oldest-first", func(t *testing.T) {
		store := sqlserver.MustNewStore(sqlserver.WithTable("relay.outbox"))
		storetest.Run(t, storetest.Backend[outbox.Querier]{
			Scopes:      sqlserver.Scopes(db.DB),
			Storage:     store,
			Provisioner: store,
		})
	})

	t.Run("newest-first", func(t *testing.T) {
		store := sqlserver.MustNewStore(sqlserver.WithTable("outbox_lifo"), sqlserver.WithOrder(outbox.OrderNewestFirst))
		storetest.Run(t, storetest.Backend[outbox.Querier]{
			Scopes:      sqlserver.Scopes(db.DB),
			Storage:     store,
			Provisioner: store,
			Order:       outbox.OrderNewestFirst,
		})
	})
}
