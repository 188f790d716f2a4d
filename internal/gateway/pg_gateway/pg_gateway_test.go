package pg_gateway

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economicgoose/internal/gateway"
)

func newMockGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db), mock
}

type auctionRow struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CurrentBid int64  `json:"current_bid"`
}

func TestSelectBuildsFilteredOrderedQuery(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT * FROM auctions WHERE status = $1 ORDER BY created_at DESC LIMIT 20").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "current_bid"}).
			AddRow("a1", "active", int64(1200)).
			AddRow("a2", "active", int64(800)))

	var out []auctionRow
	err := g.Select(context.Background(), gateway.Query{
		Table:      "auctions",
		Eq:         map[string]any{"status": "active"},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      20,
	}, &out)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a1", out[0].ID)
	assert.Equal(t, int64(1200), out[0].CurrentBid)
}

func TestSelectBuildsInClause(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT * FROM auctions WHERE status IN ($1, $2)").
		WithArgs("waiting", "active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow("a1", "waiting"))

	var out []auctionRow
	err := g.Select(context.Background(), gateway.Query{
		Table: "auctions",
		In:    map[string][]string{"status": {"waiting", "active"}},
	}, &out)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "waiting", out[0].Status)
}

func TestSelectOneReturnsNotFoundOnEmptyResult(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT * FROM auctions WHERE id = $1 LIMIT 1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var out auctionRow
	err := g.SelectOne(context.Background(), gateway.Query{
		Table: "auctions",
		Eq:    map[string]any{"id": "missing"},
	}, &out)

	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestInsertWritesSortedColumns(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("INSERT INTO auction_participants (auction_id, player_id) VALUES ($1, $2)").
		WithArgs("a1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := g.Insert(context.Background(), "auction_participants", map[string]any{
		"player_id":  "p1",
		"auction_id": "a1",
	})

	assert.NoError(t, err)
}

func TestInsertMapsUniqueViolationToErrDuplicate(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("INSERT INTO auction_participants (auction_id, player_id) VALUES ($1, $2)").
		WithArgs("a1", "p1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := g.Insert(context.Background(), "auction_participants", map[string]any{
		"auction_id": "a1",
		"player_id":  "p1",
	})

	assert.ErrorIs(t, err, gateway.ErrDuplicate)
}

func TestUpdateSetsFieldsByID(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("UPDATE user_profiles SET level = $1, money = $2 WHERE id = $3").
		WithArgs(2, int64(4200), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := g.Update(context.Background(), "user_profiles", "p1", map[string]any{
		"money": int64(4200),
		"level": 2,
	})

	assert.NoError(t, err)
}

func TestCallSendsJSONPayloadAndReturnsRaw(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT place_auction_bid($1::jsonb)").
		WithArgs(`{"p_auction_id":"a1","p_bid_amount":1500}`).
		WillReturnRows(sqlmock.NewRows([]string{"place_auction_bid"}).
			AddRow([]byte(`{"success":true}`)))

	out, err := g.Call(context.Background(), "place_auction_bid", map[string]any{
		"p_auction_id": "a1",
		"p_bid_amount": 1500,
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(out))
}

func TestSelectKeepsJSONBColumnsNested(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT * FROM warehouse_stats LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "totals"}).
			AddRow("s1", []byte(`{"materials":12,"clothing":3}`)))

	var out struct {
		ID     string         `json:"id"`
		Totals map[string]int `json:"totals"`
	}
	err := g.SelectOne(context.Background(), gateway.Query{Table: "warehouse_stats"}, &out)

	require.NoError(t, err)
	assert.Equal(t, 12, out.Totals["materials"])
	assert.Equal(t, 3, out.Totals["clothing"])
}
