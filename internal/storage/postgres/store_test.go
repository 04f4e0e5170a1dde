package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock, nil)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	_, err := NewStoreWithPool(nil, nil)
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS urls").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateFailureIsStorageError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied for schema public"))

	err := store.Migrate(context.Background())
	require.ErrorIs(t, err, crawler.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestURLRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("known returns stored subset", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT url FROM urls WHERE url = ANY").
			WithArgs([]string{"https://x/a", "https://x/b"}).
			WillReturnRows(mock.NewRows([]string{"url"}).AddRow("https://x/a"))

		known, err := store.URLs().Known(ctx, []string{"https://x/a", "https://x/b"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"https://x/a": true}, known)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("known skips the query for no addresses", func(t *testing.T) {
		store, mock := newMockStore(t)
		known, err := store.URLs().Known(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, known)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert keeps input order", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO urls").
			WithArgs([]string{"https://x/b", "https://x/c"}).
			WillReturnRows(mock.NewRows([]string{"id", "url"}).
				AddRow(int64(8), "https://x/c").
				AddRow(int64(7), "https://x/b"))

		rows, err := store.URLs().Insert(ctx, []string{"https://x/b", "https://x/c"})
		require.NoError(t, err)
		assert.Equal(t, []crawler.URL{
			{ID: 7, Address: "https://x/b"},
			{ID: 8, Address: "https://x/c"},
		}, rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, url, processed FROM urls WHERE processed = FALSE").
			WillReturnRows(mock.NewRows([]string{"id", "url", "processed"}).
				AddRow(int64(1), "https://x/a", false).
				AddRow(int64(3), "https://x/c", false))

		rows, err := store.URLs().Pending(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(3), rows[1].ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mark processed of unknown id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE urls SET processed = TRUE").
			WithArgs(int64(42)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.URLs().MarkProcessed(ctx, 42)
		require.ErrorIs(t, err, crawler.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO location_tags").
		WithArgs("Vasastan").
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectExec("INSERT INTO building_location").
		WithArgs(int64(2), int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(r crawler.Repositories) error {
		tag := crawler.LocationTag{Tag: "Vasastan"}
		if err := r.Tags().Create(context.Background(), &tag); err != nil {
			return err
		}
		assert.Equal(t, int64(4), tag.ID)
		return r.Buildings().AttachTag(context.Background(), 2, tag.ID)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, tag FROM location_tags").
		WithArgs("Odenplan").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(r crawler.Repositories) error {
		_, err := r.Tags().FindByTag(context.Background(), "Odenplan")
		return err
	})
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NotErrorIs(t, err, crawler.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxBeginFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := store.InTx(context.Background(), func(crawler.Repositories) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, crawler.ErrStorage)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildingRepository(t *testing.T) {
	ctx := context.Background()
	built := time.Date(1912, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("create", func(t *testing.T) {
		store, mock := newMockStore(t)
		b := crawler.Building{
			Address:     "Sigtunagatan 3",
			Built:       &built,
			TotalFloors: crawler.Int(6),
			HasLift:     crawler.Bool(true),
			MapURL:      "https://maps.example/1",
		}
		b.Location[0], b.Location[1] = 18.05, 59.34
		mock.ExpectQuery("INSERT INTO buildings").
			WithArgs("Sigtunagatan 3", built, crawler.Int(6), crawler.Bool(true), "https://maps.example/1", 59.34, 18.05).
			WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(11)))

		require.NoError(t, store.Buildings().Create(ctx, &b))
		assert.Equal(t, int64(11), b.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find by address", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM buildings").
			WithArgs("Sigtunagatan 3").
			WillReturnRows(mock.NewRows([]string{
				"id", "address", "built", "total_floors", "has_lift", "map_url", "lat", "lng",
			}).AddRow(int64(11), "Sigtunagatan 3", &built, crawler.Int(6), crawler.Bool(false), "", 59.34, 18.05))

		b, err := store.Buildings().FindByAddress(ctx, "Sigtunagatan 3")
		require.NoError(t, err)
		assert.Equal(t, int64(11), b.ID)
		require.NotNil(t, b.Built)
		assert.Equal(t, 1912, b.Built.Year())
		assert.Equal(t, 6, *b.TotalFloors)
		assert.InDelta(t, 59.34, b.Lat(), 1e-9)
		assert.InDelta(t, 18.05, b.Lng(), 1e-9)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing building", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM buildings").
			WithArgs("Nowhere 1").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.Buildings().FindByAddress(ctx, "Nowhere 1")
		require.ErrorIs(t, err, crawler.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tag ids", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT location_id FROM building_location").
			WithArgs(int64(11)).
			WillReturnRows(mock.NewRows([]string{"location_id"}).AddRow(int64(2)).AddRow(int64(5)))

		ids, err := store.Buildings().TagIDs(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 5}, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApartmentRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("fingerprint lookup passes unknown values as null", func(t *testing.T) {
		store, mock := newMockStore(t)
		fp := crawler.Fingerprint{BuildingID: 11, Rooms: crawler.Int(2), LivingSpace: crawler.Int(55)}
		mock.ExpectQuery("IS NOT DISTINCT FROM").
			WithArgs(int64(11), crawler.Int(2), crawler.Int(55), (*int)(nil), (*bool)(nil)).
			WillReturnRows(mock.NewRows([]string{
				"id", "building_id", "property_type", "rooms", "living_space",
				"has_balcony", "floor", "avgift", "driftskostnad",
			}).AddRow(int64(5), int64(11), "Lägenhet", crawler.Int(2), crawler.Int(55), nil, nil, crawler.Int(3200), nil))

		a, err := store.Apartments().FindByFingerprint(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, int64(5), a.ID)
		assert.Equal(t, "Lägenhet", a.PropertyType)
		assert.Nil(t, a.Floor)
		assert.Nil(t, a.HasBalcony)
		require.NotNil(t, a.Avgift)
		assert.Equal(t, 3200, *a.Avgift)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create", func(t *testing.T) {
		store, mock := newMockStore(t)
		a := crawler.Apartment{BuildingID: 11, PropertyType: "Lägenhet", Rooms: crawler.Int(2)}
		mock.ExpectQuery("INSERT INTO apartments").
			WithArgs(int64(11), "Lägenhet", crawler.Int(2), (*int)(nil), (*bool)(nil), (*int)(nil), (*int)(nil), (*int)(nil)).
			WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(6)))

		require.NoError(t, store.Apartments().Create(ctx, &a))
		assert.Equal(t, int64(6), a.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaleRepositoryCreate(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	s := crawler.Sale{ApartmentID: 6, URLID: 1, SaleDate: date, SoldPrice: crawler.Int(2500000)}
	mock.ExpectQuery("INSERT INTO sales").
		WithArgs(int64(6), int64(1), date, (*int)(nil), crawler.Int(2500000)).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(9)))

	require.NoError(t, store.Sales().Create(context.Background(), &s))
	assert.Equal(t, int64(9), s.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
