package crawler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sold-listings-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/sold-listings-crawler/internal/frontier"
	"github.com/JakeFAU/sold-listings-crawler/internal/parser"
	"github.com/JakeFAU/sold-listings-crawler/internal/resolver"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/memory"
)

const detailHTML = `<html><body>
<p class="sold-property__metadata qa-sold-property-metadata">Lägenhet - Guldheden, Göteborgs kommun</p>
<div id="map" data-initial-data="{&quot;listing&quot;:{&quot;address&quot;:&quot;Doktor Allards Gata 5&quot;,&quot;typeSummary&quot;:&quot;Bostadsrättslägenhet&quot;,&quot;rooms&quot;:&quot;2 rum&quot;,&quot;living_space&quot;:&quot;55 m²&quot;,&quot;labels&quot;:[],&quot;sale_date&quot;:&quot;Såld 2021-05-01&quot;,&quot;formatted_price&quot;:&quot;2 500 000 kr&quot;,&quot;coordinate&quot;:[57.6852,11.9744]},&quot;map_url&quot;:&quot;https://maps.example.com/1&quot;}"></div>
<dl><dt>Våning</dt><dd>3 av 6</dd></dl>
</body></html>`

type noWait struct{}

func (noWait) Wait(context.Context) error { return nil }

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /annons\n"))
	})
	mux.HandleFunc("/salda/bostader", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`<ul id="search-results"></ul>`))
			return
		}
		_, _ = w.Write([]byte(`<ul id="search-results"><li><a href="/salda/lagenhet-2rum-1">hit</a></li></ul>` +
			`<a class="next_page" href="/salda/bostader?page=2">Nästa</a>`))
	})
	mux.HandleFunc("/salda/lagenhet-2rum-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(detailHTML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newSite(t)
	store := memory.NewStore()
	robots := collyfetcher.NewRobotsEnforcer(crawler.DefaultUserAgent, time.Second, nil)
	gate := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}, robots, noWait{}, nil)
	p := parser.New(nil)
	f := frontier.New(frontier.Config{Origin: srv.URL}, store, gate, p, nil)
	engine := crawler.NewEngine(f, gate, p, resolver.New(store, nil), nil, nil)

	seed := srv.URL + "/salda/bostader?location_ids%5B%5D=17920"
	stats, err := engine.Run(ctx, crawler.RunOptions{Seeds: []string{seed}, MaxPages: 50})
	require.NoError(t, err)
	assert.Equal(t, crawler.StateIdle, engine.State())
	assert.Equal(t, 1, stats.Discovered)
	assert.Equal(t, 1, stats.Processed)

	snap := store.Snapshot()
	require.Len(t, snap.URLs, 1)
	assert.Equal(t, srv.URL+"/salda/lagenhet-2rum-1", snap.URLs[0].Address)
	assert.True(t, snap.URLs[0].Processed)

	require.Len(t, snap.Buildings, 1)
	b := snap.Buildings[0]
	assert.Equal(t, "Doktor Allards Gata 5", b.Address)
	assert.Equal(t, crawler.Int(6), b.TotalFloors)
	assert.Len(t, b.Tags, 2)

	require.Len(t, snap.Apartments, 1)
	a := snap.Apartments[0]
	assert.Equal(t, crawler.Int(2), a.Rooms)
	assert.Equal(t, crawler.Int(55), a.LivingSpace)
	assert.Equal(t, crawler.Int(3), a.Floor)
	assert.Nil(t, a.HasBalcony)

	require.Len(t, snap.Sales, 1)
	s := snap.Sales[0]
	assert.Equal(t, crawler.Int(2500000), s.SoldPrice)
	assert.Nil(t, s.AskedPrice)
	assert.Equal(t, time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC), s.SaleDate)
	assert.Equal(t, a.ID, s.ApartmentID)
	assert.Equal(t, snap.URLs[0].ID, s.URLID)

	again, err := crawler.NewEngine(f, gate, p, resolver.New(store, nil), nil, nil).
		Run(ctx, crawler.RunOptions{Seeds: []string{seed}, MaxPages: 50})
	require.NoError(t, err)
	assert.Zero(t, again.Discovered, "a second run discovers nothing new")
	assert.Zero(t, again.Processed)
	assert.Len(t, store.Snapshot().Sales, 1)
}

func TestPipelineRecoveryPicksUpUnprocessed(t *testing.T) {
	ctx := context.Background()
	srv := newSite(t)
	store := memory.NewStore()
	_, err := store.URLs().Insert(ctx, []string{srv.URL + "/salda/lagenhet-2rum-1", srv.URL + "/annons/blocked"})
	require.NoError(t, err)

	robots := collyfetcher.NewRobotsEnforcer(crawler.DefaultUserAgent, time.Second, nil)
	gate := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}, robots, noWait{}, nil)
	p := parser.New(nil)
	f := frontier.New(frontier.Config{Origin: srv.URL}, store, gate, p, nil)
	engine := crawler.NewEngine(f, gate, p, resolver.New(store, nil), nil, nil)

	stats, err := engine.Run(ctx, crawler.RunOptions{Recover: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Skipped["permission_denied"])

	pending, err := store.URLs().Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, srv.URL+"/annons/blocked", pending[0].Address)
}
