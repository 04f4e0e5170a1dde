// Package parser turns sold-listing pages into normalized records.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

const (
	fieldOperatingCost = "driftskostnad"
	fieldBuilt         = "byggår"
	fieldFloor         = "våning"

	labelBalcony  = "balcony"
	labelElevator = "elevator"
)

var definitionFields = map[string]struct{}{
	fieldOperatingCost: {},
	fieldBuilt:         {},
	fieldFloor:         {},
}

type mapBlob struct {
	Listing *listingBlob `json:"listing"`
	MapURL  jsonText     `json:"map_url"`
}

type listingBlob struct {
	Address        jsonText   `json:"address"`
	TypeSummary    jsonText   `json:"typeSummary"`
	Rooms          jsonText   `json:"rooms"`
	LivingSpace    jsonText   `json:"living_space"`
	Fee            jsonText   `json:"fee"`
	Labels         []label    `json:"labels"`
	SaleDate       jsonText   `json:"sale_date"`
	AskedPrice     jsonText   `json:"asked_price"`
	FormattedPrice jsonText   `json:"formatted_price"`
	Coordinate     []jsonText `json:"coordinate"`
}

type label struct {
	Identifier string `json:"identifier"`
}

// Parser implements crawler.Parser with goquery.
type Parser struct {
	logger *zap.Logger
}

// New returns a Parser. logger may be nil.
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// ParseDetail extracts a ListingRecord from a detail page. Both the embedded map blob
// and the metadata block must be present.
func (p *Parser) ParseDetail(raw []byte) (crawler.ListingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return crawler.ListingRecord{}, fmt.Errorf("%w: read html: %w", crawler.ErrMalformedPage, err)
	}

	blob, err := decodeMapBlob(doc)
	if err != nil {
		return crawler.ListingRecord{}, err
	}
	locations, err := parseLocations(doc)
	if err != nil {
		return crawler.ListingRecord{}, err
	}
	fields := parseDefinitions(doc)

	rec, err := buildRecord(blob, fields)
	if err != nil {
		return crawler.ListingRecord{}, err
	}
	rec.Locations = locations
	p.logger.Debug("Parsed listing",
		zap.String("address", rec.Address),
		zap.Strings("locations", rec.Locations),
		zap.Time("sale_date", rec.SaleDate),
	)
	return rec, nil
}

// ParseResults extracts detail links and the next-page link from a search-results page.
func (p *Parser) ParseResults(raw []byte) (crawler.ResultPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return crawler.ResultPage{}, fmt.Errorf("%w: read html: %w", crawler.ErrMalformedPage, err)
	}
	results := doc.Find("#search-results").First()
	if results.Length() == 0 {
		return crawler.ResultPage{}, fmt.Errorf("%w: no search results container", crawler.ErrMalformedPage)
	}

	var page crawler.ResultPage
	results.Find("li").Each(func(_ int, li *goquery.Selection) {
		href, ok := li.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		page.Links = append(page.Links, strings.TrimSpace(href))
	})
	if next, ok := doc.Find("a.next_page").First().Attr("href"); ok {
		page.NextPage = strings.TrimSpace(next)
	}
	p.logger.Debug("Parsed results page", zap.Int("links", len(page.Links)), zap.String("next_page", page.NextPage))
	return page, nil
}

func decodeMapBlob(doc *goquery.Document) (mapBlob, error) {
	data, ok := doc.Find("div#map").First().Attr("data-initial-data")
	if !ok {
		return mapBlob{}, fmt.Errorf("%w: map data attribute missing", crawler.ErrMalformedPage)
	}
	// Values inside the blob can carry a second layer of entities.
	data = html.UnescapeString(strings.TrimSpace(data))
	var blob mapBlob
	if err := json.Unmarshal([]byte(data), &blob); err != nil {
		return mapBlob{}, fmt.Errorf("%w: decode map data: %w", crawler.ErrMalformedPage, err)
	}
	if blob.Listing == nil {
		return mapBlob{}, fmt.Errorf("%w: map data has no listing", crawler.ErrMalformedPage)
	}
	return blob, nil
}

// parseLocations reads "<type> - <label>, <label>" from the metadata paragraph.
func parseLocations(doc *goquery.Document) ([]string, error) {
	meta := doc.Find("p.sold-property__metadata").First()
	if meta.Length() == 0 {
		return nil, fmt.Errorf("%w: metadata block missing", crawler.ErrMalformedPage)
	}
	_, labels, ok := strings.Cut(clean(meta.Text()), "-")
	if !ok {
		return nil, fmt.Errorf("%w: metadata block has no location part", crawler.ErrMalformedPage)
	}
	var locations []string
	for _, loc := range strings.Split(labels, ",") {
		if loc = strings.TrimSpace(loc); loc != "" {
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

func parseDefinitions(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find("dl dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.ToLower(clean(dt.Text()))
		if _, ok := definitionFields[key]; !ok {
			return
		}
		dd := dt.Next()
		if !dd.Is("dd") {
			return
		}
		fields[key] = clean(dd.Text())
	})
	return fields
}

func buildRecord(blob mapBlob, fields map[string]string) (crawler.ListingRecord, error) {
	l := blob.Listing
	address := strings.TrimSpace(l.Address.String())
	if address == "" {
		return crawler.ListingRecord{}, fmt.Errorf("%w: listing has no address", crawler.ErrMalformedPage)
	}
	if len(l.Coordinate) < 2 {
		return crawler.ListingRecord{}, fmt.Errorf("%w: listing has no coordinate pair", crawler.ErrMalformedPage)
	}
	lat, err := l.Coordinate[0].Float()
	if err != nil {
		return crawler.ListingRecord{}, fmt.Errorf("%w: latitude: %w", crawler.ErrMalformedPage, err)
	}
	lng, err := l.Coordinate[1].Float()
	if err != nil {
		return crawler.ListingRecord{}, fmt.Errorf("%w: longitude: %w", crawler.ErrMalformedPage, err)
	}
	saleDate, err := ParseSaleDate(l.SaleDate.String())
	if err != nil {
		return crawler.ListingRecord{}, err
	}

	rec := crawler.ListingRecord{
		Address:       address,
		PropertyType:  strings.TrimSpace(l.TypeSummary.String()),
		Rooms:         ExtractNumber(l.Rooms.String()),
		LivingSpace:   ExtractNumber(l.LivingSpace.String()),
		Avgift:        ExtractNumber(l.Fee.String()),
		Driftskostnad: ExtractNumber(fields[fieldOperatingCost]),
		Built:         ParseBuilt(fields[fieldBuilt]),
		SaleDate:      saleDate,
		AskedPrice:    ExtractNumber(l.AskedPrice.String()),
		SoldPrice:     ExtractNumber(l.FormattedPrice.String()),
		MapURL:        strings.TrimSpace(blob.MapURL.String()),
		Lat:           lat,
		Lng:           lng,
	}
	rec.Floor, rec.TotalFloors = ParseFloor(fields[fieldFloor])
	for _, lab := range l.Labels {
		switch lab.Identifier {
		case labelBalcony:
			rec.HasBalcony = crawler.Bool(true)
		case labelElevator:
			rec.HasLift = true
		}
	}
	return rec, nil
}
