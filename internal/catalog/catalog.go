package catalog

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Item is one photo catalog row. The remote image URL is derived from the
// locator parts on demand; changing the template is a breaking change for
// every stored catalog.
type Item struct {
	ID           string
	UserID       string
	Title        string
	Tags         string
	Latitude     *float64
	Longitude    *float64
	Views        int64
	DateTaken    *time.Time
	DateUploaded *time.Time
	Secret       string
	Server       string
	Farm         string
}

// PhotoURL builds the remote location of the image from its locator parts.
func (it Item) PhotoURL() string {
	return fmt.Sprintf("http://farm%s.staticflickr.com/%s/%s_%s.jpg", it.Farm, it.Server, it.ID, it.Secret)
}

// TagList splits the whitespace-separated tag string into tokens.
func (it Item) TagList() []string {
	return strings.Fields(it.Tags)
}

// Source streams catalog items in stable order. Next returns io.EOF when
// the catalog is exhausted.
type Source interface {
	Next() (Item, error)
	Close() error
}

// Skip discards n items from the source, stopping early at EOF.
func Skip(src Source, n int64) (int64, error) {
	var skipped int64
	for skipped < n {
		if _, err := src.Next(); err != nil {
			if err == io.EOF {
				return skipped, nil
			}
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

// columns maps the canonical catalog header names to row positions.
var columns = []string{
	"id", "userid", "title", "tags", "latitude", "longitude",
	"views", "date_taken", "date_uploaded", "flickr_secret", "flickr_server", "flickr_farm",
}

type columnIndex map[string]int

func indexHeader(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "flickr_secret", "flickr_server", "flickr_farm"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("catalog header missing required column %q", required)
		}
	}
	return idx, nil
}

func (ci columnIndex) get(row []string, name string) string {
	i, ok := ci[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// itemFromRow maps a raw record to an Item, tolerating blank optional fields.
func itemFromRow(ci columnIndex, row []string) (Item, error) {
	it := Item{
		ID:     ci.get(row, "id"),
		UserID: ci.get(row, "userid"),
		Title:  ci.get(row, "title"),
		Tags:   ci.get(row, "tags"),
		Secret: ci.get(row, "flickr_secret"),
		Server: ci.get(row, "flickr_server"),
		Farm:   ci.get(row, "flickr_farm"),
	}
	if it.ID == "" {
		return Item{}, fmt.Errorf("catalog row missing id")
	}

	if v := ci.get(row, "latitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			it.Latitude = &f
		}
	}
	if v := ci.get(row, "longitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			it.Longitude = &f
		}
	}
	if v := ci.get(row, "views"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			it.Views = n
		}
	}
	it.DateTaken = parseDate(ci.get(row, "date_taken"))
	it.DateUploaded = parseDate(ci.get(row, "date_uploaded"))
	return it, nil
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	// Unix timestamps show up in date_uploaded exports
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.Unix(n, 0).UTC()
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
