// Package search implements the Search Adapter: translating a
// (topic, page) pair into one request against either the v1 or v2
// remote search endpoint and normalizing the response into a
// models.SearchPage, per spec.md §4.3 and §6.
//
// Grounded on discover_book_ids.py (v1, one-indexed pages) and
// discover_v2/discover_book_ids_v2.py's _search_oreilly_v2_api (v2,
// zero-indexed pages, no auth required).
package search

import (
	"encoding/json"
	"fmt"
	"net/url"

	"oreilly-library/internal/apperrors"
	"oreilly-library/internal/httpclient"
	"oreilly-library/internal/models"
)

// APIVersion selects which remote endpoint shape to use.
type APIVersion int

const (
	V1 APIVersion = iota
	V2
)

// Adapter fetches and normalizes one page of search results.
type Adapter struct {
	client  *httpclient.Client
	baseURL string
	version APIVersion
}

// New builds an Adapter against baseURL (e.g. "https://learning.oreilly.com").
func New(client *httpclient.Client, baseURL string, version APIVersion) *Adapter {
	return &Adapter{client: client, baseURL: baseURL, version: version}
}

// v1Response mirrors GET /api/v1/search?q=<skill>&page=<n>&rows=<k>.
type v1Response struct {
	Results []v1Item `json:"results"`
}

type v1Item struct {
	ArchiveID string   `json:"archive_id"`
	ISBN      string   `json:"isbn"`
	OURN      string   `json:"ourn"`
	Title     string   `json:"title"`
	Format    string   `json:"format"`
	Language  string   `json:"language"`
	Subjects  []string `json:"subjects"`
	URL       string   `json:"url"`
}

// v2Response mirrors GET /api/v2/search/?query=*&topics=<skill>&limit=<k>&page=<n>.
type v2Response struct {
	Results []v2Item `json:"results"`
	Next    *string  `json:"next"`
	Total   int      `json:"total"`
}

type v2Item struct {
	ArchiveID string   `json:"archive_id"`
	ISBN      string   `json:"isbn"`
	OURN      string   `json:"ourn"`
	Title     string   `json:"title"`
	Format    string   `json:"format"`
	Language  string   `json:"language"`
	Topics    []string `json:"topics"`
	URL       string   `json:"url"`
}

// FetchPage fetches one page of results for topic, normalizing v1's
// one-indexed pagination and v2's zero-indexed pagination/next-link
// into a single models.SearchPage shape. page is one-indexed for both
// versions: v1 sends it as-is (values below 1 become 1), v2 sends
// page-1 (values below 0 become 0).
func (a *Adapter) FetchPage(topic string, page, pageSize int) (*models.SearchPage, error) {
	switch a.version {
	case V2:
		return a.fetchV2(topic, page, pageSize)
	default:
		return a.fetchV1(topic, page, pageSize)
	}
}

func (a *Adapter) fetchV1(topic string, page, pageSize int) (*models.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	reqURL := fmt.Sprintf("%s/api/v1/search?q=%s&page=%d&rows=%d",
		a.baseURL, url.QueryEscape(topic), page, pageSize)

	resp, err := a.client.Get(reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if httpclient.IsPermanent(resp.StatusCode) {
		return nil, apperrors.New(apperrors.KindPermanent, fmt.Sprintf("topic not found: %s", topic), nil)
	}
	if httpclient.IsTransient(resp.StatusCode) {
		return nil, apperrors.New(apperrors.KindTransient, fmt.Sprintf("v1 search transient error (status %d)", resp.StatusCode), nil)
	}

	var body v1Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.New(apperrors.KindTransient, "failed to parse v1 search response", err)
	}

	items := make([]models.RawSearchItem, 0, len(body.Results))
	for _, it := range body.Results {
		items = append(items, models.RawSearchItem{
			ArchiveID: it.ArchiveID,
			ISBN:      it.ISBN,
			OURN:      it.OURN,
			Title:     it.Title,
			Format:    it.Format,
			Language:  it.Language,
			Subjects:  it.Subjects,
			URL:       it.URL,
		})
	}

	return &models.SearchPage{
		Items:   items,
		HasNext: len(items) >= pageSize,
	}, nil
}

func (a *Adapter) fetchV2(topic string, page, pageSize int) (*models.SearchPage, error) {
	page--
	if page < 0 {
		page = 0
	}
	reqURL := fmt.Sprintf("%s/api/v2/search/?query=%s&topics=%s&limit=%d&page=%d",
		a.baseURL, url.QueryEscape("*"), url.QueryEscape(topic), pageSize, page)

	resp, err := a.client.Get(reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if httpclient.IsPermanent(resp.StatusCode) {
		return nil, apperrors.New(apperrors.KindPermanent, fmt.Sprintf("topic not found: %s", topic), nil)
	}
	if httpclient.IsTransient(resp.StatusCode) {
		return nil, apperrors.New(apperrors.KindTransient, fmt.Sprintf("v2 search transient error (status %d)", resp.StatusCode), nil)
	}

	var body v2Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.New(apperrors.KindTransient, "failed to parse v2 search response", err)
	}

	items := make([]models.RawSearchItem, 0, len(body.Results))
	for _, it := range body.Results {
		items = append(items, models.RawSearchItem{
			ArchiveID: it.ArchiveID,
			ISBN:      it.ISBN,
			OURN:      it.OURN,
			Title:     it.Title,
			Format:    it.Format,
			Language:  it.Language,
			Topics:    it.Topics,
			URL:       it.URL,
		})
	}

	return &models.SearchPage{
		Items:     items,
		HasNext:   body.Next != nil && *body.Next != "",
		TotalHint: body.Total,
	}, nil
}
