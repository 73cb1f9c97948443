package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/v0idhrt/radar/internal/models"
	"github.com/v0idhrt/radar/internal/textutil"
)

const yandexSearchURL = "https://searchapi.api.cloud.yandex.net/v2/web/search"

// YandexProvider queries the Yandex Cloud Web Search v2 API. The API wraps a
// base64-encoded XML result document inside a JSON envelope.
type YandexProvider struct {
	apiKey   string
	folderID string
	client   *http.Client
	retry    int
}

type yandexRequest struct {
	Query struct {
		SearchType string `json:"searchType"`
		QueryText  string `json:"queryText"`
	} `json:"query"`
	FolderID       string `json:"folderId"`
	ResponseFormat string `json:"responseFormat"`
}

type yandexResponse struct {
	RawData string `json:"rawData"`
}

type yandexXMLResult struct {
	Groups []struct {
		Doc struct {
			URL      string `xml:"url"`
			Title    string `xml:"title"`
			Headline string `xml:"headline"`
			Passages struct {
				Passage []string `xml:"passage"`
			} `xml:"passages"`
		} `xml:"doc"`
	} `xml:"response>results>grouping>group"`
}

func NewYandexProvider(apiKey, folderID string, timeout time.Duration, maxRetries int) *YandexProvider {
	return &YandexProvider{
		apiKey:   apiKey,
		folderID: folderID,
		client:   &http.Client{Timeout: timeout},
		retry:    maxRetries,
	}
}

func (p *YandexProvider) Name() string { return "yandex" }

func (p *YandexProvider) Configured() bool { return p.apiKey != "" && p.folderID != "" }

func (p *YandexProvider) Search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, error) {
	if !p.Configured() {
		return nil, nil
	}

	build := func() (*http.Request, error) {
		var payload yandexRequest
		payload.Query.SearchType = "SEARCH_TYPE_RU"
		payload.Query.QueryText = fmt.Sprintf("%q новости", companyName)
		payload.FolderID = p.folderID
		payload.ResponseFormat = "FORMAT_XML"

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost, yandexSearchURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Api-Key "+p.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	var resp yandexResponse
	if err := doJSON(ctx, p.client, build, p.retry, &resp); err != nil {
		return nil, fmt.Errorf("yandex search: %w", err)
	}

	rawXML, err := base64.StdEncoding.DecodeString(resp.RawData)
	if err != nil {
		return nil, fmt.Errorf("yandex search: decode raw data: %w", err)
	}

	var result yandexXMLResult
	if err := xml.Unmarshal(rawXML, &result); err != nil {
		return nil, fmt.Errorf("yandex search: parse result xml: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	items := make([]models.NewsItem, 0, len(result.Groups))

	for _, group := range result.Groups {
		doc := group.Doc
		if doc.URL == "" {
			continue
		}
		if _, dup := seen[doc.URL]; dup {
			continue
		}
		seen[doc.URL] = struct{}{}

		content := doc.Headline
		for _, passage := range doc.Passages.Passage {
			if content != "" {
				content += " "
			}
			content += passage
		}

		items = append(items, models.NewsItem{
			CompanyName: companyName,
			Title:       textutil.CleanText(doc.Title),
			Content:     textutil.CleanText(content),
			URL:         doc.URL,
			Source:      p.Name(),
			CollectedAt: now,
		})
		if len(items) >= maxResults {
			break
		}
	}

	return items, nil
}
