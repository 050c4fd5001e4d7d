package aghpb

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Decoder turns a raw response into a typed result. A decoder returns
// either a fully populated value or an error, never both.
type Decoder[T any] func(resp *RawResponse) (T, error)

const (
	headerBookCategory     = "Book-Category"
	headerBookName         = "Book-Name"
	headerBookCommitAuthor = "Book-Commit-Author"
	headerBookCommitHash   = "Book-Commit-Hash"
	headerBookCommitURL    = "Book-Commit-Url"
	headerBookSearchID     = "Book-Search-Id"
	headerBookDateAdded    = "Book-Date-Added"
)

// searchFields must all be present, as JSON primitives, for a search result
// to be kept.
var searchFields = []string{
	"search_id",
	"name",
	"category",
	"date_added",
	"commit_url",
	"commit_author",
	"commit_hash",
}

// parseJSON returns the JSON body of a 200 response. Any other status, or
// an empty body, yields a result that does not exist.
func parseJSON(resp *RawResponse) (gjson.Result, error) {
	if resp.StatusCode != http.StatusOK || len(resp.Body) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, decodeError(resp, "response body is not valid JSON")
	}
	return gjson.ParseBytes(resp.Body), nil
}

func decodeStatus(resp *RawResponse) (APIStatus, error) {
	body, err := parseJSON(resp)
	if err != nil {
		return APIStatus{}, err
	}

	version := body.Get("version")
	if !body.IsObject() || !version.Exists() {
		return APIStatus{}, decodeError(resp, "response does not contain a version field")
	}
	if !isPrimitive(version) {
		return APIStatus{}, decodeError(resp, "version %s is not a JSON primitive", version.Raw)
	}
	return APIStatus{Version: version.String()}, nil
}

func decodeInfo(resp *RawResponse) (APIInfo, error) {
	body, err := parseJSON(resp)
	if err != nil {
		return APIInfo{}, err
	}

	bookCount := body.Get("book_count")
	apiVersion := body.Get("api_version")
	if !body.IsObject() || !bookCount.Exists() || !apiVersion.Exists() {
		return APIInfo{}, decodeError(resp, "response does not contain book_count or api_version field")
	}

	if !isPrimitive(apiVersion) {
		return APIInfo{}, decodeError(resp, "api_version %s is not a JSON primitive", apiVersion.Raw)
	}

	count, ok := jsonInt(bookCount)
	if !ok {
		return APIInfo{}, decodeError(resp, "book_count %q is not an integer", bookCount.Raw)
	}
	return APIInfo{BookCount: count, APIVersion: apiVersion.String()}, nil
}

func decodeCategories(resp *RawResponse) ([]string, error) {
	body, err := parseJSON(resp)
	if err != nil {
		return nil, err
	}
	if !body.IsArray() {
		return nil, decodeError(resp, "response is not a JSON array")
	}

	elements := body.Array()
	categories := make([]string, 0, len(elements))
	for i, element := range elements {
		if !isPrimitive(element) {
			return nil, decodeError(resp, "category %d is not a JSON primitive", i)
		}
		categories = append(categories, element.String())
	}
	return categories, nil
}

// searchDecoder drops malformed elements individually; only a body that is
// not an array fails the call.
func searchDecoder(logger *slog.Logger) Decoder[[]Book] {
	return func(resp *RawResponse) ([]Book, error) {
		body, err := parseJSON(resp)
		if err != nil {
			return nil, err
		}
		if !body.IsArray() {
			return nil, decodeError(resp, "response is not a JSON array")
		}

		books := []Book{}
		for i, element := range body.Array() {
			book, ok := searchResult(element)
			if !ok {
				logger.Debug("skipping malformed search result",
					"index", i,
					"request_id", resp.RequestID)
				continue
			}
			books = append(books, book)
		}
		return books, nil
	}
}

func searchResult(element gjson.Result) (Book, bool) {
	if !element.IsObject() {
		return Book{}, false
	}

	fields := make(map[string]gjson.Result, len(searchFields))
	for _, name := range searchFields {
		field := element.Get(name)
		if !field.Exists() || !isPrimitive(field) {
			return Book{}, false
		}
		fields[name] = field
	}

	searchID, ok := jsonInt(fields["search_id"])
	if !ok {
		return Book{}, false
	}

	return Book{
		SearchID:     searchID,
		Name:         fields["name"].String(),
		Category:     fields["category"].String(),
		DateAdded:    fields["date_added"].String(),
		CommitURL:    fields["commit_url"].String(),
		CommitAuthor: fields["commit_author"].String(),
		CommitHash:   fields["commit_hash"].String(),
	}, true
}

// imageDecoder decodes an image response. fallbackSearchID is used when
// the response carries no Book-Search-Id header.
func imageDecoder(imageType ImageType, fallbackSearchID int) Decoder[*Book] {
	return func(resp *RawResponse) (*Book, error) {
		contentType := resp.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			detail := ""
			if body, err := parseJSON(resp); err == nil && body.Exists() {
				detail = " ( " + body.Raw + " )"
			}
			return nil, decodeError(resp, "response is not an image!%s content type is %q, expected image/*",
				detail, contentType)
		}

		searchID := fallbackSearchID
		if raw := resp.Header.Get(headerBookSearchID); raw != "" {
			id, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, decodeError(resp, "%s header %q is not an integer", headerBookSearchID, raw)
			}
			searchID = id
		}

		return &Book{
			Image:        resp.Body,
			Type:         imageType.orDefault(),
			Category:     resp.Header.Get(headerBookCategory),
			CommitAuthor: resp.Header.Get(headerBookCommitAuthor),
			CommitHash:   resp.Header.Get(headerBookCommitHash),
			CommitURL:    resp.Header.Get(headerBookCommitURL),
			Name:         resp.Header.Get(headerBookName),
			DateAdded:    resp.Header.Get(headerBookDateAdded),
			SearchID:     searchID,
		}, nil
	}
}

func isPrimitive(r gjson.Result) bool {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return true
	default:
		return false
	}
}

// jsonInt accepts a JSON number or a string holding an integer.
func jsonInt(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Number:
		return int(r.Int()), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(r.String()))
		return n, err == nil
	default:
		return 0, false
	}
}
