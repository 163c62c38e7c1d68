package handler

import (
	"fmt"
	"net/url"
)

// Pagination holds pagination data for listing responses.
type Pagination struct {
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
	TotalItems  int64  `json:"total_items"`
	PerPage     int    `json:"per_page"`
	HasPrev     bool   `json:"has_prev"`
	HasNext     bool   `json:"has_next"`
	PrevPage    int    `json:"prev_page,omitempty"`
	NextPage    int    `json:"next_page,omitempty"`
	BaseURL     string `json:"-"`
	QueryString string `json:"-"`
}

// BuildPagination creates pagination data for a listing response.
// baseURL is the path without query string (e.g., "/admin/posts");
// queryParams are the current query parameters to preserve (filters).
func BuildPagination(currentPage, totalPages int, totalItems int64, perPage int, baseURL string, queryParams url.Values) Pagination {
	if totalPages < 1 {
		totalPages = 1
	}

	p := Pagination{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		PerPage:     perPage,
		HasPrev:     currentPage > 1,
		HasNext:     currentPage < totalPages,
		BaseURL:     baseURL,
	}
	if p.HasPrev {
		p.PrevPage = currentPage - 1
	}
	if p.HasNext {
		p.NextPage = currentPage + 1
	}

	// Build query string without the page parameter
	if queryParams != nil {
		params := make(url.Values)
		for k, v := range queryParams {
			if k != "page" && len(v) > 0 && v[0] != "" {
				params[k] = v
			}
		}
		if len(params) > 0 {
			p.QueryString = params.Encode()
		}
	}

	return p
}

// PageURL returns the URL for a specific page number.
func (p Pagination) PageURL(page int) string {
	if p.QueryString != "" {
		return fmt.Sprintf("%s?%s&page=%d", p.BaseURL, p.QueryString, page)
	}
	return fmt.Sprintf("%s?page=%d", p.BaseURL, page)
}

// PrevURL returns the URL for the previous page.
func (p Pagination) PrevURL() string {
	return p.PageURL(p.PrevPage)
}

// NextURL returns the URL for the next page.
func (p Pagination) NextURL() string {
	return p.PageURL(p.NextPage)
}

// ShouldShow returns true if pagination should be displayed (more than 1 page).
func (p Pagination) ShouldShow() bool {
	return p.TotalPages > 1
}

// PageRange returns a description of the current page range.
func (p Pagination) PageRange() string {
	if p.TotalItems == 0 {
		return "0-0"
	}
	start := (p.CurrentPage-1)*p.PerPage + 1
	end := p.CurrentPage * p.PerPage
	if int64(end) > p.TotalItems {
		end = int(p.TotalItems)
	}
	return fmt.Sprintf("%d-%d", start, end)
}
