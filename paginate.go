package quarry

// PageInfo describes the position of a result page within the full
// result set. All fields are non-negative.
type PageInfo struct {
	CurrentPage int `msgpack:"current_page"`
	PerPage     int `msgpack:"per_page"`
	TotalPages  int `msgpack:"total_pages"`
	TotalItems  int `msgpack:"total_items"`
}

// Paginator is the page-metadata collaborator.
type Paginator interface {
	Paginate(total, perPage, currentPage int) PageInfo
}

// Paginate computes page metadata. perPage is floored to 1 and
// totalPages is ceil(total / perPage). Pure, no I/O.
func Paginate(total, perPage, currentPage int) PageInfo {
	if total < 0 {
		total = 0
	}
	if perPage < 1 {
		perPage = 1
	}
	if currentPage < 0 {
		currentPage = 0
	}
	return PageInfo{
		CurrentPage: currentPage,
		PerPage:     perPage,
		TotalPages:  (total + perPage - 1) / perPage,
		TotalItems:  total,
	}
}

// paginateFunc adapts a plain function to the Paginator interface.
type paginateFunc func(total, perPage, currentPage int) PageInfo

func (f paginateFunc) Paginate(total, perPage, currentPage int) PageInfo {
	return f(total, perPage, currentPage)
}

// DefaultPaginator is the Paginator backed by Paginate.
var DefaultPaginator Paginator = paginateFunc(Paginate)
