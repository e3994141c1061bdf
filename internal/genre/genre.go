// Package genre holds the fixed TMDB genre table and the curated quick filters.
package genre

import "sort"

var names = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

// Genre is a TMDB genre id with its display name.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// QuickFilter is a genre offered as a one-click shortcut.
type QuickFilter struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var quickFilters = []QuickFilter{
	{ID: 28, Name: "Action", Icon: "💥", Color: "#e63946"},
	{ID: 35, Name: "Comedy", Icon: "😂", Color: "#f4a261"},
	{ID: 27, Name: "Horror", Icon: "👻", Color: "#6a0572"},
	{ID: 10749, Name: "Romance", Icon: "❤️", Color: "#e76f51"},
	{ID: 878, Name: "Science Fiction", Icon: "🚀", Color: "#457b9d"},
	{ID: 16, Name: "Animation", Icon: "🎨", Color: "#2a9d8f"},
}

// Name returns the display name for a genre id.
func Name(id int) (string, bool) {
	name, ok := names[id]
	return name, ok
}

// Names maps genre ids to display names, dropping unknown ids.
func Names(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

// All returns every known genre ordered by id.
func All() []Genre {
	out := make([]Genre, 0, len(names))
	for id, name := range names {
		out = append(out, Genre{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QuickFilters returns a copy of the quick filter list in display order.
func QuickFilters() []QuickFilter {
	out := make([]QuickFilter, len(quickFilters))
	copy(out, quickFilters)
	return out
}

// IsKnown reports whether id is a TMDB movie genre.
func IsKnown(id int) bool {
	_, ok := names[id]
	return ok
}
