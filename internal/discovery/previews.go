package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/marco/movieFinder/internal/genre"
)

// GenrePreview is the first few popular movies of one quick filter genre.
type GenrePreview struct {
	Genre  genre.QuickFilter `json:"genre"`
	Movies []Card            `json:"movies"`
	Error  string            `json:"error,omitempty"`
}

type previewResult struct {
	index   int
	preview GenrePreview
}

// LoadGenrePreviews fetches a preview row per filter across workers
// goroutines. Rows come back in filter order; a failed row carries
// MsgFetchFailed and no movies.
func LoadGenrePreviews(
	ctx context.Context,
	source MovieSource,
	filters []genre.QuickFilter,
	workers int,
	size int,
	logger *slog.Logger,
) []GenrePreview {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	jobs := make(chan int, len(filters))
	results := make(chan previewResult, len(filters))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				preview := GenrePreview{Genre: filters[i], Movies: []Card{}}
				if ctx.Err() != nil {
					preview.Error = MsgFetchFailed
					results <- previewResult{index: i, preview: preview}
					continue
				}

				resp, err := source.Movies(ctx, "", filters[i].ID)
				if err != nil {
					logger.Warn("genre preview failed", "genre", filters[i].Name, "error", err)
					preview.Error = MsgFetchFailed
				} else {
					movies := resp.Results
					if size > 0 && len(movies) > size {
						movies = movies[:size]
					}
					preview.Movies = NewCards(movies)
				}
				results <- previewResult{index: i, preview: preview}
			}
		}()
	}

	for i := range filters {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	previews := make([]GenrePreview, len(filters))
	for r := range results {
		previews[r.index] = r.preview
	}
	return previews
}
