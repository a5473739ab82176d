package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/internal/models"
	"github.com/feichai0017/slide-migrator/internal/repository"
)

func slide(id int64, active bool, html string) models.SourceSlide {
	return models.SourceSlide{
		ID:          id,
		Active:      active,
		HTMLContent: models.NewLocalizedText(map[string]string{"es_MX": html}),
	}
}

func TestSourceStoreQueries(t *testing.T) {
	ctx := context.Background()
	src := NewSourceStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s1 := slide(3, true, `<img src="data:image/png;base64,AAAA">`)
	s1.WriteDate = &base
	later := base.Add(time.Hour)
	s2 := slide(1, true, `<img src="data:image/png;base64,AAAAAAAAAAAAAAAA">`)
	s2.WriteDate = &later
	s3 := slide(2, false, "<p>gone</p>")
	src.PutSlide(s1)
	src.PutSlide(s2)
	src.PutSlide(s3)

	ids, err := src.ListSlideIDs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	all, err := src.ListSlideIDs(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, all)

	modified, err := src.ListSlideIDsModifiedSince(ctx, base, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, modified)

	heavy, err := src.FindSlidesWithEmbeddedImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, heavy, 2)
	assert.Equal(t, int64(1), heavy[0].ID, "largest content first")

	stats, err := src.SlideStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Inactive)
	assert.Equal(t, int64(len("<p>gone</p>")), stats.InactiveSizeBytes)
	assert.Equal(t, int64(2), stats.WithEmbedded)

	_, err = src.FindSlide(ctx, 99)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestImageStoreSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewImageStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, created, err := store.InsertIfAbsent(ctx, &models.SlideImage{
				ID:   fmt.Sprintf("id-%d", i),
				Hash: "same",
			})
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "same", stored.Hash)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, store.Len())
}

func TestImageStoreLookups(t *testing.T) {
	ctx := context.Background()
	store := NewImageStore()
	for i, mime := range []string{"image/png", "image/png", "image/gif"} {
		_, _, err := store.InsertIfAbsent(ctx, &models.SlideImage{
			ID:         fmt.Sprintf("id-%d", i),
			SlideID:    5,
			ImageIndex: i,
			Filename:   fmt.Sprintf("doc_5_img_%d.x", i),
			MimeType:   mime,
			Hash:       fmt.Sprintf("h%d", i),
			SizeBytes:  10,
		})
		require.NoError(t, err)
	}

	n, err := store.CountBySlide(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	img, err := store.FindBySlideAndFilename(ctx, 5, "doc_5_img_2.x")
	require.NoError(t, err)
	assert.Equal(t, "h2", img.Hash)

	byID, err := store.FindByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", byID.Hash)

	stats, err := store.StatsByMimeType(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, models.MimeTypeStats{MimeType: "image/png", Count: 2, TotalBytes: 20}, stats[0])
}

func TestTrackingStoreTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewTrackingStore()

	created, err := store.CreateMissing(ctx, []int64{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = store.CreateMissing(ctx, []int64{1, 4})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	moved, err := store.Transition(ctx, models.StatusPending, models.StatusProcessing, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	pending, err := store.ListIDs(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4}, pending)

	moved, err = store.Transition(ctx, models.StatusProcessing, models.StatusPending, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[models.StatusPending])
}

func TestSlideStorePaging(t *testing.T) {
	ctx := context.Background()
	store := NewSlideStore()
	for i := int64(1); i <= 5; i++ {
		name := fmt.Sprintf("Slide %d", i)
		p := models.NewProcessedSlide(i, time.Now())
		p.Name = &name
		p.Active = true
		p.IsPublished = i%2 == 1
		require.NoError(t, store.Save(ctx, p))
	}

	page, total, err := store.List(ctx, false, repository.Page{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)

	published, total, err := store.List(ctx, true, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, published, 3)

	found, _, err := store.Search(ctx, "slide 4", repository.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(4), found[0].ID)

	past, _, err := store.List(ctx, false, repository.Page{Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, past)
}
