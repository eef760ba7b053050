package boltstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captjreacher/pimp-my-brand/internal/content"
)

func TestContentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).ContentStore()

	record := content.Record{
		ID:          "brand-1",
		ContentType: content.TypeBrand,
		UserID:      "user-1",
		Title:       "Artisan Leather Goods",
		Description: "Handcrafted bags",
		Fields:      map[string]any{"industry": "fashion"},
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.PutRecord(ctx, record))

	got, err := store.GetContent(ctx, content.TypeBrand, "brand-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Title, got.Title)
	assert.Equal(t, "fashion", got.Fields["industry"])

	// Same id under a different type is a different record.
	missing, err := store.GetContent(ctx, content.TypeCV, "brand-1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContentStore_ListContentByUser(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).ContentStore()

	now := time.Now().UTC()
	for _, record := range []content.Record{
		{ID: "b-1", ContentType: content.TypeBrand, UserID: "user-1", Title: "Brand one", CreatedAt: now},
		{ID: "cv-1", ContentType: content.TypeCV, UserID: "user-1", Title: "CV one", CreatedAt: now},
		{ID: "b-2", ContentType: content.TypeBrand, UserID: "user-2", Title: "Brand two", CreatedAt: now},
	} {
		require.NoError(t, store.PutRecord(ctx, record))
	}

	records, err := store.ListContentByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = store.ListContentByUser(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, records)
}
