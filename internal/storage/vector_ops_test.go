package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ficherag/pkg/types"
)

func insert(t *testing.T, s *SQLiteStorage, source, content string, vec []float32) int64 {
	t.Helper()
	id, err := s.InsertRecord(context.Background(), &types.Record{
		Content:   content,
		Source:    source,
		Embedding: vec,
	})
	require.NoError(t, err)
	return id
}

func TestNearestNeighbors(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	same := insert(t, s, "Referentiel_PSE.txt", "identique", []float32{1, 0, 0})
	close1 := insert(t, s, "Referentiel_PSE.txt", "proche", []float32{0.9, 0.1, 0})
	insert(t, s, "Referentiel_PSC1.pdf", "orthogonal", []float32{0, 1, 0})
	insert(t, s, "Referentiel_PSE.txt", "autre dimension", []float32{1, 0})

	matches, err := s.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 10, "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, same, matches[0].Record.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, close1, matches[1].Record.ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)

	limited, err := s.NearestNeighbors(ctx, []float32{1, 0, 0}, 0, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 0, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNearestNeighbors_CategoryFilter(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	insert(t, s, "Referentiel_PSE.txt", "pse", []float32{1, 0})
	psc := insert(t, s, "Referentiel_PSC1.pdf", "psc", []float32{1, 0})

	matches, err := s.NearestNeighbors(ctx, []float32{1, 0}, 0, 10, "psc")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, psc, matches[0].Record.ID)
}

func TestCategoryFilter_FoldsNonASCII(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	insert(t, s, "Referentiel_PSE1.txt", "pse", []float32{1, 0})
	want := insert(t, s, "ÉQUIPIER_SECOURISTE.txt", "équipier", []float32{1, 0})

	matches, err := s.NearestNeighbors(ctx, []float32{1, 0}, 0, 10, "équipier")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, want, matches[0].Record.ID)

	matches, err = s.SubstringFilter(ctx, []string{"equipier"}, "Équipier", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, want, matches[0].Record.ID)

	assert.Equal(t, "équipier_secouriste.txt", SourceKey(" ÉQUIPIER_SECOURISTE.txt "))
}

func TestNearestNeighbors_TiesOrderedByID(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()

	a := insert(t, s, "x.txt", "a", []float32{0, 1})
	b := insert(t, s, "x.txt", "b", []float32{0, 1})

	matches, err := s.NearestNeighbors(context.Background(), []float32{0, 1}, 0, 10, "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, a, matches[0].Record.ID)
	assert.Equal(t, b, matches[1].Record.ID)
}

func TestSubstringFilter(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	hemo := insert(t, s, "Referentiel_PSE.txt", "[05PR08 / 12-2022] Hémorragie externe\n\nComprimer la plaie.", []float32{1})
	insert(t, s, "Referentiel_PSE.txt", "[05PR09 / 12-2022] Garrot\n\nPoser un garrot si la compression est inefficace.", []float32{1})
	pscHemo := insert(t, s, "Referentiel_PSC1.pdf", "Hémorragie: appuyer sur la PLAIE.", []float32{1})

	t.Run("conjunctive, case and accent insensitive", func(t *testing.T) {
		matches, err := s.SubstringFilter(ctx, []string{"HEMORRAGIE", "plaie"}, "", 10)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, hemo, matches[0].Record.ID)
		assert.Equal(t, pscHemo, matches[1].Record.ID)
		assert.Zero(t, matches[0].Similarity)
	})

	t.Run("substring not token", func(t *testing.T) {
		matches, err := s.SubstringFilter(ctx, []string{"compress"}, "", 10)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("category filter", func(t *testing.T) {
		matches, err := s.SubstringFilter(ctx, []string{"hémorragie"}, "PSC", 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Referentiel_PSC1.pdf", matches[0].Record.Source)
	})

	t.Run("limit", func(t *testing.T) {
		matches, err := s.SubstringFilter(ctx, []string{"la"}, "", 2)
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("no terms", func(t *testing.T) {
		_, err := s.SubstringFilter(ctx, []string{" ", ""}, "", 10)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("terms are parameters", func(t *testing.T) {
		matches, err := s.SubstringFilter(ctx, []string{"'; DROP TABLE records; --"}, "", 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestSerializeVector(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, float32(math.Pi)}
	assert.Equal(t, vec, deserializeVector(serializeVector(vec)))
	assert.Empty(t, deserializeVector(nil))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, s.db))

	v, err := currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestRollbackMigration(t *testing.T) {
	s := setupTestDB(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, s.db))
	v, err := currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v.String())

	require.NoError(t, ApplyMigrations(ctx, s.db))
	v, err = currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}
