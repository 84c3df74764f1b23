package knowledge

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/mocks"
)

// flexibleSQLMatcher creates a regex insensitive to whitespace for robust
// SQL mock matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockedStore(t *testing.T, embedder *mocks.MockEmbedder) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	// Ping expectations require monitoring to be switched on at pool creation.
	pool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	pool.ExpectPing()
	pool.ExpectExec(flexibleSQLMatcher("CREATE TABLE IF NOT EXISTS knowledge_entries")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store, err := NewPostgresStore(context.Background(), pool, embedder, zap.NewNop())
	require.NoError(t, err)
	return store, pool
}

func TestNewPostgresStore_PingFailure(t *testing.T) {
	pool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer pool.Close()

	pingErr := errors.New("database unavailable")
	pool.ExpectPing().WillReturnError(pingErr)

	_, err = NewPostgresStore(context.Background(), pool, new(mocks.MockEmbedder), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStore_Insert(t *testing.T) {
	embedder := new(mocks.MockEmbedder)
	embedder.On("Embed", mock.Anything, "type text").Return([]float32{0.5, 0.5}, nil).Once()

	store, pool := newMockedStore(t, embedder)
	defer pool.Close()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	pool.ExpectExec(flexibleSQLMatcher("INSERT INTO knowledge_entries")).
		WithArgs("id-1", "type text", "Type 'hi'", "code-a", []float64{0.5, 0.5}, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Insert(context.Background(), schemas.KnowledgeEntry{
		ID:             "id-1",
		AbstractPrompt: "type text",
		OriginalPrompt: "Type 'hi'",
		Code:           "code-a",
		CreatedAt:      created,
	})
	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStore_Insert_EmbeddingFailure(t *testing.T) {
	embedder := new(mocks.MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("model offline")).Once()

	store, pool := newMockedStore(t, embedder)
	defer pool.Close()

	err := store.Insert(context.Background(), schemas.KnowledgeEntry{AbstractPrompt: "x"})
	require.Error(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStore_Query_RanksBySimilarity(t *testing.T) {
	embedder := new(mocks.MockEmbedder)
	embedder.On("Embed", mock.Anything, "type something").Return([]float32{1, 0}, nil).Once()

	store, pool := newMockedStore(t, embedder)
	defer pool.Close()

	rows := pgxmock.NewRows([]string{"original_prompt", "code", "embedding"}).
		AddRow("Open calc", "code-b", []float64{0, 1}).
		AddRow("Type 'hi'", "code-a", []float64{1, 0})
	pool.ExpectQuery(flexibleSQLMatcher("SELECT original_prompt, code, embedding")).
		WithArgs(candidateLimit).
		WillReturnRows(rows)

	examples, err := store.Query(context.Background(), "type something", 1)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "Type 'hi'", examples[0].OriginalPrompt)
	assert.Equal(t, "code-a", examples[0].Code)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresStore_Query_ZeroTopK(t *testing.T) {
	embedder := new(mocks.MockEmbedder)
	store, pool := newMockedStore(t, embedder)
	defer pool.Close()

	examples, err := store.Query(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, examples)
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestPostgresStore_List(t *testing.T) {
	embedder := new(mocks.MockEmbedder)
	store, pool := newMockedStore(t, embedder)
	defer pool.Close()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "abstract_prompt", "original_prompt", "code", "created_at"}).
		AddRow("id-1", "type text", "Type 'hi'", "code-a", created)
	pool.ExpectQuery(flexibleSQLMatcher("SELECT id, abstract_prompt, original_prompt, code")).
		WillReturnRows(rows)

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "id-1", entries[0].ID)
	assert.Equal(t, created, entries[0].CreatedAt)
	assert.NoError(t, pool.ExpectationsWereMet())
}
