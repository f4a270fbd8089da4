package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMemLedgerBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l := NewMemLedger()

	c, err := l.GetCount(ctx, 100, 1)
	assert.NoError(err)
	assert.Equal(0, c)

	for i := 1; i <= 4; i++ {
		c, err = l.IncrementAndGet(ctx, 100, 1)
		assert.NoError(err)
		assert.Equal(i, c)
	}

	// other keys are independent
	c, err = l.GetCount(ctx, 100, 2)
	assert.NoError(err)
	assert.Equal(0, c)
	c, err = l.GetCount(ctx, 200, 1)
	assert.NoError(err)
	assert.Equal(0, c)

	assert.NoError(l.Reset(ctx, 100, 1))
	c, err = l.GetCount(ctx, 100, 1)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestMemLedgerConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l := NewMemLedger()

	// Increment the same key from several goroutines; every returned value
	// must be distinct (no two increments observe the same prior count), and
	// the final count must be exact. Run with `-race`.
	const workers = 8
	const perWorker = 25

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v, err := l.IncrementAndGet(ctx, 42, 7)
				assert.NoError(err)
				mu.Lock()
				assert.False(seen[v], "count %d returned twice", v)
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	c, err := l.GetCount(ctx, 42, 7)
	assert.NoError(err)
	assert.Equal(workers*perWorker, c)
}

func testGormDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database shared across queries
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestGormLedgerBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l, err := NewGormLedger(testGormDB(t))
	assert.NoError(err)

	c, err := l.GetCount(ctx, 100, 1)
	assert.NoError(err)
	assert.Equal(0, c)

	for i := 1; i <= 5; i++ {
		c, err = l.IncrementAndGet(ctx, 100, 1)
		assert.NoError(err)
		assert.Equal(i, c)
	}

	c, err = l.IncrementAndGet(ctx, 100, 2)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(l.Reset(ctx, 100, 1))
	c, err = l.GetCount(ctx, 100, 1)
	assert.NoError(err)
	assert.Equal(0, c)

	// reset leaves other keys alone
	c, err = l.GetCount(ctx, 100, 2)
	assert.NoError(err)
	assert.Equal(1, c)
}
