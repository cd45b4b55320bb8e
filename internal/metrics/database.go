package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBConnections reports pool connections by state: in_use, idle or max.
	DBConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database pool connections by state",
		},
		[]string{"state"},
	)

	DBAcquireWaits = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_acquire_waits",
			Help:      "Cumulative number of pool acquisitions that waited for a connection",
		},
	)

	// Competitions is the number of competitions per public and internal status.
	Competitions = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "competitions",
			Help:      "Competitions ending no more than 30 days ago, by public and internal status",
		},
		[]string{"status_public", "status_internal"},
	)
)

const competitionStatusQuery = `
SELECT status_public, status_internal, count(*)
FROM competitions
WHERE end_date >= current_date - 30
GROUP BY 1, 2`

// DBCollector periodically copies pool statistics and competition counts
// into the gauges.
type DBCollector struct {
	pool     *pgxpool.Pool
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewDBCollector(pool *pgxpool.Pool) *DBCollector {
	return &DBCollector{pool: pool, stopChan: make(chan struct{})}
}

// Start collects immediately and then every interval until ctx is done or
// Stop is called.
func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *DBCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *DBCollector) collect(ctx context.Context) {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	DBConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
	DBConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	DBConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
	DBAcquireWaits.Set(float64(stat.EmptyAcquireCount()))

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := c.pool.Query(queryCtx, competitionStatusQuery)
	if err != nil {
		return
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusCount, error) {
		var sc StatusCount
		err := row.Scan(&sc.Public, &sc.Internal, &sc.Count)
		return sc, err
	})
	if err != nil {
		return
	}
	SetCompetitionCounts(counts)
}

// StatusCount is the number of competitions in one status pair.
type StatusCount struct {
	Public   string
	Internal string
	Count    int64
}

// SetCompetitionCounts replaces every Competitions series, so a status pair
// with no competitions left disappears instead of keeping its old value.
func SetCompetitionCounts(counts []StatusCount) {
	Competitions.Reset()
	for _, sc := range counts {
		Competitions.WithLabelValues(sc.Public, sc.Internal).Set(float64(sc.Count))
	}
}
