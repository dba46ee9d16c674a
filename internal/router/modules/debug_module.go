package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
)

// DebugModule exposes expvar counters on /debug/vars, plus pgx pool stats
// when Postgres is the store.
type DebugModule struct {
	Counter       middleware.WindowCounter
	Pool          *pgxpool.Pool
	SearchEnabled bool
}

func NewDebugModule(counter middleware.WindowCounter, pool *pgxpool.Pool, searchEnabled bool) *DebugModule {
	return &DebugModule{Counter: counter, Pool: pool, SearchEnabled: searchEnabled}
}

func (m *DebugModule) Name() string { return "debug" }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	m.publish()
	rl := middleware.RateLimit(m.Counter, 120, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())
	rg.GET("/debug/vars", rl, gin.WrapH(expvar.Handler()))
}

// publish registers the vars once per process; expvar panics on reuse.
func (m *DebugModule) publish() {
	if expvar.Get("search_enabled") == nil {
		enabled := m.SearchEnabled
		expvar.Publish("search_enabled", expvar.Func(func() any { return enabled }))
	}
	if m.Pool != nil && expvar.Get("pg_pool") == nil {
		pool := m.Pool
		expvar.Publish("pg_pool", expvar.Func(func() any {
			s := pool.Stat()
			return map[string]int64{
				"total_conns":    int64(s.TotalConns()),
				"idle_conns":     int64(s.IdleConns()),
				"acquired_conns": int64(s.AcquiredConns()),
				"acquire_count":  s.AcquireCount(),
			}
		}))
	}
}
