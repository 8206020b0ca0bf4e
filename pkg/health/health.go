package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const DefaultCheckTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ErrDegraded marks a check failure that should not take the service out
// of rotation.
var ErrDegraded = errors.New("degraded")

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// HTTPStatus is 503 only when unhealthy; a degraded relay still takes
// notifications.
func (h Health) HTTPStatus() int {
	if h.Status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

type CheckResult struct {
	Status     Status    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// CheckerRegistry runs its checkers concurrently, each bounded by the
// registry timeout.
type CheckerRegistry struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{timeout: DefaultCheckTimeout, now: time.Now}
}

func (r *CheckerRegistry) SetTimeout(d time.Duration) {
	if d > 0 {
		r.mu.Lock()
		r.timeout = d
		r.mu.Unlock()
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, checker)
	r.mu.Unlock()
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	timeout := r.timeout
	r.mu.RUnlock()

	results := make([]CheckResult, len(checkers))

	// Every goroutine returns nil so one failed check never cancels the
	// others.
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			results[i] = r.run(ctx, checker, timeout)
			return nil
		})
	}
	_ = g.Wait()

	h := Health{
		Status:    StatusHealthy,
		Timestamp: r.now(),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}
	for i, checker := range checkers {
		res := results[i]
		h.Checks[checker.Name()] = res

		switch res.Status {
		case StatusUnhealthy:
			h.Status = StatusUnhealthy
		case StatusDegraded:
			if h.Status == StatusHealthy {
				h.Status = StatusDegraded
			}
		}
	}
	return h
}

func (r *CheckerRegistry) run(ctx context.Context, checker Checker, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := checker.Check(ctx)
	res := CheckResult{
		Status:     StatusHealthy,
		DurationMS: r.now().Sub(start).Milliseconds(),
		Timestamp:  start,
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrDegraded):
		res.Status = StatusDegraded
		res.Message = err.Error()
	default:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// Handler serves the registry as JSON.
func (r *CheckerRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := r.Check(c.Request.Context())
		c.JSON(h.HTTPStatus(), h)
	}
}

// PingChecker reports a dependency healthy when its ping succeeds.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) error {
	if err := c.ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}

func NewPostgreSQLChecker(db *sql.DB) *PingChecker {
	return NewPingChecker("postgresql", db.PingContext)
}

func NewRedisChecker(client *redis.Client) *PingChecker {
	return NewPingChecker("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func NewMongoDBChecker(client *mongo.Client) *PingChecker {
	return NewPingChecker("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
}

// DispatcherState is what the dispatcher checker needs to know.
type DispatcherState interface {
	Closed() bool
	QueueUsage() (queued, capacity int)
}

// DispatcherChecker is unhealthy once the dispatcher stopped accepting
// work and degraded while its queue is at least 90% full.
type DispatcherChecker struct {
	dispatcher DispatcherState
}

func NewDispatcherChecker(d DispatcherState) *DispatcherChecker {
	return &DispatcherChecker{dispatcher: d}
}

func (c *DispatcherChecker) Name() string {
	return "dispatcher"
}

func (c *DispatcherChecker) Check(context.Context) error {
	if c.dispatcher.Closed() {
		return errors.New("dispatcher is shut down")
	}

	queued, capacity := c.dispatcher.QueueUsage()
	if capacity > 0 && queued*10 >= capacity*9 {
		return fmt.Errorf("%w: delivery queue at %d/%d", ErrDegraded, queued, capacity)
	}
	return nil
}
