package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck pings one backend.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func PostgresCheck(pool *pgxpool.Pool) ReadinessCheck {
	return ReadinessCheck{Name: "postgres", Ping: pool.Ping}
}

func MongoCheck(client *mongo.Client) ReadinessCheck {
	return ReadinessCheck{Name: "mongo", Ping: func(ctx context.Context) error { return client.Ping(ctx, nil) }}
}

func RedisCheck(client *redis.Client) ReadinessCheck {
	return ReadinessCheck{Name: "redis", Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() }}
}

func RabbitMQCheck(conn *amqp.Connection) ReadinessCheck {
	return ReadinessCheck{Name: "rabbitmq", Ping: func(context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}}
}

type HealthHandler struct {
	checks []ReadinessCheck
}

func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings every configured backend concurrently and reports each one.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var mu sync.Mutex
	resp := gin.H{}
	ready := true

	var g errgroup.Group
	for _, check := range h.checks {
		g.Go(func() error {
			state := "connected"
			if err := check.Ping(ctx); err != nil {
				state = "unavailable"
			}
			mu.Lock()
			defer mu.Unlock()
			resp[check.Name] = state
			if state != "connected" {
				ready = false
			}
			return nil
		})
	}
	_ = g.Wait()

	if !ready {
		resp["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["status"] = "ok"
	c.JSON(http.StatusOK, resp)
}
