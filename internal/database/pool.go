package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned when a connection is requested after Close.
var ErrPoolClosed = errors.New("connection pool is closed")

// ConnFactory dials and configures one database handle. The factory runs the
// per-handle session setup exactly once, at creation.
type ConnFactory func(ctx context.Context) (*pgx.Conn, error)

// ConnPool is a bounded pool of pre-warmed database handles. When the pool
// is exhausted beyond the bounded wait it degrades to a temporary handle
// that is used once and discarded, never blocking the caller indefinitely.
type ConnPool struct {
	factory  ConnFactory
	conns    chan *pgx.Conn
	size     int
	waitTime time.Duration
	logger   *logrus.Logger

	mu       sync.Mutex
	closed   bool
	overflow atomic.Int64
}

// PoolStats is a read-only snapshot of pool occupancy.
type PoolStats struct {
	Size     int   `json:"size"`
	Idle     int   `json:"idle"`
	Overflow int64 `json:"overflow_total"`
}

// NewConnPool pre-warms size handles through the factory. Handles created
// here are the only ones ever returned to the pool.
func NewConnPool(ctx context.Context, factory ConnFactory, size int, waitTime time.Duration, logger *logrus.Logger) (*ConnPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}

	pool := &ConnPool{
		factory:  factory,
		conns:    make(chan *pgx.Conn, size),
		size:     size,
		waitTime: waitTime,
		logger:   logger,
	}

	for i := 0; i < size; i++ {
		conn, err := factory(ctx)
		if err != nil {
			pool.Close(ctx)
			return nil, fmt.Errorf("pre-warm connection %d: %w", i, err)
		}
		pool.conns <- conn
	}

	logger.WithField("size", size).Info("Connection pool initialized")
	return pool, nil
}

// WithConn runs fn with a pooled handle, guaranteeing release on every exit
// path including panics. If no handle frees up within the bounded wait, a
// temporary handle is dialed, used once and closed.
func (p *ConnPool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *pgx.Conn) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	var conn *pgx.Conn
	pooled := true

	select {
	case conn = <-p.conns:
	default:
		timer := time.NewTimer(p.waitTime)
		defer timer.Stop()
		select {
		case conn = <-p.conns:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			p.logger.Warn("Connection pool exhausted, creating temporary connection")
			temp, err := p.factory(ctx)
			if err != nil {
				return fmt.Errorf("create overflow connection: %w", err)
			}
			conn = temp
			pooled = false
			p.overflow.Add(1)
		}
	}

	defer func() {
		if pooled {
			p.release(conn)
		} else {
			// Overflow handles are single-use and never pooled.
			closeConn(context.Background(), conn)
		}
	}()

	return fn(ctx, conn)
}

// release puts a pooled handle back, closing it if the pool has been closed
// in the meantime.
func (p *ConnPool) release(conn *pgx.Conn) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		closeConn(context.Background(), conn)
		return
	}

	select {
	case p.conns <- conn:
	default:
		closeConn(context.Background(), conn)
	}
}

func closeConn(ctx context.Context, conn *pgx.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close(ctx)
}

// Close drains and closes every idle handle. Handles currently checked out
// are closed when released.
func (p *ConnPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.conns:
			closeConn(ctx, conn)
		default:
			p.logger.Info("Connection pool closed")
			return nil
		}
	}
}

// Stats reports current pool occupancy and the overflow counter.
func (p *ConnPool) Stats() PoolStats {
	return PoolStats{
		Size:     p.size,
		Idle:     len(p.conns),
		Overflow: p.overflow.Load(),
	}
}
