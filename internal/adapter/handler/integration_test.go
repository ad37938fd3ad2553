package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/rowstore/internal/adapter/storage"
	"github.com/rl1809/rowstore/internal/config"
	"github.com/rl1809/rowstore/internal/core/domain"
	"github.com/rl1809/rowstore/internal/core/service"
	"github.com/rl1809/rowstore/internal/logger"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	journal *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/rowstore"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb, err := storage.OpenRedis(ctx, config.RedisConfig{Address: redisAddr, PoolSize: 10, DialTimeout: time.Second})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := storage.OpenMySQL(ctx, config.MySQLConfig{DSN: mysqlDSN, MaxOpenConns: 5, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}

	journal := storage.NewMySQLAdapter(db)
	if err := journal.EnsureSchema(ctx); err != nil {
		rdb.Close()
		db.Close()
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	return &testEnv{
		redis:   rdb,
		mysql:   db,
		cache:   storage.NewRedisAdapter(rdb),
		journal: journal,
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func TestIntegration_FullRowLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	name := "integration-" + uuid.NewString()
	defer env.mysql.ExecContext(ctx, `DELETE FROM row_changes WHERE name = ?`, name)

	svc := service.NewRowService(100, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.RunJournal(svc.GetChangeQueue(), env.journal, 3, logger.Nop(), nil)
	}()

	server := httptest.NewServer(NewRouter(RouterParams{
		Handler:        NewHTTPHandler(svc, logger.Nop()),
		Logger:         logger.Nop(),
		Idempotency:    env.cache,
		IdempotencyTTL: time.Minute,
	}))
	defer server.Close()

	idempotencyKey := uuid.NewString()
	defer env.redis.Del(ctx, env.cache.IdempotencyKey("POST|/api/rows", idempotencyKey))

	body := fmt.Sprintf(`{"name":%q,"quantity":4}`, name)
	var created domain.Row
	for i := 0; i < 2; i++ {
		resp := send(t, server, http.MethodPost, "/api/rows", body, idempotencyKey)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %d: expected 201, got %d", i, resp.StatusCode)
		}
		var row domain.Row
		decodeResponse(t, resp, &row)
		if i == 0 {
			created = row
		} else if row != created {
			t.Errorf("expected replayed row %+v, got %+v", created, row)
		}
	}

	resp := send(t, server, http.MethodPut, fmt.Sprintf("/api/rows/%d", created.ID), `{"quantity":9}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = send(t, server, http.MethodDelete, fmt.Sprintf("/api/rows/%d", created.ID), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	svc.Close()
	wg.Wait()

	var changeCount int
	env.mysql.QueryRowContext(ctx, `SELECT COUNT(*) FROM row_changes WHERE name = ?`, name).Scan(&changeCount)
	if changeCount != 3 {
		t.Errorf("expected 3 journaled changes (create, update, delete), got %d", changeCount)
	}

	var lastQuantity int
	env.mysql.QueryRowContext(ctx, `SELECT quantity FROM row_changes WHERE name = ? AND op = 'delete'`, name).Scan(&lastQuantity)
	if lastQuantity != 9 {
		t.Errorf("expected deleted row quantity 9, got %d", lastQuantity)
	}
}

func send(t *testing.T, server *httptest.Server, method, path, body, idempotencyKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
