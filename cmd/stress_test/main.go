package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/rowstore/internal/adapter/handler"
	"github.com/rl1809/rowstore/internal/core/domain"
)

// rowAPI is the slice of the rows API the stress run needs.
type rowAPI interface {
	List(ctx context.Context) ([]domain.Row, error)
	Create(ctx context.Context, name string, quantity int) (domain.Row, error)
}

func main() {
	httpURL := flag.String("http", "http://localhost:8080", "base URL of the HTTP API")
	grpcAddr := flag.String("grpc", "", "gRPC address; when set, requests go over gRPC instead of HTTP")
	totalRequests := flag.Int("n", 200, "number of concurrent creates")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var api rowAPI
	transport := "HTTP"
	if *grpcAddr != "" {
		conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("failed to create grpc client: %v", err)
		}
		defer conn.Close()
		api = grpcAPI{client: handler.NewRowClient(conn)}
		transport = "gRPC"
	} else {
		api = &httpAPI{baseURL: *httpURL, client: &http.Client{Timeout: 10 * time.Second}}
	}

	before, err := api.List(ctx)
	if err != nil {
		log.Fatalf("failed to list rows: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	var mu sync.Mutex
	ids := make(map[int]int, *totalRequests)

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			row, err := api.Create(ctx, fmt.Sprintf("stress-%d", n), n)
			if err != nil {
				failCount.Add(1)
				return
			}
			successCount.Add(1)

			mu.Lock()
			ids[row.ID]++
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := api.List(ctx)
	if err != nil {
		log.Fatalf("failed to list rows: %v", err)
	}

	duplicates := 0
	for _, count := range ids {
		if count > 1 {
			duplicates += count - 1
		}
	}

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Transport:        %s\n", transport)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Distinct IDs:     %d\n", len(ids))
	fmt.Printf("Rows Before/After: %d/%d\n", len(before), len(after))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	passed := true
	if int(success) == *totalRequests && duplicates == 0 {
		fmt.Printf("PASS: %d creates returned %d distinct ids\n", *totalRequests, len(ids))
	} else {
		fmt.Printf("FAIL: expected %d distinct ids, got %d (%d duplicates, %d failures)\n",
			*totalRequests, len(ids), duplicates, fail)
		passed = false
	}

	// Other clients may write concurrently, so growth is a lower bound.
	if len(after)-len(before) >= int(success) {
		fmt.Printf("PASS: table grew by %d rows\n", len(after)-len(before))
	} else {
		fmt.Printf("FAIL: expected table to grow by %d, grew by %d\n", success, len(after)-len(before))
		passed = false
	}

	if !passed {
		os.Exit(1)
	}
}

type httpAPI struct {
	baseURL string
	client  *http.Client
}

func (a *httpAPI) List(ctx context.Context) ([]domain.Row, error) {
	var rows []domain.Row
	if err := a.do(ctx, http.MethodGet, "/api/rows", nil, http.StatusOK, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *httpAPI) Create(ctx context.Context, name string, quantity int) (domain.Row, error) {
	body, err := json.Marshal(map[string]any{"name": name, "quantity": quantity})
	if err != nil {
		return domain.Row{}, err
	}
	var row domain.Row
	if err := a.do(ctx, http.MethodPost, "/api/rows", body, http.StatusCreated, &row); err != nil {
		return domain.Row{}, err
	}
	return row, nil
}

func (a *httpAPI) do(ctx context.Context, method, path string, body []byte, wantStatus int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type grpcAPI struct {
	client *handler.RowClient
}

func (a grpcAPI) List(ctx context.Context) ([]domain.Row, error) {
	return a.client.ListRows(ctx)
}

func (a grpcAPI) Create(ctx context.Context, name string, quantity int) (domain.Row, error) {
	return a.client.CreateRow(ctx, name, quantity)
}
