package handlers

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/papertrade-project/backend/internal/services"
	"github.com/redis/go-redis/v9"
)

func TestStreamQuotes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer redisClient.Close()

	hub := services.NewQuoteStreamHub(redisClient, services.QuoteUpdateChannel)

	handler := NewStockHandler(nil, hub)
	app := fiber.New()
	app.Get("/api/v1/stocks/stream", handler.StreamQuotes)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	defer app.Shutdown()
	baseURL := "http://" + ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	payload := `{"ticker":"AAPL","company_name":"Apple Inc.","current_price":"187.23"}`
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = redisClient.Publish(context.Background(), services.QuoteUpdateChannel, payload).Err()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/stocks/stream", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to call SSE endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-timeout:
			t.Fatal("timed out waiting for SSE data")
		default:
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read SSE line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				if !strings.Contains(line, `"AAPL"`) {
					t.Fatalf("unexpected SSE payload: %s", line)
				}
				return
			}
		}
	}
}

func TestStreamQuotesWithoutHub(t *testing.T) {
	handler := NewStockHandler(nil, nil)
	app := fiber.New()
	app.Get("/api/v1/stocks/stream", handler.StreamQuotes)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks/stream", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
