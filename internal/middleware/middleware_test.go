package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mosala-ledger/mosala/internal/logging"
)

func newCache(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	return cache
}

func postJSON(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app := fiber.New()
	app.Use(Idempotency(newCache(t), time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true})
	})

	status, _ := postJSON(t, app, "/resource", nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	var handlerCalls atomic.Int64
	app := fiber.New()
	app.Use(Idempotency(newCache(t), time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		handlerCalls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": handlerCalls.Load()})
	})

	headers := map[string]string{idempotencyKeyHeader: "abc123"}
	status, payload := postJSON(t, app, "/resource", headers)
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking the
	// handler again.
	status2, cachedPayload := postJSON(t, app, "/resource", headers)
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if handlerCalls.Load() != 1 {
		t.Fatalf("handler ran %d times, expected once", handlerCalls.Load())
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencySkipsSafeMethods(t *testing.T) {
	app := fiber.New()
	app.Use(Idempotency(newCache(t), time.Minute, logging.Discard()))
	app.Get("/resource", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/resource", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected GET to bypass idempotency, got %d", resp.StatusCode)
	}
}

func TestRequestIDEchoedOnResponse(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/resource", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/resource", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected supplied request id echoed, got %q", got)
	}

	resp2, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/resource", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp2.Body.Close()
	if _, err := uuid.Parse(resp2.Header.Get(requestIDHeader)); err != nil {
		t.Fatalf("expected generated request id, got %q", resp2.Header.Get(requestIDHeader))
	}
}

func TestOwnerIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(OwnerIdentity())
	app.Post("/resource", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"owner_id": OwnerID(c)})
	})

	if status, _ := postJSON(t, app, "/resource", nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected %d for missing header, got %d", fiber.StatusUnauthorized, status)
	}
	if status, _ := postJSON(t, app, "/resource", map[string]string{ownerIDHeader: "not-a-uuid"}); status != fiber.StatusUnauthorized {
		t.Fatalf("expected %d for malformed header, got %d", fiber.StatusUnauthorized, status)
	}

	ownerID := uuid.NewString()
	status, body := postJSON(t, app, "/resource", map[string]string{ownerIDHeader: ownerID})
	if status != fiber.StatusOK {
		t.Fatalf("expected %d, got %d", fiber.StatusOK, status)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded["owner_id"] != ownerID {
		t.Fatalf("expected owner %s, got %s", ownerID, decoded["owner_id"])
	}
}

func TestMutationRateLimit(t *testing.T) {
	app := fiber.New()
	app.Use(OwnerIdentity())
	app.Use(MutationRateLimit(newCache(t), 2))
	app.Post("/resource", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Get("/resource", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	headers := map[string]string{ownerIDHeader: uuid.NewString()}
	for i := 0; i < 2; i++ {
		if status, _ := postJSON(t, app, "/resource", headers); status != fiber.StatusCreated {
			t.Fatalf("request %d: expected %d, got %d", i, fiber.StatusCreated, status)
		}
	}
	if status, _ := postJSON(t, app, "/resource", headers); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected %d after limit, got %d", fiber.StatusTooManyRequests, status)
	}

	// Reads are never limited.
	req := httptest.NewRequest(fiber.MethodGet, "/resource", nil)
	req.Header.Set(ownerIDHeader, headers[ownerIDHeader])
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected GET to bypass rate limit, got %d", resp.StatusCode)
	}
}
