package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mosala-ledger/mosala/internal/config"
	"github.com/mosala-ledger/mosala/internal/logging"
)

// newTestApp wires the full route tree against the in-memory backends, the
// same selection dev mode makes when no database or cache is configured.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	priceFile := filepath.Join(t.TempDir(), "prices.yaml")
	if err := os.WriteFile(priceFile, []byte("prices:\n  BTC-USD: \"65000\"\n"), 0o600); err != nil {
		t.Fatalf("write price table: %v", err)
	}

	cfg := config.Config{
		AppName:        "mosala-test",
		AppEnv:         "test",
		PriceTableFile: priceFile,
		LockWait:       time.Second,
		IdempotencyTTL: time.Minute,
		RatePerMinute:  1000,
	}

	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, ownerID, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if ownerID != "" {
		req.Header.Set("X-Owner-ID", ownerID)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) != nil {
		decoded = map[string]any{"_raw": string(raw)}
	}
	return resp.StatusCode, decoded
}

func createAccount(t *testing.T, app *fiber.App, ownerID, name string, openingBalance int64) string {
	t.Helper()

	body := fiber.Map{"kind": "checking", "name": name, "opening_balance": openingBalance}
	raw, _ := json.Marshal(body)
	status, resp := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", ownerID, string(raw))
	if status != fiber.StatusCreated {
		t.Fatalf("create account %s: status %d (%v)", name, status, resp)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatalf("create account %s: missing id in %v", name, resp)
	}
	return id
}

func accountBalances(t *testing.T, app *fiber.App, ownerID string) map[string]float64 {
	t.Helper()

	status, resp := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts", ownerID, "")
	if status != fiber.StatusOK {
		t.Fatalf("list accounts: status %d (%v)", status, resp)
	}
	entries, _ := resp["accounts"].([]any)
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		entry := e.(map[string]any)
		out[entry["id"].(string)] = entry["balance"].(float64)
	}
	return out
}

func TestRoutesRequireOwnerHeader(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts", "", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected %d without owner header, got %d", fiber.StatusUnauthorized, status)
	}
}

func TestTransferEndToEnd(t *testing.T) {
	app := newTestApp(t)
	ownerID := uuid.NewString()

	fromID := createAccount(t, app, ownerID, "Checking", 250_000)
	toID := createAccount(t, app, ownerID, "Savings", 500_000)

	body, _ := json.Marshal(fiber.Map{
		"from_account_id": fromID,
		"to_account_id":   toID,
		"amount":          10_000,
		"memo":            "rent split",
	})
	status, resp := doJSON(t, app, fiber.MethodPost, "/api/v1/transfers", ownerID, string(body))
	if status != fiber.StatusCreated {
		t.Fatalf("transfer: status %d (%v)", status, resp)
	}
	if resp["transfer_id"] == "" {
		t.Fatal("transfer: missing transfer_id")
	}

	balances := accountBalances(t, app, ownerID)
	if balances[fromID] != 240_000 {
		t.Fatalf("source balance = %v, want 240000", balances[fromID])
	}
	if balances[toID] != 510_000 {
		t.Fatalf("destination balance = %v, want 510000", balances[toID])
	}

	status, resp = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+fromID+"/transactions", ownerID, "")
	if status != fiber.StatusOK {
		t.Fatalf("transactions: status %d (%v)", status, resp)
	}
	records, _ := resp["transactions"].([]any)
	if len(records) != 1 {
		t.Fatalf("expected 1 transaction on source account, got %d", len(records))
	}
	rec := records[0].(map[string]any)
	if rec["kind"] != "transfer_out" {
		t.Fatalf("record kind = %v, want transfer_out", rec["kind"])
	}
	if rec["amount"].(float64) != -10_000 {
		t.Fatalf("record amount = %v, want -10000", rec["amount"])
	}
}

func TestTransferInsufficientFundsEndToEnd(t *testing.T) {
	app := newTestApp(t)
	ownerID := uuid.NewString()

	fromID := createAccount(t, app, ownerID, "Checking", 250_000)
	toID := createAccount(t, app, ownerID, "Savings", 0)

	body, _ := json.Marshal(fiber.Map{
		"from_account_id": fromID,
		"to_account_id":   toID,
		"amount":          999_999_999,
	})
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/transfers", ownerID, string(body))
	if status != fiber.StatusBadRequest {
		t.Fatalf("overdrawn transfer: status %d, want %d", status, fiber.StatusBadRequest)
	}

	balances := accountBalances(t, app, ownerID)
	if balances[fromID] != 250_000 {
		t.Fatalf("source balance = %v, want 250000 after failed transfer", balances[fromID])
	}
	if balances[toID] != 0 {
		t.Fatalf("destination balance = %v, want 0 after failed transfer", balances[toID])
	}
}

func TestTradeEndToEnd(t *testing.T) {
	app := newTestApp(t)
	ownerID := uuid.NewString()

	body, _ := json.Marshal(fiber.Map{"currency": "USD", "amount": "10000"})
	status, resp := doJSON(t, app, fiber.MethodPost, "/api/v1/wallet/deposit", ownerID, string(body))
	if status != fiber.StatusCreated {
		t.Fatalf("deposit: status %d (%v)", status, resp)
	}

	body, _ = json.Marshal(fiber.Map{"side": "buy", "symbol": "BTC-USD", "amount": "0.1"})
	status, resp = doJSON(t, app, fiber.MethodPost, "/api/v1/trades", ownerID, string(body))
	if status != fiber.StatusCreated {
		t.Fatalf("trade: status %d (%v)", status, resp)
	}
	balances, _ := resp["balances"].(map[string]any)
	if balances["USD"] != "3500" {
		t.Fatalf("USD balance = %v, want 3500", balances["USD"])
	}
	if balances["BTC"] != "0.1" {
		t.Fatalf("BTC balance = %v, want 0.1", balances["BTC"])
	}

	status, resp = doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", ownerID, "")
	if status != fiber.StatusOK {
		t.Fatalf("wallet: status %d (%v)", status, resp)
	}
	walletBalances, _ := resp["balances"].(map[string]any)
	if walletBalances["USD"] != "3500" || walletBalances["BTC"] != "0.1" {
		t.Fatalf("wallet balances = %v, want USD 3500 and BTC 0.1", walletBalances)
	}

	status, resp = doJSON(t, app, fiber.MethodGet, "/api/v1/trades", ownerID, "")
	if status != fiber.StatusOK {
		t.Fatalf("trades: status %d (%v)", status, resp)
	}
	trades, _ := resp["trades"].([]any)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade record, got %d", len(trades))
	}
	trade := trades[0].(map[string]any)
	if trade["side"] != "buy" || trade["symbol"] != "BTC-USD" || trade["price"] != "65000" {
		t.Fatalf("unexpected trade record: %v", trade)
	}
}

func TestUnknownSymbolEndToEnd(t *testing.T) {
	app := newTestApp(t)
	ownerID := uuid.NewString()

	body, _ := json.Marshal(fiber.Map{"currency": "USD", "amount": "100"})
	if status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/wallet/deposit", ownerID, string(body)); status != fiber.StatusCreated {
		t.Fatalf("deposit failed with status %d", status)
	}

	body, _ = json.Marshal(fiber.Map{"side": "buy", "symbol": "DOGE-USD", "amount": "1"})
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/trades", ownerID, string(body))
	if status != fiber.StatusBadRequest {
		t.Fatalf("unknown symbol trade: status %d, want %d", status, fiber.StatusBadRequest)
	}
}
