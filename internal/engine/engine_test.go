package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"solana-copy-trader/internal/holdings"
	"solana-copy-trader/internal/jupiter"
	"solana-copy-trader/internal/oracle"
	"solana-copy-trader/internal/wallet"
)

const (
	testMint   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testTarget = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

type fakeGateway struct {
	mu sync.Mutex

	quoteErr     error
	priceImpact  string
	outAmount    string
	feeErr       error
	buildErr     error
	submitErr    error
	submitErrs   []error // per-call, consumed before submitErr

	quoteCalls  int
	feeCalls    int
	buildCalls  int
	submitCalls int
	ensureCalls int

	slippages []int
	amounts   []uint64
	fees      []uint64
}

func (g *fakeGateway) GetQuote(_ context.Context, inputMint, outputMint string, amountBaseUnits uint64, slippageBps int) (*jupiter.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quoteCalls++
	g.slippages = append(g.slippages, slippageBps)
	g.amounts = append(g.amounts, amountBaseUnits)
	if g.quoteErr != nil {
		return nil, g.quoteErr
	}
	impact := g.priceImpact
	if impact == "" {
		impact = "0.1"
	}
	out := g.outAmount
	if out == "" {
		out = "1000000000"
	}
	return &jupiter.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       fmt.Sprintf("%d", amountBaseUnits),
		OutAmount:      out,
		PriceImpactPct: impact,
		SlippageBps:    slippageBps,
	}, nil
}

func (g *fakeGateway) GetPriorityFee(_ context.Context) (*jupiter.PriorityFee, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feeCalls++
	if g.feeErr != nil {
		return nil, g.feeErr
	}
	return &jupiter.PriorityFee{Low: 1000, Medium: 5000, High: 10000}, nil
}

func (g *fakeGateway) BuildSwap(_ context.Context, _ *jupiter.Quote, _ string, feeMicroLamports uint64, _ bool) (*jupiter.SwapTransactions, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buildCalls++
	g.fees = append(g.fees, feeMicroLamports)
	if g.buildErr != nil {
		return nil, g.buildErr
	}
	return &jupiter.SwapTransactions{Version: "versioned", Transactions: []string{"payload"}}, nil
}

func (g *fakeGateway) SignSubmitAll(_ context.Context, _ *wallet.Keypair, _ *jupiter.SwapTransactions) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if len(g.submitErrs) > 0 {
		err := g.submitErrs[0]
		g.submitErrs = g.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if g.submitErr != nil {
		return nil, g.submitErr
	}
	return []string{fmt.Sprintf("Sig%d", g.submitCalls)}, nil
}

func (g *fakeGateway) EnsureAssociatedAccount(_ context.Context, _ *wallet.Keypair, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureCalls++
	return nil
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quoteCalls + g.feeCalls + g.buildCalls + g.submitCalls + g.ensureCalls
}

type fakeOracle struct {
	mu       sync.Mutex
	balances map[string][]oracle.Balance
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{balances: make(map[string][]oracle.Balance)}
}

// set queues balances for (owner, mint); the last one repeats forever.
func (o *fakeOracle) set(owner, mint string, balances ...oracle.Balance) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[owner+"|"+mint] = balances
}

func (o *fakeOracle) TokenBalance(_ context.Context, owner, mint string) (*oracle.Balance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	queue, ok := o.balances[owner+"|"+mint]
	if !ok || len(queue) == 0 {
		return nil, errors.New("no balance configured")
	}
	b := queue[0]
	if len(queue) > 1 {
		o.balances[owner+"|"+mint] = queue[1:]
	}
	return &b, nil
}

func (o *fakeOracle) Invalidate(_, _ string) {}

func testKeypair(t *testing.T) *wallet.Keypair {
	t.Helper()
	seed := base58.Encode(bytes.Repeat([]byte{7}, 32))
	kp, err := wallet.KeypairFromBase58(seed)
	if err != nil {
		t.Fatalf("KeypairFromBase58: %v", err)
	}
	return kp
}

func newTestEngine(t *testing.T, gw *fakeGateway, ora *fakeOracle, cfg Config) (*Engine, holdings.Store) {
	t.Helper()
	dir := t.TempDir()
	store := holdings.NewFileStore(filepath.Join(dir, "holdings.json"), discardLogger())
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	pending := NewPendingQueue(filepath.Join(dir, "pending.json"), discardLogger())
	e, err := New(Options{
		Gateway:  gw,
		Holdings: store,
		Oracle:   ora,
		Keypair:  testKeypair(t),
		Pending:  pending,
		Config:   cfg,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e, store
}

func discardLogger() *log.Logger {
	return log.New(bytes.NewBuffer(nil), "", 0)
}

func TestExecuteSwapBuyDisabledMakesNoNetworkCalls(t *testing.T) {
	gw := &fakeGateway{}
	cfg := DefaultConfig()
	cfg.EnableBuy = false
	e, _ := newTestEngine(t, gw, newFakeOracle(), cfg)

	cases := []struct {
		amount float64
		target string
	}{
		{1.5, testTarget},
		{0.001, ""},
		{1000000, testTarget},
	}
	for _, tc := range cases {
		if res := e.ExecuteSwap(context.Background(), wallet.WSOLMint, testMint, tc.amount, tc.target, false); res != nil {
			t.Fatalf("expected nil result with buying disabled, got %+v", res)
		}
	}
	if n := gw.totalCalls(); n != 0 {
		t.Fatalf("expected zero gateway calls, got %d", n)
	}
}

func TestExecuteSwapSellDisabled(t *testing.T) {
	gw := &fakeGateway{}
	cfg := DefaultConfig()
	cfg.EnableSell = false
	e, _ := newTestEngine(t, gw, newFakeOracle(), cfg)

	if res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 100, testTarget, true); res != nil {
		t.Fatalf("expected nil result with selling disabled, got %+v", res)
	}
	if n := gw.totalCalls(); n != 0 {
		t.Fatalf("expected zero gateway calls, got %d", n)
	}
}

func TestSellWithoutHoldingSkipped(t *testing.T) {
	gw := &fakeGateway{}
	e, _ := newTestEngine(t, gw, newFakeOracle(), DefaultConfig())

	if res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 100, "", true); res != nil {
		t.Fatalf("expected nil result without a tracked holding, got %+v", res)
	}
	if n := gw.totalCalls(); n != 0 {
		t.Fatalf("expected zero gateway calls, got %d", n)
	}
}

func TestSlippageEscalationMonotonicAndCapped(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("node unavailable")}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 500000, Decimals: 6})
	// Follower balance for the emergency sell path.
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)
	kp := testKeypair(t)
	ora.set(kp.PublicKey(), testMint, oracle.Balance{Amount: 50000, Decimals: 6})

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 500000, testTarget, true)
	e.Wait()
	if res != nil {
		t.Fatalf("expected nil result after exhausted retries, got %+v", res)
	}

	cfg := DefaultConfig()
	normal := gw.slippages[:cfg.MaxRetries+1]
	prev := -1
	for i, s := range normal {
		if s < prev {
			t.Fatalf("slippage decreased at attempt %d: %v", i, normal)
		}
		if s > cfg.MaxSlippageBps {
			t.Fatalf("slippage %d exceeds cap %d", s, cfg.MaxSlippageBps)
		}
		prev = s
	}
	if normal[0] != cfg.BaseSlippageBps {
		t.Fatalf("first attempt slippage = %d, want %d", normal[0], cfg.BaseSlippageBps)
	}
}

func TestRetryCeilingAndSingleEmergencySell(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("node unavailable")}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 500000, Decimals: 6})
	cfg := DefaultConfig()
	e, store := newTestEngine(t, gw, ora, cfg)
	seedHolding(t, store, testMint, 50000, 6, 1000000)
	kp := testKeypair(t)
	ora.set(kp.PublicKey(), testMint, oracle.Balance{Amount: 50000, Decimals: 6})

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 500000, testTarget, true)
	e.Wait()
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}

	// MaxRetries+1 normal attempts plus exactly one emergency attempt.
	emergency := 0
	for _, s := range gw.slippages {
		if s == cfg.EmergencySlippageBps {
			emergency++
		}
	}
	if emergency != 1 {
		t.Fatalf("expected exactly 1 emergency quote, got %d (slippages %v)", emergency, gw.slippages)
	}
	if normal := len(gw.slippages) - emergency; normal != cfg.MaxRetries+1 {
		t.Fatalf("expected %d normal attempts, got %d", cfg.MaxRetries+1, normal)
	}

	// The emergency submit also failed, so the sell lands in the queue.
	if n := e.pending.Len(); n != 1 {
		t.Fatalf("expected 1 pending sell, got %d", n)
	}
}

func TestBuyExhaustionDoesNotTriggerEmergencySell(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("node unavailable")}
	ora := newFakeOracle()
	cfg := DefaultConfig()
	e, _ := newTestEngine(t, gw, ora, cfg)
	kp := testKeypair(t)
	ora.set(kp.PublicKey(), testMint, oracle.Balance{Amount: 0, Decimals: 6})

	res := e.ExecuteSwap(context.Background(), wallet.WSOLMint, testMint, 0.5, testTarget, false)
	e.Wait()
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
	if got := gw.submitCalls; got != cfg.MaxRetries+1 {
		t.Fatalf("expected %d submit attempts, got %d", cfg.MaxRetries+1, got)
	}
	for _, s := range gw.slippages {
		if s == cfg.EmergencySlippageBps {
			t.Fatal("buy failure must not trigger an emergency sell")
		}
	}
	if n := e.pending.Len(); n != 0 {
		t.Fatalf("expected empty pending queue, got %d", n)
	}
}

func TestPriceImpactCeilingAbortsImmediately(t *testing.T) {
	gw := &fakeGateway{priceImpact: "150"}
	ora := newFakeOracle()
	e, _ := newTestEngine(t, gw, ora, DefaultConfig())
	kp := testKeypair(t)
	ora.set(kp.PublicKey(), testMint, oracle.Balance{Amount: 0, Decimals: 6})

	res := e.ExecuteSwap(context.Background(), wallet.WSOLMint, testMint, 0.5, testTarget, false)
	e.Wait()
	if res != nil {
		t.Fatalf("expected nil result on excessive price impact, got %+v", res)
	}
	if gw.quoteCalls != 1 {
		t.Fatalf("expected exactly 1 quote call, got %d", gw.quoteCalls)
	}
	if gw.submitCalls != 0 {
		t.Fatalf("expected no submit attempts, got %d", gw.submitCalls)
	}
}

func TestProportionalResizeScenario(t *testing.T) {
	// Counterparty sells 1,000,000 down to 500,000 (50%); the follower
	// holds 50,000 and should sell 25,000.
	gw := &fakeGateway{}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 500000, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 500000, testTarget, true)
	if res == nil {
		t.Fatal("expected successful sell")
	}
	if res.AmountIn != 25000 {
		t.Fatalf("follower sell amount = %f, want 25000", res.AmountIn)
	}
	want := holdings.ToBaseUnits(25000, 6)
	if gw.amounts[0] != want {
		t.Fatalf("quoted base units = %d, want %d", gw.amounts[0], want)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
}

func TestSellBelowMinimumPercentageSkipped(t *testing.T) {
	// A 1% counterparty sell is under the 5% noise floor.
	gw := &fakeGateway{}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 990000, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 10000, testTarget, true)
	if res != nil {
		t.Fatalf("expected nil result for noise-level sell, got %+v", res)
	}
	if gw.quoteCalls != 0 {
		t.Fatalf("expected no quote calls, got %d", gw.quoteCalls)
	}
}

func TestFullSellClampedToHolding(t *testing.T) {
	gw := &fakeGateway{}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 0, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 1000000, testTarget, true)
	if res == nil {
		t.Fatal("expected successful full sell")
	}
	if res.AmountIn != 50000 {
		t.Fatalf("full sell amount = %f, want the entire holding 50000", res.AmountIn)
	}
}

func TestFullSellRemovesHolding(t *testing.T) {
	gw := &fakeGateway{}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 0, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 1000000, testTarget, true)
	if res == nil {
		t.Fatal("expected successful full sell")
	}

	h, err := store.Get(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h != nil {
		t.Fatalf("holding still tracked after confirmed full sell: amount=%f", h.Amount)
	}

	// The liquidated position must fail the ownership guard from here on.
	calls := gw.totalCalls()
	if res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 1000, testTarget, true); res != nil {
		t.Fatalf("expected nil result after liquidation, got %+v", res)
	}
	if n := gw.totalCalls(); n != calls {
		t.Fatalf("expected no gateway calls after liquidation, got %d more", n-calls)
	}
}

func TestPartialSellReducesHolding(t *testing.T) {
	gw := &fakeGateway{}
	ora := newFakeOracle()
	// Counterparty sold 500000 of 1000000, leaving 500000.
	ora.set(testTarget, testMint, oracle.Balance{Amount: 500000, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 500000, testTarget, true)
	if res == nil {
		t.Fatal("expected successful partial sell")
	}
	if res.AmountIn != 25000 {
		t.Fatalf("sell amount = %f, want proportional 25000", res.AmountIn)
	}

	h, err := store.Get(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h == nil {
		t.Fatal("expected remaining holding after partial sell")
	}
	if h.Amount != 25000 {
		t.Fatalf("remaining holding = %f, want 25000", h.Amount)
	}
}

func TestEmergencySellSuccessRemovesHolding(t *testing.T) {
	cfg := DefaultConfig()
	// Every normal attempt fails; the emergency submit succeeds.
	errs := make([]error, cfg.MaxRetries+1)
	for i := range errs {
		errs[i] = errors.New("node unavailable")
	}
	gw := &fakeGateway{submitErrs: errs}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 0, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, cfg)
	seedHolding(t, store, testMint, 50000, 6, 1000000)
	kp := testKeypair(t)
	ora.set(kp.PublicKey(), testMint, oracle.Balance{Amount: 50000, Decimals: 6})

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 1000000, testTarget, true)
	e.Wait()
	if res != nil {
		t.Fatalf("expected nil result after exhausted retries, got %+v", res)
	}
	if n := e.pending.Len(); n != 0 {
		t.Fatalf("expected empty pending queue after emergency success, got %d", n)
	}

	h, err := store.Get(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h != nil {
		t.Fatalf("holding still tracked after emergency liquidation: amount=%f", h.Amount)
	}
}

func TestBuySuccessRegistersActualReceivedAmount(t *testing.T) {
	gw := &fakeGateway{outAmount: "123000000"}
	ora := newFakeOracle()
	kp := testKeypair(t)
	// Before snapshot 0, after confirmation 120 (slippage ate some).
	ora.set(kp.PublicKey(), testMint,
		oracle.Balance{Amount: 0, Decimals: 6},
		oracle.Balance{Amount: 120, Decimals: 6},
	)
	ora.set(testTarget, testMint, oracle.Balance{Amount: 1000000, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())

	res := e.ExecuteSwap(context.Background(), wallet.WSOLMint, testMint, 0.5, testTarget, false)
	if res == nil {
		t.Fatal("expected successful buy")
	}
	if res.AmountOut != 120 {
		t.Fatalf("AmountOut = %f, want actual received 120", res.AmountOut)
	}

	h, err := store.Get(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h == nil {
		t.Fatal("expected holding registered after confirmed buy")
	}
	if h.Amount != 120 {
		t.Fatalf("holding amount = %f, want 120", h.Amount)
	}
	if h.TargetAmount != 1000000 {
		t.Fatalf("target baseline = %f, want 1000000", h.TargetAmount)
	}
}

func TestSlippageErrorRetriesWithoutBackoff(t *testing.T) {
	gw := &fakeGateway{submitErrs: []error{
		errors.New("Slippage tolerance exceeded"),
		errors.New("custom program error: 0x1771"),
		nil,
	}}
	ora := newFakeOracle()
	ora.set(testTarget, testMint, oracle.Balance{Amount: 500000, Decimals: 6})
	e, store := newTestEngine(t, gw, ora, DefaultConfig())
	seedHolding(t, store, testMint, 50000, 6, 1000000)

	slept := 0
	e.sleep = func(context.Context, time.Duration) error {
		slept++
		return nil
	}

	res := e.ExecuteSwap(context.Background(), testMint, wallet.WSOLMint, 500000, testTarget, true)
	if res == nil {
		t.Fatal("expected success on the third attempt")
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if slept != 0 {
		t.Fatalf("slippage failures must skip the backoff, slept %d times", slept)
	}
}

func TestDustTradeRejected(t *testing.T) {
	gw := &fakeGateway{}
	ora := newFakeOracle()
	e, _ := newTestEngine(t, gw, ora, DefaultConfig())

	// 0.0001 SOL is under the 0.001 floor.
	res := e.ExecuteSwap(context.Background(), wallet.WSOLMint, testMint, 0.0001, "", false)
	if res != nil {
		t.Fatalf("expected nil result for dust trade, got %+v", res)
	}
	if gw.submitCalls != 0 {
		t.Fatalf("expected no submit attempts, got %d", gw.submitCalls)
	}
}

func seedHolding(t *testing.T, store holdings.Store, mint string, amount float64, decimals int, target float64) {
	t.Helper()
	base := holdings.ToBaseUnits(amount, decimals)
	if err := store.AddHolding(context.Background(), mint, base, decimals, target); err != nil {
		t.Fatalf("AddHolding: %v", err)
	}
}
