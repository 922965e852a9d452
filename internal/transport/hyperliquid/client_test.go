package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/tradeflow/common/backoff"
	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/internal/model"
)

// Проверяем applyDefaults и validate на разных комбинациях.
func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name    string
		input   Config
		wantErr bool
	}{
		{"empty", Config{}, true},
		{"noCoins", Config{WSURL: "wss://api.hyperliquid.xyz/ws"}, true},
		{"badScheme", Config{WSURL: "https://api.hyperliquid.xyz/ws", Coins: []string{"BTC"}}, true},
		{"blankCoin", Config{WSURL: "wss://x/ws", Coins: []string{"BTC", " "}}, true},
		{"lowBackground", Config{WSURL: "wss://x/ws", Coins: []string{"BTC"}, BackgroundMultiplier: 0.5}, true},
		{"ok", Config{WSURL: "wss://x/ws", Coins: []string{"BTC"}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.applyDefaults()
			err := cfg.validate()
			if (err != nil) != c.wantErr {
				t.Errorf("validate() error = %v; wantErr %v", err, c.wantErr)
			}
		})
	}

	cfg := Config{Reconnect: backoff.Config{MaxElapsedTime: time.Second}}
	cfg.applyDefaults()
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.InitialInterval)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.Equal(t, 8*time.Second, cfg.Reconnect.MaxInterval)
	assert.Zero(t, cfg.Reconnect.MaxElapsedTime)
	assert.Equal(t, 3.0, cfg.BackgroundMultiplier)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
}

func TestNextDelay_DefaultSequenceAndBackground(t *testing.T) {
	c, err := New(Config{WSURL: "wss://x/ws", Coins: []string{"BTC"}}, logger.NewNop())
	require.NoError(t, err)

	bo, err := backoff.NewExponential(c.cfg.Reconnect)
	require.NoError(t, err)

	want := []time.Duration{500, 1000, 2000, 4000, 8000, 8000}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, c.nextDelay(bo), "attempt %d", i)
	}

	bo.Reset()
	c.SetBackground(true)
	assert.Equal(t, 1500*time.Millisecond, c.nextDelay(bo))
	assert.Equal(t, 3000*time.Millisecond, c.nextDelay(bo))
}

// -----------------------------------------------------------------------------
// Интеграционные тесты с локальным WebSocket-сервером
// -----------------------------------------------------------------------------

type fakeExchange struct {
	srv     *httptest.Server
	conns   atomic.Int32
	mu      sync.Mutex
	subs    []subscribeRequest
	onConn  func(n int32, conn *websocket.Conn)
	coinCnt int
}

func newFakeExchange(t *testing.T, coins int, onConn func(n int32, conn *websocket.Conn)) *fakeExchange {
	fx := &fakeExchange{onConn: onConn, coinCnt: coins}
	upg := websocket.Upgrader{}
	fx.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		n := fx.conns.Add(1)

		for i := 0; i < fx.coinCnt; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req subscribeRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("bad subscribe %s: %v", msg, err)
				return
			}
			fx.mu.Lock()
			fx.subs = append(fx.subs, req)
			fx.mu.Unlock()
		}
		fx.onConn(n, conn)
	}))
	return fx
}

func (fx *fakeExchange) url() string { return "ws" + strings.TrimPrefix(fx.srv.URL, "http") }

func (fx *fakeExchange) subscriptions() []subscribeRequest {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]subscribeRequest(nil), fx.subs...)
}

// holdOpen держит соединение, пока клиент его не закроет.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	states []State
	trades []model.Trade
}

func (r *recorder) status(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) trade(tr model.Trade) {
	r.mu.Lock()
	r.trades = append(r.trades, tr)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]State, []model.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), append([]model.Trade(nil), r.trades...)
}

func fastConfig(url string, coins ...string) Config {
	return Config{
		WSURL:        url,
		Coins:        coins,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		Reconnect: backoff.Config{
			InitialInterval: 20 * time.Millisecond,
			Multiplier:      2,
			MaxInterval:     40 * time.Millisecond,
		},
	}
}

func TestClient_SubscribeTradesAndReconnectOnClose(t *testing.T) {
	fx := newFakeExchange(t, 2, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"subscriptionResponse","data":{}}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"trades","data":[
				{"coin":"ETH","px":"45000","sz":"0.1","side":"B","time":1700000000000},
				{"coin":"ETH","px":"oops","sz":"1","side":"B","time":1700000000001},
				{"coin":"BTC","px":"90000","sz":"1","side":"S","time":1700000000002}
			]}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"trades","data":`))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		}
		holdOpen(conn)
	})
	defer fx.srv.Close()

	c, err := New(fastConfig(fx.url(), "ETH", "BTC"), logger.NewNop())
	require.NoError(t, err)
	rec := &recorder{}
	c.OnStatus(rec.status)
	c.OnTrade(rec.trade)

	c.Start(context.Background())
	c.Start(context.Background()) // повторный Start игнорируется
	defer c.Stop()

	require.Eventually(t, func() bool {
		return fx.conns.Load() >= 2 && c.State() == StateConnected && len(fx.subscriptions()) == 4
	}, 3*time.Second, 10*time.Millisecond)

	states, trades := rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateConnecting, StateConnected}, states)

	require.Len(t, trades, 2)
	assert.Equal(t, "ETH", trades[0].Coin)
	assert.Equal(t, model.SideBuy, trades[0].Side)
	assert.Equal(t, "BTC", trades[1].Coin)
	assert.Equal(t, model.SideSell, trades[1].Side)

	// подписка повторяется целиком после переподключения
	subs := fx.subscriptions()
	require.Len(t, subs, 4)
	for i, want := range []string{"ETH", "BTC", "ETH", "BTC"} {
		assert.Equal(t, "subscribe", subs[i].Method)
		assert.Equal(t, "trades", subs[i].Subscription.Type)
		assert.Equal(t, want, subs[i].Subscription.Coin)
	}
}

func TestClient_StopIsTerminal(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	defer fx.srv.Close()

	c, err := New(fastConfig(fx.url(), "ETH"), logger.NewNop())
	require.NoError(t, err)
	rec := &recorder{}
	c.OnStatus(rec.status)

	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.State() == StateConnected }, 3*time.Second, 10*time.Millisecond)

	c.Stop()
	c.Stop()
	assert.Equal(t, StateDisconnected, c.State())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fx.conns.Load())

	states, _ := rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
}

func TestClient_StopCancelsPendingReconnect(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance"))
	})
	defer fx.srv.Close()

	cfg := fastConfig(fx.url(), "ETH")
	cfg.Reconnect.InitialInterval = 300 * time.Millisecond
	cfg.Reconnect.MaxInterval = 300 * time.Millisecond
	c, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	rec := &recorder{}
	c.OnStatus(rec.status)

	c.Start(context.Background())
	require.Eventually(t, func() bool {
		states, _ := rec.snapshot()
		return len(states) >= 3
	}, 3*time.Second, 5*time.Millisecond)

	c.Stop()
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, int32(1), fx.conns.Load())
	states, _ := rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateConnecting, StateDisconnected}, states)
}

func TestClient_DialErrorEmitsError(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	url := fx.url()
	fx.srv.Close()

	c, err := New(fastConfig(url, "ETH"), logger.NewNop())
	require.NoError(t, err)
	rec := &recorder{}
	c.OnStatus(rec.status)

	c.Start(context.Background())
	require.Eventually(t, func() bool {
		states, _ := rec.snapshot()
		return len(states) >= 3
	}, 3*time.Second, 5*time.Millisecond)
	c.Stop()

	states, _ := rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateError, StateConnecting}, states[:3])
	assert.Equal(t, StateDisconnected, states[len(states)-1])
}

func TestClient_ObserverPanicDoesNotKillLoop(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"channel":"trades","data":{"coin":"ETH","px":"1","sz":"1","side":"B","time":1}}`))
		}
		holdOpen(conn)
	})
	defer fx.srv.Close()

	c, err := New(fastConfig(fx.url(), "ETH"), logger.NewNop())
	require.NoError(t, err)
	var calls atomic.Int32
	c.OnTrade(func(model.Trade) {
		if calls.Add(1) == 1 {
			panic("observer bug")
		}
	})

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_AllObserversReceiveTradesAndStates(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"channel":"trades","data":{"coin":"SOL","px":"150","sz":"2","side":"S","time":1}}`))
		holdOpen(conn)
	})
	defer fx.srv.Close()

	c, err := New(fastConfig(fx.url(), "SOL"), logger.NewNop())
	require.NoError(t, err)
	first, second := &recorder{}, &recorder{}
	c.OnTrade(first.trade)
	c.OnTrade(second.trade)
	c.OnStatus(first.status)
	c.OnStatus(second.status)

	c.Start(context.Background())
	require.Eventually(t, func() bool {
		_, a := first.snapshot()
		_, b := second.snapshot()
		return len(a) == 1 && len(b) == 1
	}, 3*time.Second, 10*time.Millisecond)
	c.Stop()

	for _, r := range []*recorder{first, second} {
		states, trades := r.snapshot()
		assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
		assert.Equal(t, "SOL", trades[0].Coin)
	}
}

func TestClient_RestartAfterStop(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	defer fx.srv.Close()

	c, err := New(fastConfig(fx.url(), "ETH"), logger.NewNop())
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		c.Start(context.Background())
		require.Eventually(t, func() bool { return c.State() == StateConnected }, 3*time.Second, 10*time.Millisecond)
		c.Stop()
		assert.Equal(t, StateDisconnected, c.State())
		want := int32(i)
		require.Eventually(t, func() bool { return fx.conns.Load() == want }, time.Second, 5*time.Millisecond)
	}
}

func TestClient_ConcurrentStartStopEndsDisconnected(t *testing.T) {
	fx := newFakeExchange(t, 1, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	defer fx.srv.Close()

	c, err := New(fastConfig(fx.url(), "ETH"), logger.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); c.Start(context.Background()) }()
		go func() { defer wg.Done(); c.Stop() }()
	}
	wg.Wait()
	c.Stop()

	assert.Nil(t, c.Done())
	assert.Equal(t, StateDisconnected, c.State())

	// после Stop ни один цикл не должен переподключаться
	time.Sleep(50 * time.Millisecond)
	conns := fx.conns.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, conns, fx.conns.Load())
}
