// internal/transport/hyperliquid/client.go
package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/backoff"
	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/common/safe"
	"github.com/YaganovValera/tradeflow/internal/model"
)

var tracer = otel.Tracer("tradeflow/hyperliquid")

type subscribeRequest struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

// Client держит одно WebSocket-соединение с Hyperliquid, подписывается на
// сделки по всем монетам из Config и переподключается с экспоненциальной
// задержкой. Наблюдатели получают сделки и смены состояния.
//
// Колбэки вызываются из горутины чтения по порядку прихода сообщений.
// Вызывать Start/Stop из колбэка нельзя: Stop ждёт завершения этой горутины.
type Client struct {
	cfg    Config
	log    *logger.Logger
	dialer *websocket.Dialer
	now    func() time.Time

	// lifeMu сериализует Start и Stop: новый цикл не стартует, пока
	// предыдущий не вышел.
	lifeMu sync.Mutex

	mu         sync.Mutex
	onTrade    []func(model.Trade)
	onStatus   []func(State)
	state      State
	background bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New создаёт Client. Логгер именуется как "hyperliquid-ws".
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// проверка политики переподключения до первого запуска
	if _, err := backoff.NewExponential(cfg.Reconnect); err != nil {
		return nil, fmt.Errorf("hyperliquid: reconnect: %w", err)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return &Client{
		cfg:        cfg,
		log:        log.Named("hyperliquid-ws"),
		dialer:     dialer,
		now:        time.Now,
		state:      StateDisconnected,
		background: cfg.Background,
	}, nil
}

// OnTrade регистрирует наблюдателя сделок.
func (c *Client) OnTrade(fn func(model.Trade)) {
	c.mu.Lock()
	c.onTrade = append(c.onTrade, fn)
	c.mu.Unlock()
}

// OnStatus регистрирует наблюдателя состояния соединения.
func (c *Client) OnStatus(fn func(State)) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

// State возвращает последнее опубликованное состояние.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Coins возвращает список монет подписки.
func (c *Client) Coins() []string {
	return append([]string(nil), c.cfg.Coins...)
}

// SetBackground включает/выключает фоновый режим: задержка переподключения
// умножается на BackgroundMultiplier. Действует со следующей задержки.
func (c *Client) SetBackground(on bool) {
	c.mu.Lock()
	c.background = on
	c.mu.Unlock()
}

// Start запускает цикл подключения. Повторный вызов при работающем цикле
// ничего не делает. Цикл живёт до Stop или отмены ctx.
func (c *Client) Start(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.log.Info("ws: starting", zap.Strings("coins", c.cfg.Coins), zap.String("url", c.cfg.WSURL))
	go c.run(runCtx, done)
}

// Stop отменяет ожидающее переподключение, закрывает соединение и ждёт
// выхода цикла. Всегда завершается состоянием Disconnected.
func (c *Client) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		c.log.Info("ws: stopped")
	}

	c.mu.Lock()
	c.running = false
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

// Done закрывается, когда цикл подключения завершился (nil до Start).
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// -----------------------------------------------------------------------------
// Run loop
// -----------------------------------------------------------------------------

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer func() {
		// выход по отмене внешнего ctx без Stop: разрешаем повторный Start
		c.mu.Lock()
		if c.done == done {
			c.running = false
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		c.setState(StateDisconnected)
		close(done)
	}()

	bo, _ := backoff.NewExponential(c.cfg.Reconnect)
	attempts := 0

	c.setState(StateConnecting)
	for {
		err := c.session(ctx, bo, &attempts)
		if ctx.Err() != nil {
			return
		}
		if isCleanClose(err) {
			c.log.Info("ws: closed by server", zap.Error(err))
		} else {
			incError(errorType(err))
			c.log.Warn("ws: connection error", zap.Error(err))
			c.setState(StateError)
		}
		c.setState(StateConnecting)

		delay := c.nextDelay(bo)
		attempts++
		backoff.ObserveDelay(delay)
		c.log.Info("ws: reconnect scheduled",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// nextDelay: min(initial × multiplier^n, max), в фоне × BackgroundMultiplier.
func (c *Client) nextDelay(bo cbackoff.BackOff) time.Duration {
	delay := bo.NextBackOff()
	c.mu.Lock()
	bg := c.background
	c.mu.Unlock()
	if bg {
		delay = time.Duration(float64(delay) * c.cfg.BackgroundMultiplier)
	}
	return delay
}

// session выполняет одно подключение: dial, подписка, чтение до ошибки.
func (c *Client) session(ctx context.Context, bo cbackoff.BackOff, attempts *int) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.WSURL, nil)
	cancelDial()
	if err != nil {
		incConnect("error")
		return fmt.Errorf("hyperliquid: dial: %w", err)
	}
	incConnect("ok")

	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	// закрытие сокета прерывает ReadMessage при Stop
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	bo.Reset()
	*attempts = 0
	c.setState(StateConnected)
	c.log.Info("ws: connected", zap.String("url", c.cfg.WSURL))

	var writeMu sync.Mutex
	write := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		return conn.WriteJSON(v)
	}

	for _, coin := range c.cfg.Coins {
		req := subscribeRequest{
			Method:       "subscribe",
			Subscription: subscription{Type: TradesChannel, Coin: coin},
		}
		if err := write(req); err != nil {
			return fmt.Errorf("hyperliquid: subscribe %s: %w", coin, err)
		}
	}
	c.log.Debug("ws: subscribed", zap.Strings("coins", c.cfg.Coins))

	// application-level ping: биржа закрывает молчащие соединения
	go func() {
		ticker := time.NewTicker(c.cfg.ReadTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				if err := write(map[string]string{"method": "ping"}); err != nil {
					c.log.Warn("ws: ping failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(ctx, data)
	}
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	_, span := tracer.Start(ctx, "Hyperliquid.HandleMessage")
	defer span.End()

	results, err := ParseMessage(data, c.now())
	if err != nil {
		if errors.Is(err, ErrNotTradeChannel) {
			incMessage("other")
			return
		}
		incMessage("invalid")
		incError("decode")
		c.log.Warn("ws: malformed message dropped", zap.Error(err), zap.Int("bytes", len(data)))
		span.RecordError(err)
		return
	}
	incMessage("trades")
	span.SetAttributes(attribute.Int("records", len(results)))

	c.mu.Lock()
	observers := make([]func(model.Trade), len(c.onTrade))
	copy(observers, c.onTrade)
	c.mu.Unlock()

	for _, r := range results {
		if r.Err != nil {
			incDrop()
			c.log.Warn("ws: malformed trade dropped", zap.Error(r.Err))
			continue
		}
		for _, fn := range observers {
			tr := r.Trade
			_ = safe.Call(c.log, "on_trade", func() { fn(tr) })
		}
	}
}

// setState публикует переход; повтор того же состояния не рассылается.
func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	observers := make([]func(State), len(c.onStatus))
	copy(observers, c.onStatus)
	c.mu.Unlock()

	setStateGauge(s)
	c.log.Debug("ws: state", zap.Stringer("from", prev), zap.Stringer("to", s))
	for _, fn := range observers {
		_ = safe.Call(c.log, "on_status", func() { fn(s) })
	}
}

// isCleanClose — сервер закрыл соединение close-фреймом. Обрыв без
// фрейма (1006) считается ошибкой транспорта.
func isCleanClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure
}

func errorType(err error) string {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		return "abnormal_close"
	case isTimeout(err):
		return "timeout"
	default:
		return "transport"
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
