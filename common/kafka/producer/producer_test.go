// common/kafka/producer/producer_test.go
package producer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/tradeflow/common/backoff"
	"github.com/YaganovValera/tradeflow/common/logger"
)

// Проверяем applyDefaults и validate.
func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    Config
		wantErr  bool
		wantAcks string
		wantComp string
	}{
		{"empty", Config{}, true, "all", "none"},
		{"noBrokers", Config{Compression: "gzip"}, true, "all", "gzip"},
		{"ok", Config{Brokers: []string{"b1"}}, false, "all", "none"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.applyDefaults()
			if got := cfg.RequiredAcks; got != c.wantAcks {
				t.Errorf("RequiredAcks = %q; want %q", got, c.wantAcks)
			}
			if got := cfg.Compression; got != c.wantComp {
				t.Errorf("Compression = %q; want %q", got, c.wantComp)
			}
			if cfg.Backoff.MaxElapsedTime <= 0 {
				t.Errorf("Backoff.MaxElapsedTime must be bounded, got %v", cfg.Backoff.MaxElapsedTime)
			}
			if cfg.Backoff.RandomizationFactor != backoff.DefaultJitter {
				t.Errorf("Backoff.RandomizationFactor = %v; want %v", cfg.Backoff.RandomizationFactor, backoff.DefaultJitter)
			}
			err := cfg.validate()
			if (err != nil) != c.wantErr {
				t.Errorf("validate() error = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

func TestBuildSaramaConfig(t *testing.T) {
	cases := []struct {
		acks, comp  string
		wantErr     bool
		wantAcks    sarama.RequiredAcks
		wantIdempot bool
	}{
		{"all", "none", false, sarama.WaitForAll, true},
		{"ALL", "gzip", false, sarama.WaitForAll, true},
		{"leader", "snappy", false, sarama.WaitForLocal, false},
		{"none", "lz4", false, sarama.NoResponse, false},
		{"all", "zstd", false, sarama.WaitForAll, true},
		{"invalid", "none", true, 0, false},
		{"all", "bogus", true, 0, false},
	}
	for _, c := range cases {
		t.Run(c.acks+"/"+c.comp, func(t *testing.T) {
			sc, err := buildSaramaConfig(Config{RequiredAcks: c.acks, Compression: c.comp, Brokers: []string{"x"}})
			if c.wantErr {
				if err == nil {
					t.Errorf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sc.Producer.RequiredAcks != c.wantAcks {
				t.Errorf("RequiredAcks = %v; want %v", sc.Producer.RequiredAcks, c.wantAcks)
			}
			if sc.Producer.Timeout != 5*time.Second {
				t.Errorf("Producer.Timeout = %v; want default 5s", sc.Producer.Timeout)
			}
			if sc.Producer.Idempotent != c.wantIdempot {
				t.Errorf("Idempotent = %v; want %v", sc.Producer.Idempotent, c.wantIdempot)
			}
			if err := sc.Validate(); err != nil {
				t.Errorf("sarama config invalid: %v", err)
			}
		})
	}
}

func newTestProducer(t *testing.T, bo backoff.Config) (*kafkaProducer, *mocks.SyncProducer) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	return &kafkaProducer{
		prod:    mockProd,
		log:     logger.NewNop(),
		backoff: bo,
		now:     func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}, mockProd
}

// Проверяем Publish: сначала возвращаем ошибку, потом — успех.
func TestPublish_RetryAndSuccess(t *testing.T) {
	kp, mockProd := newTestProducer(t, backoff.Config{
		InitialInterval: time.Millisecond, Multiplier: 1,
		MaxInterval: time.Millisecond, MaxElapsedTime: time.Second,
	})
	defer mockProd.Close()

	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mockProd.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "value" {
			return fmt.Errorf("unexpected value %q", val)
		}
		return nil
	})

	if err := kp.Publish(context.Background(), "topic", []byte("key"), []byte("value")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestPublish_GivesUp(t *testing.T) {
	kp, mockProd := newTestProducer(t, backoff.Config{
		InitialInterval: 100 * time.Millisecond, Multiplier: 1,
		MaxInterval: 100 * time.Millisecond, MaxElapsedTime: 10 * time.Millisecond,
	})
	defer mockProd.Close()

	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := kp.Publish(context.Background(), "topic", nil, []byte("value")); err == nil {
		t.Fatal("expected error after retries")
	}
}

func TestPing_WithoutClient(t *testing.T) {
	kp, mockProd := newTestProducer(t, backoff.Config{})
	defer mockProd.Close()

	if err := kp.Ping(context.Background()); err == nil {
		t.Fatal("expected error without client")
	}
}

// Проверяем, что New отрабатывает ошибку валидации до Sarama.
func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty Config, got nil")
	}
	cfg := Config{Brokers: []string{"dummy"}, RequiredAcks: "invalid"}
	if _, err := New(context.Background(), cfg, logger.NewNop()); err == nil {
		t.Fatal("expected error for invalid RequiredAcks, got nil")
	}
}
