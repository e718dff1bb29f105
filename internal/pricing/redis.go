package pricing

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const priceKeyPrefix = "price:"

// RedisOracle reads prices published to Redis by an external feed under
// price:<SYMBOL> keys. An optional fallback oracle answers for symbols the
// feed has not published yet.
type RedisOracle struct {
	client   *redis.Client
	fallback Oracle
}

// NewRedisOracle constructs a Redis-backed oracle. fallback may be nil.
func NewRedisOracle(client *redis.Client, fallback Oracle) *RedisOracle {
	return &RedisOracle{client: client, fallback: fallback}
}

// CurrentPrice resolves the symbol from Redis, consulting the fallback when
// the key is absent.
func (o *RedisOracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	raw, err := o.client.Get(ctx, priceKeyPrefix+normalize(symbol)).Result()
	if err == redis.Nil {
		if o.fallback != nil {
			return o.fallback.CurrentPrice(ctx, symbol)
		}
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price lookup: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode price for %s: %w", symbol, err)
	}
	return price, nil
}
