package cache

import (
	"context"
	"time"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/provider"
)

// Entry 缓存条目
type Entry struct {
	Credentials provider.CredentialSet `json:"credentials"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// Expired now 不早于 ExpiresAt 即过期
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store 二级缓存存储。Get 未命中返回 nil, nil。
type Store interface {
	Get(ctx context.Context, tenantID string) (*Entry, error)
	Set(ctx context.Context, tenantID string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string) (bool, error)
	Clear(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Codec defines the encoding/decoding interface for stored entries.
type Codec interface {
	Encode(entry *Entry) ([]byte, error)
	Decode(data []byte) (*Entry, error)
}

// JSONCodec implements Codec using jsoniter.
type JSONCodec struct{}

func (JSONCodec) Encode(entry *Entry) ([]byte, error) {
	return json.Marshal(entry)
}

func (JSONCodec) Decode(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
