package json

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// JSON 统一的 jsoniter 配置实例
// 使用 ConfigCompatibleWithStandardLibrary 确保与标准库行为一致（字段标签、omitempty、未知字段忽略）
//
// jxt-tenantdb 中以下位置使用它：
// - tenant/provider: 凭证服务响应体解码
// - tenant/cache: Redis 中缓存条目的编码
// - response: 管理接口的响应体
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal 序列化对象为 JSON 字节数组
func Marshal(v interface{}) ([]byte, error) {
	return JSON.Marshal(v)
}

// Unmarshal 从 JSON 字节数组反序列化对象
func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}

// MarshalToString 将对象序列化为 JSON 字符串
func MarshalToString(v interface{}) (string, error) {
	return JSON.MarshalToString(v)
}

// NewDecoder 从流中解码，用于 HTTP 响应体
//
//	var body envelope
//	if err := jxtjson.NewDecoder(io.LimitReader(resp.Body, max)).Decode(&body); err != nil {
//	    return err
//	}
func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return JSON.NewDecoder(r)
}

// RawMessage jsoniter 兼容的 RawMessage 类型
type RawMessage = jsoniter.RawMessage
