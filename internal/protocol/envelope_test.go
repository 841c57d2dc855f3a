package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpclink/internal/protocol"
	"rpclink/internal/sign"
)

// 测试信封构建
func TestNewEnvelope(t *testing.T) {
	before := float64(time.Now().UnixNano()) / float64(time.Second)
	env := protocol.NewEnvelope("mobile", "getByUid", []interface{}{42})
	after := float64(time.Now().UnixNano()) / float64(time.Second)

	assert.Equal(t, protocol.Version, env.Version)
	assert.Equal(t, "mobile", env.Handler)
	assert.Equal(t, "getByUid", env.Method)
	assert.Equal(t, []interface{}{42}, env.Args)
	assert.Equal(t, "", env.Sig)

	// 时间戳带亚秒精度且落在构建前后区间内
	assert.GreaterOrEqual(t, env.Time, before)
	assert.LessOrEqual(t, env.Time, after)
}

// 测试nil参数归一化为空切片
func TestNewEnvelopeNilArgs(t *testing.T) {
	env := protocol.NewEnvelope("h", "m", nil)
	require.NotNil(t, env.Args)

	encoded, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"args":[]`)
}

// 测试信封签名
func TestEnvelopeSignWith(t *testing.T) {
	signer := sign.NewHMACSigner()

	env := protocol.NewEnvelope("mobile", "getByUid", []interface{}{42})
	require.NoError(t, env.SignWith(signer, "k"))
	assert.NotEmpty(t, env.Sig)

	// 相同字段再签一次得到相同签名
	clone := *env
	clone.Sig = ""
	require.NoError(t, clone.SignWith(signer, "k"))
	assert.Equal(t, env.Sig, clone.Sig)

	// 空密钥得到空签名
	empty := protocol.NewEnvelope("mobile", "getByUid", []interface{}{42})
	require.NoError(t, empty.SignWith(signer, ""))
	assert.Equal(t, "", empty.Sig)
}

// 测试信封JSON字段名符合线上格式
func TestEnvelopeWireFormat(t *testing.T) {
	env := protocol.NewEnvelope("mobile", "getByUid", []interface{}{42})
	require.NoError(t, env.SignWith(sign.NewHMACSigner(), "k"))

	encoded, err := json.Marshal(env)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &fields))

	for _, key := range []string{"version", "args", "time", "handler", "method", "sig"} {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, 6)
}

// 测试旧式载荷：原始参数加sig字段
func TestLegacyPayload(t *testing.T) {
	signer := sign.NewHMACSigner()
	args := map[string]interface{}{"uid": 42, "from": "h5"}

	payload, err := protocol.LegacyPayload(args, signer, "k")
	require.NoError(t, err)

	assert.Equal(t, 42, payload["uid"])
	assert.Equal(t, "h5", payload["from"])
	assert.NotEmpty(t, payload["sig"])

	// 签名只覆盖原始参数，与直接签名参数表一致
	expected, err := signer.Sign(args, "k")
	require.NoError(t, err)
	assert.Equal(t, expected, payload["sig"])

	// 原参数表未被修改
	assert.NotContains(t, args, "sig")
}

// 测试旧式载荷空密钥
func TestLegacyPayloadEmptySecret(t *testing.T) {
	payload, err := protocol.LegacyPayload(map[string]interface{}{"uid": 1}, sign.NewHMACSigner(), "")
	require.NoError(t, err)
	assert.Equal(t, "", payload["sig"])
}

// 测试TCP帧包装
func TestFrame(t *testing.T) {
	env := protocol.NewEnvelope("mobile", "getByUid", []interface{}{42})
	frame := protocol.NewFrame(env)

	assert.Equal(t, protocol.FramePath, frame.Path)
	assert.Equal(t, env, frame.Data)

	encoded, err := json.Marshal(frame)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.Equal(t, "/", fields["path"])
	assert.Contains(t, fields, "data")
}
