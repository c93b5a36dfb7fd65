package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliyunAuthorization(t *testing.T) {
	ts := aliyunTimestamp(fixedNow)
	assert.Equal(t, "2026-03-14T09:30:00.000Z", ts)

	got := aliyunAuthorization("AK", "SK", "POST", "/api/v1/tasks", ts, []byte(`{"a":1}`))

	mac := hmac.New(sha256.New, []byte("SK"))
	mac.Write([]byte("POST\n/api/v1/tasks\n2026-03-14T09:30:00.000Z\n{\"a\":1}"))
	want := "ALIYUN AK:" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, got)
}

func TestVolcanoAuthorization(t *testing.T) {
	in := volcanoSignInput{
		Method: "POST",
		URI:    volcanoGeneratePath,
		Host:   "visual.volcengineapi.com",
		Region: "cn-beijing",
		Time:   fixedNow,
		Body:   []byte(`{"prompt":"cat"}`),
	}

	first := volcanoAuthorization("AK", "SK", in)
	second := volcanoAuthorization("AK", "SK", in)
	assert.Equal(t, first, second, "同じ入力なら同じ署名になるはず")

	assert.True(t, strings.HasPrefix(first, "HMAC-SHA256, Credential=AK/20260314/cn-beijing/visual/request, "), first)
	assert.Contains(t, first, "SignedHeaders=content-type;host;x-date")

	parts := strings.Split(first, "Signature=")
	if assert.Len(t, parts, 2) {
		assert.Len(t, parts[1], 64)
	}

	t.Run("ボディが変われば署名も変わる", func(t *testing.T) {
		other := in
		other.Body = []byte(`{"prompt":"dog"}`)
		assert.NotEqual(t, first, volcanoAuthorization("AK", "SK", other))
	})

	t.Run("秘密鍵が変われば署名も変わる", func(t *testing.T) {
		assert.NotEqual(t, first, volcanoAuthorization("AK", "SK2", in))
	})

	assert.Equal(t, "1773480600000", volcanoTimestamp(fixedNow))
}

func TestPriceTable(t *testing.T) {
	cases := []struct {
		name   string
		table  PriceTable
		w, h   int
		count  int
		expect float64
	}{
		{"aliyun 512", AliyunPrices, 512, 512, 1, 0.02},
		{"aliyun 1024 x2", AliyunPrices, 1024, 1024, 2, 0.12},
		{"aliyun 1280", AliyunPrices, 1280, 1280, 1, 0.08},
		{"volcano 1024", VolcanoPrices, 1024, 1024, 1, 0.10},
		{"volcano 1536 x3", VolcanoPrices, 1536, 1536, 3, 0.42},
		{"枚数0", VolcanoPrices, 1024, 1024, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expect, tc.table.Cost(tc.w, tc.h, tc.count), 1e-9)
		})
	}
}
