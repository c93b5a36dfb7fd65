package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// aliyunTimestamp は X-Date に載せるミリ秒付き UTC 時刻なのだ。
func aliyunTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// aliyunAuthorization は method\npath\ntimestamp\nbody に対する HMAC-SHA256 署名ヘッダを作るのだ。
func aliyunAuthorization(keyID, secret, method, path, timestamp string, body []byte) string {
	stringToSign := strings.Join([]string{method, path, timestamp, string(body)}, "\n")
	sig := hex.EncodeToString(hmacSHA256([]byte(secret), stringToSign))
	return fmt.Sprintf("ALIYUN %s:%s", keyID, sig)
}

const (
	volcanoAlgorithm     = "HMAC-SHA256"
	volcanoService       = "visual"
	volcanoTerminator    = "request"
	volcanoSignedHeaders = "content-type;host;x-date"
)

type volcanoSignInput struct {
	Method string
	URI    string
	Host   string
	Region string
	Time   time.Time
	Body   []byte
}

// volcanoTimestamp は X-Date に載せる Unix ミリ秒なのだ。
func volcanoTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// volcanoAuthorization は日付→リージョン→サービス→request の派生鍵で署名するのだ。
func volcanoAuthorization(keyID, secret string, in volcanoSignInput) string {
	ts := volcanoTimestamp(in.Time)
	dateStamp := in.Time.UTC().Format("20060102")

	canonicalHeaders := strings.Join([]string{
		"content-type:application/json",
		"host:" + in.Host,
		"x-date:" + ts,
	}, "\n")

	canonicalRequest := strings.Join([]string{
		in.Method,
		in.URI,
		"",
		canonicalHeaders,
		"",
		volcanoSignedHeaders,
		sha256Hex(in.Body),
	}, "\n")

	scope := strings.Join([]string{dateStamp, in.Region, volcanoService, volcanoTerminator}, "/")
	stringToSign := strings.Join([]string{
		volcanoAlgorithm,
		ts,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("VOLCANO"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, in.Region)
	kService := hmacSHA256(kRegion, volcanoService)
	kSigning := hmacSHA256(kService, volcanoTerminator)
	sig := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return strings.Join([]string{
		volcanoAlgorithm,
		"Credential=" + keyID + "/" + scope,
		"SignedHeaders=" + volcanoSignedHeaders,
		"Signature=" + sig,
	}, ", ")
}
