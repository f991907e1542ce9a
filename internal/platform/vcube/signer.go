package vcube

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	signAlgorithm = "TC3-HMAC-SHA256"
	signedHeaders = "content-type;host"
	contentType   = "application/json"
)

// Sign computes the Authorization header value for one provider call.
// It is a pure function: identical inputs (timestamp included) always
// produce the identical signature. The canonical request format is
// byte-exact; any deviation in field order or whitespace produces a
// signature the provider rejects.
//
// The chain: canonical request → string-to-sign → a four-step keyed
// hash seeded from the secret key and scoped by date and service →
// final HMAC of the string-to-sign under the derived key.
func Sign(secretID, secretKey, host string, payload []byte, ts time.Time) string {
	payloadHash := sha256Hex(payload)
	canonicalRequest := strings.Join([]string{
		"POST",
		"/",
		"",
		"content-type:" + contentType + "\nhost:" + host + "\n",
		signedHeaders,
		payloadHash,
	}, "\n")

	date := ts.UTC().Format("2006-01-02")
	service := serviceFromHost(host)
	scope := date + "/" + service + "/tc3_request"

	stringToSign := strings.Join([]string{
		signAlgorithm,
		strconv.FormatInt(ts.Unix(), 10),
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	secretDate := hmacSHA256([]byte("TC3"+secretKey), date)
	secretService := hmacSHA256(secretDate, service)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signAlgorithm, secretID, scope, signedHeaders, signature)
}

// RequestHeaders returns the complete signed header set for one API
// call: the Authorization value from Sign plus the action, version,
// timestamp and region headers the provider requires alongside it.
func RequestHeaders(secretID, secretKey, host, action, version, region string, payload []byte, ts time.Time) map[string]string {
	headers := map[string]string{
		"Authorization":  Sign(secretID, secretKey, host, payload, ts),
		"Content-Type":   contentType,
		"Host":           host,
		"X-TC-Action":    action,
		"X-TC-Version":   version,
		"X-TC-Timestamp": strconv.FormatInt(ts.Unix(), 10),
	}
	if region != "" {
		headers["X-TC-Region"] = region
	}
	return headers
}

// serviceFromHost extracts the service identifier used in the credential
// scope: the first dot-separated label of the API host.
func serviceFromHost(host string) string {
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
