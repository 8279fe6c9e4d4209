package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAuthTokenRequiresSecret(t *testing.T) {
	if _, err := NewAuthToken(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("err = %v, want ErrEmptySecret", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	at, _ := NewAuthToken("s3cret")
	other, _ := NewAuthToken("other")

	token, err := at.GenerateToken("cust-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"customer_id": "cust-1",
		"exp":         time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"customer_id": "cust-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		auth    *AuthToken
		token   string
		want    string
		wantErr bool
	}{
		{"有效令牌", at, token, "cust-1", false},
		{"错误密钥", other, token, "", true},
		{"已过期", at, expired, "", true},
		{"none算法", at, noneAlg, "", true},
		{"格式错误", at, "not-a-token", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.auth.VerifyToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifyToken err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("customer = %q, want %q", got, tt.want)
			}
		})
	}
}
