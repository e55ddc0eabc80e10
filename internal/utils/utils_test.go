package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")

	token, err := GenerateJWT("123456789012345678", "ops", UserTypeAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", claims.UserID)
	assert.Equal(t, UserTypeAdmin, claims.UserType)
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	SetJWTSecret("test-secret")

	expired, err := GenerateJWT("1", "ops", UserTypeAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)

	other, err := GenerateJWT("1", "ops", UserTypeAdmin, time.Hour)
	require.NoError(t, err)
	SetJWTSecret("rotated")
	_, err = ValidateJWT(other)
	assert.Error(t, err)
}

type priceRequest struct {
	Owner string `validate:"required,snowflake"`
	Price string `validate:"required,price"`
	Tier  string `validate:"required,license_tier"`
}

func TestCustomValidations(t *testing.T) {
	valid := priceRequest{Owner: "123456789012345678", Price: "9.99", Tier: "monthly"}
	assert.NoError(t, ValidateStruct(&valid))

	tests := []struct {
		name string
		req  priceRequest
		tag  string
	}{
		{"negative price", priceRequest{Owner: valid.Owner, Price: "-1", Tier: "daily"}, "price"},
		{"three decimals", priceRequest{Owner: valid.Owner, Price: "1.999", Tier: "daily"}, "price"},
		{"unknown tier", priceRequest{Owner: valid.Owner, Price: "1", Tier: "weekly"}, "license_tier"},
		{"bad owner", priceRequest{Owner: "abc", Price: "1", Tier: "daily"}, "snowflake"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			require.Error(t, err)
			errs := GetValidationErrors(err)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.tag, errs[0].Tag)
			assert.NotEmpty(t, DescribeValidation(err))
		})
	}
}

func TestHashSecretIgnoresSurroundingWhitespace(t *testing.T) {
	assert.Equal(t, HashSecret("KEY-1"), HashSecret("  KEY-1\n"))
	assert.NotEqual(t, HashSecret("KEY-1"), HashSecret("KEY-2"))
	assert.Len(t, HashSecret("KEY-1"), 64)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "ABCD****", MaskSecret("ABCDEFGH"))
	assert.Equal(t, "***", MaskSecret("abc"))
}

func TestKeyedLimiter(t *testing.T) {
	kl := NewKeyedLimiter(rate.Every(time.Hour), 2)
	defer kl.Stop()

	assert.True(t, kl.Allow("a"))
	assert.True(t, kl.Allow("a"))
	assert.False(t, kl.Allow("a"))
	assert.True(t, kl.Allow("b"))
}
