package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidelio-pos/config"
	"fidelio-pos/internal/loyalty"
)

func testClient(baseURL string) *Client {
	return NewClient(config.RemoteConfig{BaseURL: baseURL, Timeout: 2 * time.Second})
}

func TestValidateCodeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/loyalty/use-code", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"successful":true,"coupon_id":501,"program_id":30,"points":"5000","has_source_order":true}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ValidateCode(context.Background(), loyalty.CodeRequest{
		Code:      "GIFT5000",
		OrderDate: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, result.Successful)
	assert.Equal(t, int64(501), result.CouponID)
	assert.Equal(t, "5000", result.Points.String())
	assert.True(t, result.HasSourceOrder)
}

func TestValidateCodeFailurePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"successful":false,"reason":"expired","error_message":"This coupon is expired","points":"0"}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ValidateCode(context.Background(), loyalty.CodeRequest{Code: "OLD"})
	require.NoError(t, err, "validation failures are payload, not transport errors")
	assert.False(t, result.Successful)
	assert.Equal(t, loyalty.ReasonExpired, result.Reason)
}

func TestUnreachableServerIsTransient(t *testing.T) {
	client := testClient("http://127.0.0.1:1")

	_, err := client.ValidateCode(context.Background(), loyalty.CodeRequest{Code: "GIFT5000"})
	require.Error(t, err)
	assert.True(t, loyalty.IsTransient(err))

	_, err = client.CardPartnerByCode(context.Background(), "MEMBER1")
	require.Error(t, err)
	assert.True(t, loyalty.IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ValidateCode(context.Background(), loyalty.CodeRequest{Code: "X"})
	require.Error(t, err)
	assert.True(t, loyalty.IsTransient(err))
}

func TestClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ValidateCode(context.Background(), loyalty.CodeRequest{Code: "X"})
	require.Error(t, err)
	assert.False(t, loyalty.IsTransient(err))
}

func TestFetchCardNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("program_id"))
		assert.Equal(t, "42", r.URL.Query().Get("partner_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"found":false}`))
	}))
	defer srv.Close()

	card, err := testClient(srv.URL).FetchCard(context.Background(), 10, 42)
	require.NoError(t, err)
	assert.Nil(t, card)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/loyalty/status/POS-0042", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"status":"done"}`))
	}))
	defer srv.Close()

	status, err := testClient(srv.URL).Status(context.Background(), "POS-0042")
	require.NoError(t, err)
	assert.True(t, status.OK())
}
