package authsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"invalid credentials", ErrInvalidCredentials, KindInvalidCredentials},
		{"invalid credentials response", &RequestError{StatusCode: 401, Code: ErrorCodeInvalidCredentials}, KindInvalidCredentials},
		{"expired", fmt.Errorf("wrap: %w", ErrTokenExpired), KindTokenExpired},
		{"codec expired", jwtx.ErrExpired, KindTokenExpired},
		{"malformed", ErrTokenMalformed, KindTokenMalformed},
		{"bad signature", jwtx.ErrInvalidSig, KindTokenMalformed},
		{"refresh failed", fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNetwork), KindRefreshFailed},
		{"refresh failed then signed out", fmt.Errorf("%w: %w", ErrRefreshFailed, ErrUnauthorized), KindUnauthorized},
		{"401", &RequestError{StatusCode: 401, Code: ErrorCodeInvalidToken}, KindUnauthorized},
		{"403", &RequestError{StatusCode: 403, Code: ErrorCodeForbidden}, KindForbidden},
		{"network", fmt.Errorf("%w: dial", ErrNetwork), KindNetwork},
		{"fallback", &FallbackError{User: testUser, Cause: ErrRefreshFailed}, KindFallback},
		{"5xx", &RequestError{StatusCode: 502, Code: "bad_gateway"}, KindServer},
		{"404", &RequestError{StatusCode: 404, Code: ErrorCodeNotFound}, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err), "got %s", Classify(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	require.Empty(t, Message(nil))
	require.Equal(t, "Invalid email or password.", Message(ErrInvalidCredentials))
	require.Contains(t, Message(ErrUnauthorized), "sign in again")
	require.Contains(t, Message(&FallbackError{Cause: ErrUnauthorized}), "could not confirm")
	require.NotEmpty(t, Message(errors.New("anything")))

	for k := KindUnknown; k <= KindServer; k++ {
		require.NotEqual(t, "", k.String())
	}
}

func TestRequestError(t *testing.T) {
	t.Parallel()

	t.Run("is matches status", func(t *testing.T) {
		require.ErrorIs(t, &RequestError{StatusCode: 401}, ErrUnauthorized)
		require.ErrorIs(t, &RequestError{StatusCode: 403}, ErrForbidden)
		require.NotErrorIs(t, &RequestError{StatusCode: 500}, ErrUnauthorized)
	})

	t.Run("temporary statuses", func(t *testing.T) {
		for status, want := range map[int]bool{
			400: false, 401: false, 403: false, 404: false,
			408: true, 429: true, 500: true, 502: true, 503: true,
		} {
			require.Equal(t, want, (&RequestError{StatusCode: status}).Temporary(), "status %d", status)
		}
	})

	t.Run("write error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewRequestError(http.StatusConflict, ErrorCodeEmailTaken, "email already registered").WriteError(rec)

		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		require.JSONEq(t, `{"error":"email_taken","error_description":"email already registered"}`, rec.Body.String())
	})
}

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	resp := func(status int, body string) (*http.Response, []byte) {
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}, []byte(body)
	}

	t.Run("success", func(t *testing.T) {
		require.NoError(t, parseErrorResponse(resp(204, "")))
	})

	t.Run("error document", func(t *testing.T) {
		err := parseErrorResponse(resp(401, `{"error":"invalid_credentials","error_description":"nope"}`))
		var reqErr *RequestError
		require.ErrorAs(t, err, &reqErr)
		require.Equal(t, ErrorCodeInvalidCredentials, reqErr.Code)
		require.Equal(t, "nope", reqErr.Description)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("non json body", func(t *testing.T) {
		for status, code := range map[int]string{
			401: ErrorCodeUnauthorized,
			403: ErrorCodeForbidden,
			404: ErrorCodeNotFound,
			422: ErrorCodeInvalidRequest,
			503: ErrorCodeServerError,
		} {
			err := parseErrorResponse(resp(status, "<html>oops</html>"))
			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			require.Equal(t, code, reqErr.Code, "status %d", status)
			require.Equal(t, status, reqErr.StatusCode)
		}
	})
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	require.True(t, isTransient(fmt.Errorf("%w: reset", ErrNetwork)))
	require.True(t, isTransient(&RequestError{StatusCode: 503}))
	require.False(t, isTransient(&RequestError{StatusCode: 400}))
	require.False(t, isTransient(nil))
	require.False(t, isTransient(fmt.Errorf("%w: %w", ErrNetwork, context.Canceled)))

	require.False(t, retryable(fmt.Errorf("%w: %w", ErrUnauthorized, ErrNetwork)))
	require.False(t, retryable(&FallbackError{Cause: ErrNetwork}))
	require.True(t, retryable(fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNetwork)))
}
