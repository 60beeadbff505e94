package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendAccepted(t *testing.T) {
	t.Parallel()

	var form map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"b": r.PostFormValue("b"),
			"p": r.PostFormValue("p"),
			"s": r.PostFormValue("s"),
			"t": r.PostFormValue("t"),
			"m": r.PostFormValue("m"),
		}
		w.Write([]byte("UT_19611¤SENDES¤87654321¤20120322-15:36:35¤¤¤Your code: ABC123\n"))
	}))
	t.Cleanup(srv.Close)

	s := NewSender(srv.URL, "recover", "gwuser", "gwpass", time.Second)

	err := s.Send(context.Background(), "+4787654321", "Your code: ABC123")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"b": "gwuser",
		"p": "gwpass",
		"s": "recover",
		"t": "+4787654321",
		"m": "Your code: ABC123",
	}, form)
}

func TestSendRejectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("UT_19612¤AVVIST¤87654321¤20120322-15:36:35¤¤¤nope\n"))
	}))
	t.Cleanup(srv.Close)

	s := NewSender(srv.URL, "recover", "gwuser", "gwpass", time.Second)

	err := s.Send(context.Background(), "+4787654321", "nope")
	require.ErrorContains(t, err, "AVVIST")
}

func TestSendHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	s := NewSender(srv.URL, "recover", "gwuser", "gwpass", time.Second)
	require.Error(t, s.Send(context.Background(), "+4787654321", "hello"))
}

func TestCheckResponse(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkResponse("id¤SENDES¤num¤ts¤¤¤msg"))
	require.Error(t, checkResponse("id¤FEIL¤num¤ts¤¤¤msg"))
	require.Error(t, checkResponse("not a gateway response"))
	require.Error(t, checkResponse(""))
}
