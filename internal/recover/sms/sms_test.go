package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSender captures delivered messages and optionally fails.
type recordingSender struct {
	sent map[string]string
	err  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string]string{}}
}

func (s *recordingSender) Send(_ context.Context, e164, message string) error {
	if s.err != nil {
		return s.err
	}
	s.sent[e164] = message
	return nil
}

func TestDispatcherSendsValidNumber(t *testing.T) {
	t.Parallel()

	sender := newRecordingSender()
	var sentTo []string

	d, err := NewDispatcher(sender, Config{DefaultRegion: "NO"}, Events{
		Sent: func(e164 string) { sentTo = append(sentTo, e164) },
	})
	require.NoError(t, err)

	require.NoError(t, d.Send(context.Background(), "91000000", "hello"))
	require.Equal(t, "hello", sender.sent["+4791000000"], "number must be normalized to E.164")
	require.Equal(t, []string{"+4791000000"}, sentTo)
}

func TestDispatcherFilters(t *testing.T) {
	t.Parallel()

	t.Run("unparseable number", func(t *testing.T) {
		sender := newRecordingSender()
		var filtered []string

		d, err := NewDispatcher(sender, Config{DefaultRegion: "NO"}, Events{
			Filtered: func(raw string) { filtered = append(filtered, raw) },
		})
		require.NoError(t, err)

		require.ErrorIs(t, d.Send(context.Background(), "not a number", "hello"), ErrFiltered)
		require.Equal(t, []string{"not a number"}, filtered)
		require.Empty(t, sender.sent)
	})

	t.Run("invalid number", func(t *testing.T) {
		sender := newRecordingSender()
		d, err := NewDispatcher(sender, Config{DefaultRegion: "NO"}, Events{})
		require.NoError(t, err)

		// Too short to be a Norwegian subscriber number.
		require.ErrorIs(t, d.Send(context.Background(), "12", "hello"), ErrFiltered)
		require.Empty(t, sender.sent)
	})

	t.Run("region whitelist", func(t *testing.T) {
		sender := newRecordingSender()
		d, err := NewDispatcher(sender, Config{
			DefaultRegion:    "NO",
			WhitelistRegions: true,
			Regions:          []string{"NO"},
		}, Events{})
		require.NoError(t, err)

		require.NoError(t, d.Send(context.Background(), "+4791000000", "hello"))
		require.ErrorIs(t, d.Send(context.Background(), "+46701234567", "hello"), ErrFiltered)
	})

	t.Run("number whitelist", func(t *testing.T) {
		sender := newRecordingSender()
		d, err := NewDispatcher(sender, Config{
			DefaultRegion:    "NO",
			WhitelistNumbers: true,
			Numbers:          []string{"91000000"},
		}, Events{})
		require.NoError(t, err)

		require.NoError(t, d.Send(context.Background(), "+4791000000", "hello"))
		require.ErrorIs(t, d.Send(context.Background(), "+4791000001", "hello"), ErrFiltered)
	})
}

func TestDispatcherReportsTransportError(t *testing.T) {
	t.Parallel()

	sender := newRecordingSender()
	sender.err = errors.New("gateway down")
	var failed []string

	d, err := NewDispatcher(sender, Config{DefaultRegion: "NO"}, Events{
		Error: func(e164 string, err error) { failed = append(failed, e164) },
	})
	require.NoError(t, err)

	err = d.Send(context.Background(), "+4791000000", "hello")
	require.ErrorContains(t, err, "gateway down")
	require.NotErrorIs(t, err, ErrFiltered)
	require.Equal(t, []string{"+4791000000"}, failed)
}

func TestNewDispatcherRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher(newRecordingSender(), Config{
		WhitelistRegions: true,
		Regions:          []string{"XX"},
	}, Events{})
	require.Error(t, err)

	_, err = NewDispatcher(newRecordingSender(), Config{
		DefaultRegion:    "NO",
		WhitelistNumbers: true,
		Numbers:          []string{"???"},
	}, Events{})
	require.Error(t, err)
}
