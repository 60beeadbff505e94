// Package sms dispatches one-time codes and username listings to phones.
//
// The dispatcher owns number hygiene: parsing, validation and the optional
// region/number whitelists. Transports (gateway, null) only ever see
// well-formed E.164 numbers.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nyaruka/phonenumbers"

	"github.com/varden/recover/pkg/slogx"
)

// ErrFiltered reports a number the dispatcher refuses to send to: invalid,
// outside the region whitelist, or outside the number whitelist.
var ErrFiltered = errors.New("sms: number filtered")

// Sender is the transport that delivers one message to one E.164 number.
type Sender interface {
	Send(ctx context.Context, e164, message string) error
}

// Events are the dispatch observers, registered at construction. Nil fields
// are skipped. Observers must not block.
type Events struct {
	Sent     func(e164 string)
	Filtered func(raw string)
	Error    func(e164 string, err error)
}

// Config controls number hygiene.
type Config struct {
	// DefaultRegion resolves numbers without a country prefix.
	DefaultRegion string

	// WhitelistRegions restricts sends to the Regions list.
	WhitelistRegions bool
	Regions          []string

	// WhitelistNumbers restricts sends to the Numbers list.
	WhitelistNumbers bool
	Numbers          []string
}

// Dispatcher filters and forwards messages to its Sender.
type Dispatcher struct {
	sender Sender
	events Events

	defaultRegion    string
	whitelistRegions bool
	countryCodes     []int32
	whitelistNumbers bool
	numbers          []string
}

// NewDispatcher builds a dispatcher over the given transport. Whitelisted
// regions and numbers are resolved up front; an unknown region or an
// unparseable whitelist number is a configuration error.
func NewDispatcher(sender Sender, cfg Config, events Events) (*Dispatcher, error) {
	d := &Dispatcher{
		sender:           sender,
		events:           events,
		defaultRegion:    cfg.DefaultRegion,
		whitelistRegions: cfg.WhitelistRegions,
		whitelistNumbers: cfg.WhitelistNumbers,
	}

	for _, region := range cfg.Regions {
		code := phonenumbers.GetCountryCodeForRegion(region)
		if code == 0 {
			return nil, fmt.Errorf("sms: unknown region %q", region)
		}
		d.countryCodes = append(d.countryCodes, int32(code))
	}

	for _, raw := range cfg.Numbers {
		num, err := phonenumbers.Parse(raw, cfg.DefaultRegion)
		if err != nil {
			return nil, fmt.Errorf("sms: unparseable whitelist number %q: %w", raw, err)
		}
		d.numbers = append(d.numbers, phonenumbers.Format(num, phonenumbers.E164))
	}

	return d, nil
}

// Send parses and filters rawNumber, then hands the message to the
// transport. Filtered numbers yield ErrFiltered; transport failures are
// returned as-is. Every outcome fires its event.
func (d *Dispatcher) Send(ctx context.Context, rawNumber, message string) error {
	l := slogx.FromContext(ctx)

	num, err := phonenumbers.Parse(rawNumber, d.defaultRegion)
	if err != nil {
		l.Info("sms number rejected", slog.String("reason", "unparseable"))
		d.filtered(rawNumber)
		return ErrFiltered
	}

	if reason := d.filterReason(num); reason != "" {
		l.Info("sms number rejected", slog.String("reason", reason))
		d.filtered(rawNumber)
		return ErrFiltered
	}

	e164 := phonenumbers.Format(num, phonenumbers.E164)

	if err := d.sender.Send(ctx, e164, message); err != nil {
		l.Error("sms send failed", slog.String("error", err.Error()))
		if d.events.Error != nil {
			d.events.Error(e164, err)
		}
		return err
	}

	l.Info("sms sent")
	if d.events.Sent != nil {
		d.events.Sent(e164)
	}
	return nil
}

func (d *Dispatcher) filterReason(num *phonenumbers.PhoneNumber) string {
	if !phonenumbers.IsValidNumber(num) {
		return "invalid"
	}
	if d.whitelistRegions && !slices.Contains(d.countryCodes, num.GetCountryCode()) {
		return "region-not-whitelisted"
	}
	if d.whitelistNumbers &&
		!slices.Contains(d.numbers, phonenumbers.Format(num, phonenumbers.E164)) {
		return "number-not-whitelisted"
	}
	return ""
}

func (d *Dispatcher) filtered(raw string) {
	if d.events.Filtered != nil {
		d.events.Filtered(raw)
	}
}

// NullSender discards every message. Local runs only; the dispatch events
// still fire, so the flow stays observable.
type NullSender struct{}

func (NullSender) Send(ctx context.Context, e164, message string) error {
	slogx.FromContext(ctx).Info("sms discarded", slog.String("to", e164))
	return nil
}
