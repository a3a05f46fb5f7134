// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package state implements the device attribute model of the emulated bridge.
//
// Each virtual light has one attribute record holding its on/off, brightness
// and color state. Records are merged, never replaced: a partial update keeps
// every attribute it does not mention. The color mode is derived from which
// color model the update used, mirroring the real bridge where a client only
// ever sends one color model per request.
package state

// Color modes reported to Hue clients.
const (
	ColorModeCT = "ct" // color temperature
	ColorModeHS = "hs" // hue/saturation
)

// Attributes is the stored state of one virtual light.
type Attributes struct {
	On        bool   `json:"on"`
	Bri       int    `json:"bri"`
	Hue       int    `json:"hue"`
	Sat       int    `json:"sat"`
	Ct        int    `json:"ct"`
	ColorMode string `json:"colormode"`
}

// Defaults returns the attribute record of a light that was never written.
func Defaults() Attributes {
	return Attributes{
		On:        false,
		Bri:       254,
		Hue:       0,
		Sat:       254,
		Ct:        199,
		ColorMode: ColorModeCT,
	}
}

// Update is a partial attribute update. Nil fields keep the current value.
type Update struct {
	On  *bool `json:"on,omitempty"`
	Bri *int  `json:"bri,omitempty"`
	Hue *int  `json:"hue,omitempty"`
	Sat *int  `json:"sat,omitempty"`
	Ct  *int  `json:"ct,omitempty"`
}

// Empty reports whether the update carries no attribute at all.
func (u Update) Empty() bool {
	return u.On == nil && u.Bri == nil && u.Hue == nil && u.Sat == nil && u.Ct == nil
}

// Merge applies a partial update to a record, key by key, and derives the
// color mode: an update carrying ct selects "ct", one carrying hue or sat
// (without ct) selects "hs", and one carrying neither leaves it unchanged.
func Merge(current Attributes, u Update) Attributes {
	next := current

	if u.On != nil {
		next.On = *u.On
	}
	if u.Bri != nil {
		next.Bri = *u.Bri
	}
	if u.Hue != nil {
		next.Hue = *u.Hue
	}
	if u.Sat != nil {
		next.Sat = *u.Sat
	}
	if u.Ct != nil {
		next.Ct = *u.Ct
	}

	if u.Ct != nil {
		next.ColorMode = ColorModeCT
	} else if u.Hue != nil || u.Sat != nil {
		next.ColorMode = ColorModeHS
	}

	return next
}
