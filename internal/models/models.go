// Package models provides domain models for the options analytics engine.
package models

import (
	"fmt"
	"strings"
)

// OptionType represents the right carried by an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType parses an option type, accepting common aliases (C, CE, P, PE).
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "ce":
		return Call, nil
	case "put", "p", "pe":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Valid reports whether t is one of the defined option types.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Intrinsic returns the immediate exercise value at the given underlying price.
func (t OptionType) Intrinsic(spot, strike float64) float64 {
	if t == Call {
		return max(spot-strike, 0)
	}
	return max(strike-spot, 0)
}

// Side represents the direction of a position.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide parses a position side.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long", "b":
		return Buy, nil
	case "sell", "short", "s":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Valid reports whether s is one of the defined sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Sign returns +1 for Buy and -1 for Sell.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Instrument distinguishes option legs from legs in the underlying itself.
type Instrument string

const (
	InstrumentOption     Instrument = "option"
	InstrumentUnderlying Instrument = "underlying"
)

// IsUnderlying reports whether the leg holds the underlying. The zero value is an option.
func (i Instrument) IsUnderlying() bool {
	return i == InstrumentUnderlying
}

// Valid reports whether i is empty (option) or one of the defined instruments.
func (i Instrument) Valid() bool {
	return i == "" || i == InstrumentOption || i == InstrumentUnderlying
}

// StrategyType tags a strategy with an entry from the template catalogue.
type StrategyType string

const (
	LongCall       StrategyType = "long_call"
	LongPut        StrategyType = "long_put"
	CoveredCall    StrategyType = "covered_call"
	ProtectivePut  StrategyType = "protective_put"
	Straddle       StrategyType = "straddle"
	Strangle       StrategyType = "strangle"
	BullCallSpread StrategyType = "bull_call_spread"
	BearCallSpread StrategyType = "bear_call_spread"
	BullPutSpread  StrategyType = "bull_put_spread"
	BearPutSpread  StrategyType = "bear_put_spread"
	Butterfly      StrategyType = "butterfly"
	IronCondor     StrategyType = "iron_condor"
	Custom         StrategyType = "custom"
)

// StrategyTypes lists every strategy type in catalogue order.
var StrategyTypes = []StrategyType{
	LongCall, LongPut, CoveredCall, ProtectivePut, Straddle, Strangle,
	BullCallSpread, BearCallSpread, BullPutSpread, BearPutSpread,
	Butterfly, IronCondor, Custom,
}

// ParseStrategyType parses a strategy type. Dashes are accepted in place of underscores.
func ParseStrategyType(s string) (StrategyType, error) {
	norm := StrategyType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if norm.Valid() {
		return norm, nil
	}
	return "", fmt.Errorf("unknown strategy type %q", s)
}

// Valid reports whether t is part of the closed taxonomy.
func (t StrategyType) Valid() bool {
	for _, st := range StrategyTypes {
		if st == t {
			return true
		}
	}
	return false
}
