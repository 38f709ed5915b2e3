// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package event holds the fixed catalog of hub events scripts may hook.
package event

import (
	"slices"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/marshal"
)

// Event names.
const (
	OnTimer                   = "OnTimer"
	OnParsedMsgChat           = "OnParsedMsgChat"
	OnParsedMsgPM             = "OnParsedMsgPM"
	OnParsedMsgSearch         = "OnParsedMsgSearch"
	OnParsedMsgSR             = "OnParsedMsgSR"
	OnParsedMsgMyINFO         = "OnParsedMsgMyINFO"
	OnParsedMsgValidateNick   = "OnParsedMsgValidateNick"
	OnParsedMsgConnectToMe    = "OnParsedMsgConnectToMe"
	OnParsedMsgRevConnectToMe = "OnParsedMsgRevConnectToMe"
	OnParsedMsgSupports       = "OnParsedMsgSupports"
	OnUserLogin               = "OnUserLogin"
	OnUserLogout              = "OnUserLogout"
	OnUserDisconnected        = "OnUserDisconnected"
	OnNewConn                 = "OnNewConn"
	OnCloseConn               = "OnCloseConn"
	OnHubCommand              = "OnHubCommand"
	OnOperatorCommand         = "OnOperatorCommand"
	OnOperatorKicks           = "OnOperatorKicks"
	OnOperatorDrops           = "OnOperatorDrops"
	OnValidateTag             = "OnValidateTag"
	OnUserInList              = "OnUserInList"
	OnUnknownMsg              = "OnUnknownMsg"
	OnFlood                   = "OnFlood"
)

// CodeUnknownEvent is returned when intake names an event outside the catalog.
const CodeUnknownEvent = "UNKNOWN_EVENT"

// Spec describes one catalogued event.
type Spec struct {
	Name   string
	Format marshal.Format
	Args   []string
}

var catalog = map[string]Spec{}

func define(name, format string, args ...string) {
	catalog[name] = Spec{Name: name, Format: marshal.MustParseFormat(format), Args: args}
}

func init() {
	define(OnTimer, "l", "msec")
	define(OnParsedMsgChat, "ss", "nick", "message")
	define(OnParsedMsgPM, "sss", "nick", "message", "other_nick")
	define(OnParsedMsgSearch, "ss", "nick", "search")
	define(OnParsedMsgSR, "ss", "nick", "result")
	define(OnParsedMsgMyINFO, "s", "nick")
	define(OnParsedMsgValidateNick, "s", "nick")
	define(OnParsedMsgConnectToMe, "ssl", "nick", "ip", "port")
	define(OnParsedMsgRevConnectToMe, "ss", "nick", "other_nick")
	define(OnParsedMsgSupports, "ss|s", "ip", "msg", "back")
	define(OnUserLogin, "s", "nick")
	define(OnUserLogout, "s", "nick")
	define(OnUserDisconnected, "s", "nick")
	define(OnNewConn, "s", "ip")
	define(OnCloseConn, "s", "ip")
	define(OnHubCommand, "sslb|s", "nick", "command", "user_class", "in_pm", "prefix")
	define(OnOperatorCommand, "sslb", "nick", "command", "user_class", "in_pm")
	define(OnOperatorKicks, "ss|s", "op_nick", "nick", "reason")
	define(OnOperatorDrops, "ss|s", "op_nick", "nick", "reason")
	define(OnValidateTag, "ss", "nick", "tag")
	define(OnUserInList, "s", "nick")
	define(OnUnknownMsg, "ss", "nick", "message")
	define(OnFlood, "ss", "nick", "message")
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Spec, bool) {
	s, ok := catalog[name]
	return s, ok
}

// Names returns every catalogued event name in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MustFormat returns the format of a catalogued event and panics otherwise.
func MustFormat(name string) marshal.Format {
	s, ok := catalog[name]
	if !ok {
		panic("event: unknown event " + name)
	}
	return s.Format
}

// ErrUnknownEvent creates an error for an event name outside the catalog.
func ErrUnknownEvent(name string) error {
	return oops.In("event").
		Code(CodeUnknownEvent).
		With("event", name).
		Errorf("unknown event: %s", name)
}

// Resolve returns the catalog entry for name or an UNKNOWN_EVENT error.
func Resolve(name string) (Spec, error) {
	s, ok := catalog[name]
	if !ok {
		return Spec{}, ErrUnknownEvent(name)
	}
	return s, nil
}
