package core

import "strings"

const (
	MessageBypassed             = "Test account - verification bypassed"
	MessageVerified             = "ORB verified"
	MessageVerificationRequired = "ORB verification required. Please visit a World ID ORB location to verify your identity."
)

// AllowList decides who may use the app.
// The zero value has no bypass entries and admits verified addresses only.
type AllowList struct {
	bypass map[string]struct{}
}

// NewAllowList builds a policy from the configured bypass addresses
func NewAllowList(bypass []string) AllowList {
	set := make(map[string]struct{}, len(bypass))
	for _, addr := range bypass {
		addr = normalizeAddress(addr)
		if addr == "" {
			continue
		}
		set[addr] = struct{}{}
	}
	return AllowList{bypass: set}
}

// IsBypassed reports whether address is exempt from identity verification
func (p AllowList) IsBypassed(address string) bool {
	_, ok := p.bypass[normalizeAddress(address)]
	return ok
}

// IsAllowed returns true for bypass addresses, otherwise verified unchanged
func (p AllowList) IsAllowed(address string, verified bool) bool {
	if p.IsBypassed(address) {
		return true
	}
	return verified
}

// Message returns the user-facing verification status hint
func (p AllowList) Message(address string, verified bool) string {
	if p.IsBypassed(address) {
		return MessageBypassed
	}
	if verified {
		return MessageVerified
	}
	return MessageVerificationRequired
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress compares two wallet addresses case-insensitively
func SameAddress(a, b string) bool {
	return a != "" && normalizeAddress(a) == normalizeAddress(b)
}
