package model

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultChain qualifies bare wallet addresses.
const DefaultChain = "eip155:1"

// CAIP-10: namespace:reference:address
var accountPattern = regexp.MustCompile(`^[-a-z0-9]{3,8}:[-_a-zA-Z0-9]{1,32}:[-.%a-zA-Z0-9]{1,128}$`)

func IsAccount(s string) bool {
	return accountPattern.MatchString(s)
}

// QualifyAccount turns a wallet address into a chain-qualified account. Already
// qualified accounts are returned unchanged.
func QualifyAccount(chain, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty address")
	}
	if IsAccount(address) {
		return address, nil
	}
	if chain == "" {
		chain = DefaultChain
	}
	account := chain + ":" + address
	if !IsAccount(account) {
		return "", fmt.Errorf("invalid address %q", address)
	}
	return account, nil
}

// AccountAddress returns the address part of a chain-qualified account.
func AccountAddress(account string) string {
	if i := strings.LastIndex(account, ":"); i >= 0 {
		return account[i+1:]
	}
	return account
}
