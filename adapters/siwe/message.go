package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const headerSuffix = " wants you to sign in with your Ethereum account:"

var ErrMalformedMessage = errors.New("malformed sign-in message")

// Message is a parsed EIP-4361 sign-in message
type Message struct {
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// ParseMessage parses the plain-text form of an EIP-4361 message
func ParseMessage(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: too short", ErrMalformedMessage)
	}

	domain, ok := strings.CutSuffix(lines[0], headerSuffix)
	if !ok || domain == "" {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedMessage)
	}
	if !common.IsHexAddress(lines[1]) {
		return nil, fmt.Errorf("%w: invalid address", ErrMalformedMessage)
	}

	msg := &Message{
		Domain:  domain,
		Address: common.HexToAddress(lines[1]),
	}

	i := 2
	var statement []string
	for ; i < len(lines) && !strings.HasPrefix(lines[i], "URI: "); i++ {
		if lines[i] != "" {
			statement = append(statement, lines[i])
		}
	}
	msg.Statement = strings.Join(statement, "\n")

	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if line == "Resources:" {
			for i++; i < len(lines) && strings.HasPrefix(lines[i], "- "); i++ {
				msg.Resources = append(msg.Resources, strings.TrimPrefix(lines[i], "- "))
			}
			i--
			continue
		}

		key, value, found := strings.Cut(line, ": ")
		if !found {
			return nil, fmt.Errorf("%w: unexpected line %q", ErrMalformedMessage, line)
		}
		if err := msg.setField(key, value); err != nil {
			return nil, err
		}
	}

	if msg.URI == "" || msg.Version == "" || msg.Nonce == "" || msg.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedMessage)
	}
	if msg.Version != "1" {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedMessage, msg.Version)
	}

	return msg, nil
}

func (m *Message) setField(key, value string) error {
	var err error
	switch key {
	case "URI":
		m.URI = value
	case "Version":
		m.Version = value
	case "Chain ID":
		m.ChainID, err = strconv.ParseInt(value, 10, 64)
	case "Nonce":
		m.Nonce = value
	case "Issued At":
		m.IssuedAt, err = time.Parse(time.RFC3339, value)
	case "Expiration Time":
		var t time.Time
		t, err = time.Parse(time.RFC3339, value)
		m.ExpirationTime = &t
	case "Not Before":
		var t time.Time
		t, err = time.Parse(time.RFC3339, value)
		m.NotBefore = &t
	case "Request ID":
		m.RequestID = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrMalformedMessage, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
	}
	return nil
}

// ValidAt reports whether the message time bounds contain t
func (m *Message) ValidAt(t time.Time) bool {
	if m.ExpirationTime != nil && !t.Before(*m.ExpirationTime) {
		return false
	}
	if m.NotBefore != nil && t.Before(*m.NotBefore) {
		return false
	}
	return true
}

// String renders the message in its canonical signed form
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + headerSuffix + "\n")
	b.WriteString(m.Address.Hex() + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")
	b.WriteString("URI: " + m.URI + "\n")
	b.WriteString("Version: " + m.Version + "\n")
	b.WriteString("Chain ID: " + strconv.FormatInt(m.ChainID, 10) + "\n")
	b.WriteString("Nonce: " + m.Nonce + "\n")
	b.WriteString("Issued At: " + m.IssuedAt.UTC().Format(time.RFC3339))
	if m.ExpirationTime != nil {
		b.WriteString("\nExpiration Time: " + m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		b.WriteString("\nNot Before: " + m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		b.WriteString("\nRequest ID: " + m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}
