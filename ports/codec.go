package ports

import "github.com/layer-3/forum/core"

// SessionCodec converts between domain objects and signed cookie values
type SessionCodec interface {
	EncodeSession(session *core.Session) (string, error)
	DecodeSession(token string) (*core.Session, error)

	EncodePending(pending *core.PendingAuth) (string, error)
	DecodePending(token string) (*core.PendingAuth, error)
}
