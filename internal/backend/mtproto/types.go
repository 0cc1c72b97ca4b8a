package mtproto

import (
	"fmt"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
)

// Pyrogram v2 layout: ">BI?256sQ?" (dc_id, api_id, test_mode, auth_key, user_id, is_bot).
const pyrogramLen = 1 + 4 + 1 + 256 + 8 + 1

// Telethon layout: ">B{4|16}sH256s" (dc_id, ip, port, auth_key), prefixed by version "1".
const (
	telethonVersion = "1"
	telethonLenIPv4 = 1 + 4 + 2 + 256
	telethonLenIPv6 = 1 + 16 + 2 + 256
)

// credential is the portable part of an authorized MTProto session.
type credential struct {
	DC      int
	Addr    string // host:port, empty when the format does not carry it
	AuthKey crypto.Key
	APIID   int
	UserID  int64
	Test    bool
	Bot     bool
}

// data converts the credential into gotd session data.
func (c credential) data() *session.Data {
	id := c.AuthKey.ID()
	return &session.Data{
		DC:        c.DC,
		Addr:      c.Addr,
		AuthKey:   append([]byte(nil), c.AuthKey[:]...),
		AuthKeyID: id[:],
	}
}

func credentialFromData(d *session.Data) (credential, error) {
	if d == nil {
		return credential{}, fmt.Errorf("empty session")
	}
	if len(d.AuthKey) != len(crypto.Key{}) {
		return credential{}, fmt.Errorf("auth key is %d bytes, want %d", len(d.AuthKey), len(crypto.Key{}))
	}
	var c credential
	c.DC = d.DC
	c.Addr = d.Addr
	copy(c.AuthKey[:], d.AuthKey)
	return c, nil
}
